package models

// DetectionResult is the structured payload emitted by the upstream
// computer-vision detector. Field names are fixed by the detector contract.
type DetectionResult struct {
	DetectionID    string `json:"detection_id,omitempty"`
	CameraID       string `json:"camera_id,omitempty"`
	SiteID         string `json:"site_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`

	PPECompliance    *PPECompliance    `json:"ppe_compliance,omitempty"`
	PoseAnalysis     *PoseAnalysis     `json:"pose_analysis,omitempty"`
	FatigueStatus    *FatigueStatus    `json:"fatigue_status,omitempty"`
	IntentPrediction *IntentPrediction `json:"intent_prediction,omitempty"`
}

// PPECompliance reports personal protective equipment findings.
type PPECompliance struct {
	Compliant  bool           `json:"compliant"`
	Violations []PPEViolation `json:"violations,omitempty"`
}

// PPEViolation is one missing-equipment finding.
type PPEViolation struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Location   string  `json:"location,omitempty"`
}

// PoseAnalysis reports posture findings.
type PoseAnalysis struct {
	PostureRisks []PostureRisk `json:"posture_risks,omitempty"`
}

// PostureRisk is one posture finding; type FALL_DETECTED raises a critical
// alert.
type PostureRisk struct {
	Type       string  `json:"type"`
	Severity   string  `json:"severity,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// FatigueStatus reports worker fatigue estimation.
type FatigueStatus struct {
	FatigueDetected bool    `json:"fatigue_detected"`
	LevelCategory   string  `json:"level_category,omitempty"` // LOW, MEDIUM, HIGH, CRITICAL
	FatigueLevel    float64 `json:"fatigue_level,omitempty"`  // 0-100
	Message         string  `json:"message,omitempty"`
}

// IntentPrediction reports predicted trajectories toward danger zones.
type IntentPrediction struct {
	CollisionRisks []CollisionRisk `json:"collision_risks,omitempty"`
}

// CollisionRisk is one predicted collision finding.
type CollisionRisk struct {
	Zone            string  `json:"zone"`
	TimeToCollision float64 `json:"time_to_collision"` // seconds
}

// FallDetectedRiskType is the posture risk type that maps to a fall alert.
const FallDetectedRiskType = "FALL_DETECTED"
