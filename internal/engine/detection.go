package engine

import (
	"context"
	"fmt"

	"github.com/safesite/alert-engine/internal/models"
)

// Collision alerting thresholds: findings under collisionAlertSeconds raise
// an alert; under collisionCriticalSeconds the alert is critical.
const (
	collisionAlertSeconds    = 3.0
	collisionCriticalSeconds = 1.0
)

const defaultOrganizationID = "ORG-DEFAULT"

// EvaluateDetection converts a detector payload into zero or more alerts.
// Each independent signal channel (PPE, posture, fatigue, collision) is
// evaluated on its own; at most one alert is emitted per qualifying finding.
// When several rules qualify for the same finding, the first rule in the
// deterministic matching order wins (documented tie-break).
func (e *AlertEngine) EvaluateDetection(ctx context.Context, detection *models.DetectionResult, rules []*models.AlertRule) []*models.Alert {
	var alerts []*models.Alert
	if detection == nil {
		return alerts
	}

	orgID := detection.OrganizationID
	if orgID == "" {
		orgID = defaultOrganizationID
	}

	alerts = append(alerts, e.evaluatePPE(ctx, detection, rules)...)
	alerts = append(alerts, e.evaluatePosture(ctx, detection, orgID)...)
	alerts = append(alerts, e.evaluateFatigue(ctx, detection, orgID)...)
	alerts = append(alerts, e.evaluateCollisions(ctx, detection, orgID)...)

	return alerts
}

func (e *AlertEngine) evaluatePPE(ctx context.Context, detection *models.DetectionResult, rules []*models.AlertRule) []*models.Alert {
	var alerts []*models.Alert

	ppe := detection.PPECompliance
	if ppe == nil || ppe.Compliant {
		return alerts
	}

	for _, violation := range ppe.Violations {
		rule := matchRule(rules, models.AlertTypePPEViolation, detection.SiteID, detection.CameraID, violation.Confidence)
		if rule == nil {
			continue
		}

		alert := e.CreateAlert(ctx, CreateAlertInput{
			Type:           models.AlertTypePPEViolation,
			Severity:       rule.Severity,
			Title:          fmt.Sprintf("PPE Violation: %s", violation.Type),
			Description:    fmt.Sprintf("Worker detected without required PPE. Confidence: %.2f", violation.Confidence),
			OrganizationID: rule.OrganizationID,
			Source:         "AI_DETECTION",
			SourceID:       detection.DetectionID,
			CameraID:       detection.CameraID,
			SiteID:         detection.SiteID,
			Confidence:     violation.Confidence,
			Metadata: map[string]interface{}{
				"violation_type": violation.Type,
				"location":       violation.Location,
			},
		})
		alerts = append(alerts, alert)
	}

	return alerts
}

func (e *AlertEngine) evaluatePosture(ctx context.Context, detection *models.DetectionResult, orgID string) []*models.Alert {
	var alerts []*models.Alert

	pose := detection.PoseAnalysis
	if pose == nil {
		return alerts
	}

	for _, risk := range pose.PostureRisks {
		if risk.Type != models.FallDetectedRiskType {
			continue
		}

		confidence := risk.Confidence
		if confidence == 0 {
			confidence = 0.9
		}

		alert := e.CreateAlert(ctx, CreateAlertInput{
			Type:           models.AlertTypeFallDetected,
			Severity:       models.SeverityCritical,
			Title:          "Worker Fall Detected",
			Description:    fmt.Sprintf("Fall detected with %s severity", risk.Severity),
			OrganizationID: orgID,
			Source:         "AI_DETECTION",
			SourceID:       detection.DetectionID,
			CameraID:       detection.CameraID,
			SiteID:         detection.SiteID,
			Confidence:     confidence,
			Metadata: map[string]interface{}{
				"risk_type":     risk.Type,
				"risk_severity": risk.Severity,
			},
		})
		alerts = append(alerts, alert)
	}

	return alerts
}

func (e *AlertEngine) evaluateFatigue(ctx context.Context, detection *models.DetectionResult, orgID string) []*models.Alert {
	var alerts []*models.Alert

	fatigue := detection.FatigueStatus
	if fatigue == nil || !fatigue.FatigueDetected {
		return alerts
	}
	if fatigue.LevelCategory != "HIGH" && fatigue.LevelCategory != "CRITICAL" {
		return alerts
	}

	severity := models.SeverityHigh
	if fatigue.LevelCategory == "CRITICAL" {
		severity = models.SeverityCritical
	}

	alert := e.CreateAlert(ctx, CreateAlertInput{
		Type:           models.AlertTypeWorkerFatigue,
		Severity:       severity,
		Title:          "Worker Fatigue Detected",
		Description:    fatigue.Message,
		OrganizationID: orgID,
		Source:         "AI_DETECTION",
		SourceID:       detection.DetectionID,
		CameraID:       detection.CameraID,
		SiteID:         detection.SiteID,
		Confidence:     fatigue.FatigueLevel / 100,
		Metadata: map[string]interface{}{
			"level_category": fatigue.LevelCategory,
			"fatigue_level":  fatigue.FatigueLevel,
		},
	})
	return append(alerts, alert)
}

func (e *AlertEngine) evaluateCollisions(ctx context.Context, detection *models.DetectionResult, orgID string) []*models.Alert {
	var alerts []*models.Alert

	intent := detection.IntentPrediction
	if intent == nil {
		return alerts
	}

	for _, collision := range intent.CollisionRisks {
		if collision.TimeToCollision >= collisionAlertSeconds {
			continue
		}

		severity := models.SeverityHigh
		if collision.TimeToCollision < collisionCriticalSeconds {
			severity = models.SeverityCritical
		}

		alert := e.CreateAlert(ctx, CreateAlertInput{
			Type:           models.AlertTypeCollisionRisk,
			Severity:       severity,
			Title:          fmt.Sprintf("Collision Risk: %s", collision.Zone),
			Description:    fmt.Sprintf("Worker approaching danger zone. Time to collision: %.1fs", collision.TimeToCollision),
			OrganizationID: orgID,
			Source:         "AI_DETECTION",
			SourceID:       detection.DetectionID,
			CameraID:       detection.CameraID,
			SiteID:         detection.SiteID,
			Zone:           collision.Zone,
			Confidence:     0.95,
			Metadata: map[string]interface{}{
				"zone":              collision.Zone,
				"time_to_collision": collision.TimeToCollision,
			},
		})
		alerts = append(alerts, alert)
	}

	return alerts
}
