package models

import (
	"time"

	"github.com/safesite/alert-engine/pkg/utils"
)

// AlertSeverity is an ordered severity scale.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

var severityOrdinals = map[AlertSeverity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Ordinal returns the rank of the severity (info < low < medium < high < critical).
// Unknown severities rank below info.
func (s AlertSeverity) Ordinal() int {
	ord, ok := severityOrdinals[s]
	if !ok {
		return -1
	}
	return ord
}

// AtLeast reports whether s is at least as severe as min.
func (s AlertSeverity) AtLeast(min AlertSeverity) bool {
	return s.Ordinal() >= min.Ordinal()
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	StatusPending      AlertStatus = "pending"
	StatusActive       AlertStatus = "active"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusEscalated    AlertStatus = "escalated"
	StatusResolved     AlertStatus = "resolved"
	StatusDismissed    AlertStatus = "dismissed"
)

// Terminal reports whether the status permits no further transitions.
func (s AlertStatus) Terminal() bool {
	return s == StatusResolved || s == StatusDismissed
}

// AlertType classifies the safety condition an alert tracks.
type AlertType string

const (
	AlertTypePPEViolation         AlertType = "ppe_violation"
	AlertTypeFallDetected         AlertType = "fall_detected"
	AlertTypeUnsafeAct            AlertType = "unsafe_act"
	AlertTypeCollisionRisk        AlertType = "collision_risk"
	AlertTypeWorkerFatigue        AlertType = "worker_fatigue"
	AlertTypeRestrictedArea       AlertType = "restricted_area"
	AlertTypeEquipmentMalfunction AlertType = "equipment_malfunction"
	AlertTypeEnvironmentalHazard  AlertType = "environmental_hazard"
	AlertTypeNearMiss             AlertType = "near_miss"
	AlertTypeIncident             AlertType = "incident"
	AlertTypeSystemAlert          AlertType = "system_alert"
)

// Coordinates is an optional camera-space or site-space location.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// EscalationEntry is one step of an alert's escalation audit trail. The
// trail is append-only; entries are never reordered or mutated.
type EscalationEntry struct {
	Level       int       `json:"level"`
	EscalatedAt time.Time `json:"escalated_at"`
	RuleID      string    `json:"rule_id"`
	Recipients  []string  `json:"recipients"`
	Channels    []string  `json:"channels"`
	Actions     []string  `json:"actions,omitempty"`
}

// NotificationReceipt is the compact per-send record kept on the alert itself.
type NotificationReceipt struct {
	NotificationID string     `json:"notification_id"`
	Channel        string     `json:"channel"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
}

// Alert is a tracked record of a safety condition requiring response.
type Alert struct {
	ID string `json:"id" db:"id"`

	Type     AlertType     `json:"type" db:"type"`
	Severity AlertSeverity `json:"severity" db:"severity"`
	Status   AlertStatus   `json:"status" db:"status"`

	Title                string `json:"title" db:"title"`
	TitleLocalized       string `json:"title_localized,omitempty" db:"title_localized"`
	Description          string `json:"description" db:"description"`
	DescriptionLocalized string `json:"description_localized,omitempty" db:"description_localized"`

	Source   string `json:"source" db:"source"`
	SourceID string `json:"source_id,omitempty" db:"source_id"`

	CameraID    string       `json:"camera_id,omitempty" db:"camera_id"`
	SiteID      string       `json:"site_id,omitempty" db:"site_id"`
	Zone        string       `json:"zone,omitempty" db:"zone"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`

	OrganizationID string `json:"organization_id" db:"organization_id"`

	Confidence float64                `json:"confidence,omitempty" db:"confidence"`
	Evidence   []string               `json:"evidence,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`

	ActionsTaken      []string `json:"actions_taken,omitempty"`
	AutonomousActions []string `json:"autonomous_actions,omitempty"`

	AssignedTo     string     `json:"assigned_to,omitempty" db:"assigned_to"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	ResolvedBy     string     `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`

	EscalationLevel int               `json:"escalation_level" db:"escalation_level"`
	EscalatedAt     *time.Time        `json:"escalated_at,omitempty" db:"escalated_at"`
	EscalationPath  []EscalationEntry `json:"escalation_path,omitempty"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`

	NotificationsSent []NotificationReceipt `json:"notifications_sent,omitempty"`
}

// NewAlert creates an alert in the ACTIVE state with a generated id.
func NewAlert(alertType AlertType, severity AlertSeverity, title, description, organizationID, source string) *Alert {
	return &Alert{
		ID:             utils.NewAlertID(),
		Type:           alertType,
		Severity:       severity,
		Status:         StatusActive,
		Title:          title,
		Description:    description,
		OrganizationID: organizationID,
		Source:         source,
		Metadata:       make(map[string]interface{}),
		CreatedAt:      time.Now(),
	}
}

// CanTransitionTo reports whether the documented status graph permits moving
// from the alert's current status to next.
func (a *Alert) CanTransitionTo(next AlertStatus) bool {
	if a.Status.Terminal() {
		return false
	}
	switch next {
	case StatusAcknowledged:
		return a.Status == StatusPending || a.Status == StatusActive || a.Status == StatusEscalated
	case StatusResolved:
		return a.Status == StatusActive || a.Status == StatusAcknowledged ||
			a.Status == StatusPending || a.Status == StatusEscalated
	case StatusEscalated:
		return a.Status == StatusActive || a.Status == StatusAcknowledged
	case StatusDismissed:
		return true
	default:
		return false
	}
}

// Touch updates the alert's updated_at timestamp.
func (a *Alert) Touch(now time.Time) {
	a.UpdatedAt = &now
}

// AlertFilter narrows queries over alerts.
type AlertFilter struct {
	OrganizationID string         `json:"organization_id,omitempty"`
	Severity       *AlertSeverity `json:"severity,omitempty"`
	Type           *AlertType     `json:"type,omitempty"`
	Status         *AlertStatus   `json:"status,omitempty"`
	SiteID         string         `json:"site_id,omitempty"`
	CameraID       string         `json:"camera_id,omitempty"`
	Limit          int            `json:"limit,omitempty"`
	Offset         int            `json:"offset,omitempty"`
}
