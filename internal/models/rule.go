package models

import (
	"time"

	"github.com/safesite/alert-engine/pkg/utils"
)

// DefaultConfidenceThreshold applies when a rule does not set its own.
const DefaultConfidenceThreshold = 0.8

// RuleConditions holds the named, validated trigger conditions of an
// AlertRule. Extra carries forward-compatible keys that have no typed field
// yet.
type RuleConditions struct {
	ConfidenceThreshold float64                `json:"confidence_threshold,omitempty"`
	DurationSeconds     int                    `json:"duration_seconds,omitempty"`
	Extra               map[string]interface{} `json:"extra,omitempty"`
}

// EffectiveConfidenceThreshold returns the configured threshold or the
// default when unset.
func (c RuleConditions) EffectiveConfidenceThreshold() float64 {
	if c.ConfidenceThreshold > 0 {
		return c.ConfidenceThreshold
	}
	return DefaultConfidenceThreshold
}

// AlertRule configures automatic alert generation and response.
type AlertRule struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`

	TriggerType AlertType     `json:"trigger_type" db:"trigger_type"`
	Severity    AlertSeverity `json:"severity" db:"severity"`

	Conditions RuleConditions `json:"conditions"`

	Actions []ActionType `json:"actions,omitempty"`

	NotifyChannels []ChannelType `json:"notify_channels,omitempty"`
	NotifyRoles    []string      `json:"notify_roles,omitempty"`
	NotifyUsers    []string      `json:"notify_users,omitempty"`

	EnableEscalation       bool `json:"enable_escalation" db:"enable_escalation"`
	EscalationDelayMinutes int  `json:"escalation_delay_minutes" db:"escalation_delay_minutes"`

	OrganizationID string   `json:"organization_id" db:"organization_id"`
	Sites          []string `json:"sites,omitempty"`   // empty = all sites
	Cameras        []string `json:"cameras,omitempty"` // empty = all cameras

	IsActive bool `json:"is_active" db:"is_active"`
	Priority int  `json:"priority" db:"priority"` // higher number = higher priority

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	CreatedBy string     `json:"created_by,omitempty" db:"created_by"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// NewAlertRule creates an active rule with a generated id.
func NewAlertRule(name string, triggerType AlertType, severity AlertSeverity, organizationID string) *AlertRule {
	return &AlertRule{
		ID:                     utils.NewRuleID(),
		Name:                   name,
		TriggerType:            triggerType,
		Severity:               severity,
		OrganizationID:         organizationID,
		EscalationDelayMinutes: 15,
		IsActive:               true,
		Priority:               1,
		CreatedAt:              time.Now(),
	}
}

// ScopeSize counts the scope filters a rule carries. A larger count means a
// narrower scope, which wins ties during rule matching.
func (r *AlertRule) ScopeSize() int {
	return len(r.Sites) + len(r.Cameras)
}

// MatchesScope reports whether the rule applies to the given site and camera.
// Empty filter lists match everything.
func (r *AlertRule) MatchesScope(siteID, cameraID string) bool {
	if len(r.Sites) > 0 && !containsString(r.Sites, siteID) {
		return false
	}
	if len(r.Cameras) > 0 && !containsString(r.Cameras, cameraID) {
		return false
	}
	return true
}

// EscalationLevel is one ordered step in an escalation chain.
type EscalationLevel struct {
	Level        int           `json:"level"`
	DelayMinutes int           `json:"delay_minutes"`
	NotifyRoles  []string      `json:"notify_roles,omitempty"`
	NotifyUsers  []string      `json:"notify_users,omitempty"`
	Channels     []ChannelType `json:"channels,omitempty"`
	Actions      []ActionType  `json:"actions,omitempty"`
}

// EscalationRule defines the escalation path for unresolved alerts.
type EscalationRule struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	AlertTypes  []AlertType   `json:"alert_types,omitempty"` // empty = all types
	MinSeverity AlertSeverity `json:"min_severity" db:"min_severity"`

	EscalationLevels []EscalationLevel `json:"escalation_levels"`

	OrganizationID string `json:"organization_id" db:"organization_id"`

	IsActive bool `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewEscalationRule creates an active escalation rule with a generated id.
func NewEscalationRule(name string, minSeverity AlertSeverity, organizationID string) *EscalationRule {
	return &EscalationRule{
		ID:             utils.NewEscalationRuleID(),
		Name:           name,
		MinSeverity:    minSeverity,
		OrganizationID: organizationID,
		IsActive:       true,
		CreatedAt:      time.Now(),
	}
}

// AppliesTo reports whether the rule covers the alert's organization, type
// and severity. An empty AlertTypes list is a wildcard.
func (r *EscalationRule) AppliesTo(alert *Alert) bool {
	if r.OrganizationID != alert.OrganizationID {
		return false
	}
	if len(r.AlertTypes) > 0 {
		found := false
		for _, t := range r.AlertTypes {
			if t == alert.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return alert.Severity.AtLeast(r.MinSeverity)
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
