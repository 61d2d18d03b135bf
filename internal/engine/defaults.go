// File: internal/engine/defaults.go
package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/safesite/alert-engine/internal/models"
)

// CreateDefaultRules seeds the standard response rules for a new
// organization. Idempotent only in effect: calling it twice registers a
// second set of rules, so callers guard it behind a configuration flag.
func (e *AlertEngine) CreateDefaultRules(organizationID string) []*models.AlertRule {
	ppe := models.NewAlertRule("PPE Violation Response", models.AlertTypePPEViolation, models.SeverityMedium, organizationID)
	ppe.Description = "Notify the supervisor when a worker is detected without required PPE"
	ppe.Conditions.ConfidenceThreshold = 0.8
	ppe.NotifyChannels = []models.ChannelType{models.ChannelSMS, models.ChannelEmail}
	ppe.NotifyRoles = []string{"supervisor"}
	ppe.EnableEscalation = true
	ppe.EscalationDelayMinutes = 15
	ppe.Priority = 5

	fall := models.NewAlertRule("Fall Detection Response", models.AlertTypeFallDetected, models.SeverityCritical, organizationID)
	fall.Description = "Sound the alarm and open an incident when a worker fall is detected"
	fall.Conditions.ConfidenceThreshold = 0.7
	fall.Actions = []models.ActionType{models.ActionSoundAlarm, models.ActionCreateIncident}
	fall.NotifyChannels = []models.ChannelType{models.ChannelSMS, models.ChannelWhatsApp, models.ChannelEmail}
	fall.NotifyRoles = []string{"supervisor", "safety_manager"}
	fall.EnableEscalation = true
	fall.EscalationDelayMinutes = 5
	fall.Priority = 10

	collision := models.NewAlertRule("Collision Risk Response", models.AlertTypeCollisionRisk, models.SeverityCritical, organizationID)
	collision.Description = "Stop nearby equipment when a worker is on a collision trajectory"
	collision.Conditions.ConfidenceThreshold = 0.7
	collision.Actions = []models.ActionType{models.ActionStopEquipment, models.ActionSoundAlarm}
	collision.NotifyChannels = []models.ChannelType{models.ChannelSMS, models.ChannelWhatsApp}
	collision.NotifyRoles = []string{"supervisor"}
	collision.EnableEscalation = true
	collision.EscalationDelayMinutes = 5
	collision.Priority = 10

	fatigue := models.NewAlertRule("Worker Fatigue Response", models.AlertTypeWorkerFatigue, models.SeverityHigh, organizationID)
	fatigue.Description = "Notify the supervisor when high or critical worker fatigue is detected"
	fatigue.Conditions.ConfidenceThreshold = 0.75
	fatigue.NotifyChannels = []models.ChannelType{models.ChannelSMS}
	fatigue.NotifyRoles = []string{"supervisor"}
	fatigue.EnableEscalation = true
	fatigue.EscalationDelayMinutes = 30
	fatigue.Priority = 5

	rules := []*models.AlertRule{ppe, fall, collision, fatigue}
	for _, rule := range rules {
		if err := e.AddRule(rule); err != nil {
			e.logger.WithFields(logrus.Fields{"rule": rule.Name, "error": err.Error()}).Warn("Failed to add default rule")
		}
	}

	e.logger.WithFields(logrus.Fields{
		"org_id": organizationID,
		"rules":  len(rules),
	}).Info("Default alert rules created")
	return rules
}
