// File: internal/engine/coordinator.go
package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/safesite/alert-engine/internal/escalation"
	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/internal/notification"
	"github.com/safesite/alert-engine/pkg/utils"
)

// Coordinator ties the alert engine, escalation manager and notification
// dispatcher together: detections become alerts, matched rules fire actions
// and notifications, and eligible alerts get their escalation timer armed.
type Coordinator struct {
	engine     *AlertEngine
	escalation *escalation.Manager
	dispatcher *notification.Dispatcher
	directory  models.RecipientDirectory
	logger     *logrus.Logger
}

// NewCoordinator creates a coordinator over already constructed components.
// The dispatcher and directory may be nil when notifications are disabled.
func NewCoordinator(engine *AlertEngine, escalationManager *escalation.Manager, dispatcher *notification.Dispatcher, directory models.RecipientDirectory) *Coordinator {
	return &Coordinator{
		engine:     engine,
		escalation: escalationManager,
		dispatcher: dispatcher,
		directory:  directory,
		logger:     utils.GetLogger(),
	}
}

// Engine returns the underlying alert engine.
func (c *Coordinator) Engine() *AlertEngine { return c.engine }

// Escalation returns the underlying escalation manager.
func (c *Coordinator) Escalation() *escalation.Manager { return c.escalation }

// Dispatcher returns the underlying notification dispatcher.
func (c *Coordinator) Dispatcher() *notification.Dispatcher { return c.dispatcher }

// Start begins background escalation monitoring.
func (c *Coordinator) Start(ctx context.Context) {
	if c.escalation != nil {
		c.escalation.StartMonitoring(ctx)
	}
}

// Stop halts background escalation monitoring and disarms timers.
func (c *Coordinator) Stop() {
	if c.escalation != nil {
		c.escalation.StopMonitoring()
	}
}

// ProcessDetection evaluates a detector payload and runs the full response
// pipeline for every alert it produces.
func (c *Coordinator) ProcessDetection(ctx context.Context, detection *models.DetectionResult) []*models.Alert {
	orgID := detection.OrganizationID
	if orgID == "" {
		orgID = defaultOrganizationID
	}

	rules := c.engine.GetRules(orgID)
	alerts := c.engine.EvaluateDetection(ctx, detection, rules)

	for _, alert := range alerts {
		c.respond(ctx, alert)
	}
	return alerts
}

// CreateAlert creates a manually reported alert and runs the response
// pipeline for it.
func (c *Coordinator) CreateAlert(ctx context.Context, input CreateAlertInput) *models.Alert {
	alert := c.engine.CreateAlert(ctx, input)
	c.respond(ctx, alert)
	return alert
}

// AcknowledgeAlert marks the alert acknowledged. The escalation timer stays
// armed: an acknowledged alert that nobody resolves keeps escalating.
func (c *Coordinator) AcknowledgeAlert(id, userID, notes string) error {
	return c.engine.AcknowledgeAlert(id, userID, notes)
}

// ResolveAlert resolves the alert and cancels its pending escalation.
func (c *Coordinator) ResolveAlert(id, userID, notes string) error {
	if err := c.engine.ResolveAlert(id, userID, notes); err != nil {
		return err
	}
	if c.escalation != nil {
		c.escalation.CancelEscalation(id)
	}
	return nil
}

// DismissAlert dismisses the alert and cancels its pending escalation.
func (c *Coordinator) DismissAlert(id, userID, reason string) error {
	if err := c.engine.DismissAlert(id, userID, reason); err != nil {
		return err
	}
	if c.escalation != nil {
		c.escalation.CancelEscalation(id)
	}
	return nil
}

// respond runs the per-alert response pipeline: matched rule actions, the
// initial notification fan-out, and escalation scheduling.
func (c *Coordinator) respond(ctx context.Context, alert *models.Alert) {
	rule := c.engine.MatchRule(alert.Type, alert.SiteID, alert.CameraID, alert.Confidence, alert.OrganizationID)

	if rule != nil {
		if len(rule.Actions) > 0 {
			c.engine.ExecuteAutonomousActions(ctx, alert, rule)
		}
		c.notifyForRule(ctx, alert, rule)
	}

	c.scheduleEscalation(alert, rule)
}

// notifyForRule fans the alert out to the rule's recipients on the rule's
// channels.
func (c *Coordinator) notifyForRule(ctx context.Context, alert *models.Alert, rule *models.AlertRule) {
	if c.dispatcher == nil || c.directory == nil {
		return
	}
	if len(rule.NotifyChannels) == 0 {
		return
	}

	recipients := c.resolveRuleRecipients(alert.OrganizationID, rule)
	if len(recipients) == 0 {
		return
	}
	c.dispatcher.SendAlertNotification(ctx, alert, recipients, rule.NotifyChannels)
}

func (c *Coordinator) resolveRuleRecipients(organizationID string, rule *models.AlertRule) []*models.Recipient {
	seen := make(map[string]struct{})
	var recipients []*models.Recipient

	add := func(r *models.Recipient) {
		if r == nil {
			return
		}
		if _, ok := seen[r.ID]; ok {
			return
		}
		seen[r.ID] = struct{}{}
		recipients = append(recipients, r)
	}

	for _, role := range rule.NotifyRoles {
		for _, r := range c.directory.RecipientsByRole(organizationID, role) {
			add(r)
		}
	}
	for _, userID := range rule.NotifyUsers {
		if r, ok := c.directory.RecipientByID(organizationID, userID); ok {
			add(r)
		}
	}
	return recipients
}

// scheduleEscalation arms the first escalation timer for a new alert. The
// alert rule's delay overrides the escalation rule's first level when the
// rule opts into escalation; otherwise the escalation rule's own first-level
// delay applies. The fire handler re-checks readiness against the level's
// delay, so an earlier timer re-arms for the remainder rather than
// escalating ahead of schedule.
func (c *Coordinator) scheduleEscalation(alert *models.Alert, rule *models.AlertRule) {
	if c.escalation == nil {
		return
	}

	escalationRule := c.escalation.FindRule(alert)
	if escalationRule == nil {
		return
	}
	level, ok := c.escalation.NextLevel(alert, escalationRule)
	if !ok {
		return
	}

	delayMinutes := level.DelayMinutes
	if rule != nil && rule.EnableEscalation && rule.EscalationDelayMinutes > 0 {
		delayMinutes = rule.EscalationDelayMinutes
	}

	c.escalation.ScheduleEscalation(alert.ID, time.Duration(delayMinutes)*time.Minute)

	c.logger.WithFields(logrus.Fields{
		"alert_id":      alert.ID,
		"delay_minutes": delayMinutes,
		"rule_id":       escalationRule.ID,
	}).Debug("Escalation scheduled for new alert")
}
