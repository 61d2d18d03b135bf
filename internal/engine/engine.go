package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/internal/storage"
	"github.com/safesite/alert-engine/pkg/utils"
)

// Engine defines the alert lifecycle interface
type Engine interface {
	// Alert lifecycle
	CreateAlert(ctx context.Context, input CreateAlertInput) *models.Alert
	AcknowledgeAlert(id, userID, notes string) error
	ResolveAlert(id, userID, resolutionNotes string) error
	DismissAlert(id, userID, reason string) error
	GetAlert(id string) (*models.Alert, error)
	GetActiveAlerts(organizationID string, filter models.AlertFilter) []*models.Alert
	GetStats(organizationID string) *AlertStats

	// Detection intake
	EvaluateDetection(ctx context.Context, detection *models.DetectionResult, rules []*models.AlertRule) []*models.Alert

	// Autonomous actions
	ExecuteAutonomousActions(ctx context.Context, alert *models.Alert, rule *models.AlertRule) []*models.AlertAction

	// Rule management
	AddRule(rule *models.AlertRule) error
	UpdateRule(rule *models.AlertRule) error
	RemoveRule(ruleID string) error
	GetRules(organizationID string) []*models.AlertRule
	MatchRule(alertType models.AlertType, siteID, cameraID string, confidence float64, organizationID string) *models.AlertRule
}

// AlertEngine implements the Engine interface. It is the sole owner of alert
// identity and lifecycle; other components hold references only.
type AlertEngine struct {
	registry *ActiveRegistry
	actuator ActuatorGateway
	store    storage.Store
	logger   *logrus.Logger

	mu          sync.RWMutex
	activeIDs   map[string]struct{}
	alertCounts map[string]int64
	rules       map[string]*models.AlertRule
}

// AlertStats aggregates active-alert counts for an organization.
type AlertStats struct {
	TotalAlerts  int64                          `json:"total_alerts"`
	ActiveAlerts int                            `json:"active_alerts"`
	BySeverity   map[models.AlertSeverity]int   `json:"by_severity"`
	ByStatus     map[models.AlertStatus]int     `json:"by_status"`
	ByType       map[models.AlertType]int       `json:"by_type"`
}

// CreateAlertInput carries the fields for a new alert. Origin-agnostic: the
// same input serves detector findings and manual operator reports.
type CreateAlertInput struct {
	Type                 models.AlertType
	Severity             models.AlertSeverity
	Title                string
	TitleLocalized       string
	Description          string
	DescriptionLocalized string
	OrganizationID       string
	Source               string
	SourceID             string
	CameraID             string
	SiteID               string
	Zone                 string
	Confidence           float64
	Evidence             []string
	Metadata             map[string]interface{}
}

// NewAlertEngine creates a new alert engine. The store may be nil, in which
// case the engine runs purely in-memory; the actuator may be nil when no
// physical actions are configured.
func NewAlertEngine(actuator ActuatorGateway, store storage.Store) *AlertEngine {
	return &AlertEngine{
		registry:    NewActiveRegistry(),
		actuator:    actuator,
		store:       store,
		logger:      utils.GetLogger(),
		activeIDs:   make(map[string]struct{}),
		alertCounts: make(map[string]int64),
		rules:       make(map[string]*models.AlertRule),
	}
}

// CreateAlert allocates a new alert, registers it and bumps the
// organization counter. No I/O besides best-effort persistence.
func (e *AlertEngine) CreateAlert(ctx context.Context, input CreateAlertInput) *models.Alert {
	alert := models.NewAlert(input.Type, input.Severity, input.Title, input.Description, input.OrganizationID, input.Source)
	alert.TitleLocalized = input.TitleLocalized
	alert.DescriptionLocalized = input.DescriptionLocalized
	alert.SourceID = input.SourceID
	alert.CameraID = input.CameraID
	alert.SiteID = input.SiteID
	alert.Zone = input.Zone
	alert.Confidence = input.Confidence
	alert.Evidence = input.Evidence
	if input.Metadata != nil {
		alert.Metadata = input.Metadata
	}

	e.registry.Add(alert)

	e.mu.Lock()
	e.activeIDs[alert.ID] = struct{}{}
	e.alertCounts[alert.OrganizationID]++
	e.mu.Unlock()

	e.persistAlert(ctx, alert)

	e.logger.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"type":     alert.Type,
		"severity": alert.Severity,
		"org_id":   alert.OrganizationID,
	}).Info("Alert created")

	return alert
}

// AcknowledgeAlert marks an alert as acknowledged by a user. Acknowledging
// does not cancel a scheduled escalation; callers that want to stop the
// chain must also call EscalationManager.CancelEscalation.
func (e *AlertEngine) AcknowledgeAlert(id, userID, notes string) error {
	err := e.registry.Update(id, func(alert *models.Alert) error {
		if alert.Status == models.StatusAcknowledged {
			return utils.NewAppError(utils.ErrCodeInvalidTransition, "Alert already acknowledged", id)
		}
		if !alert.CanTransitionTo(models.StatusAcknowledged) {
			return utils.NewAppError(utils.ErrCodeInvalidTransition, "Alert cannot be acknowledged in its current status", string(alert.Status))
		}

		now := time.Now()
		alert.Status = models.StatusAcknowledged
		alert.AcknowledgedBy = userID
		alert.AcknowledgedAt = &now
		alert.Touch(now)

		if notes != "" {
			appendNote(alert, "acknowledgment_notes", userID, notes, now)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{"alert_id": id, "user_id": userID}).Info("Alert acknowledged")
	return nil
}

// ResolveAlert marks an alert as resolved and removes it from the active
// set. Irreversible: a second resolve returns INVALID_TRANSITION.
func (e *AlertEngine) ResolveAlert(id, userID, resolutionNotes string) error {
	var orgID string
	err := e.registry.Update(id, func(alert *models.Alert) error {
		if alert.Status == models.StatusResolved {
			return utils.NewAppError(utils.ErrCodeInvalidTransition, "Alert already resolved", id)
		}
		if !alert.CanTransitionTo(models.StatusResolved) {
			return utils.NewAppError(utils.ErrCodeInvalidTransition, "Alert cannot be resolved in its current status", string(alert.Status))
		}

		now := time.Now()
		alert.Status = models.StatusResolved
		alert.ResolvedBy = userID
		alert.ResolvedAt = &now
		alert.Touch(now)

		alert.Metadata["resolution"] = map[string]interface{}{
			"user_id":     userID,
			"notes":       resolutionNotes,
			"resolved_at": now.Format(time.RFC3339),
		}
		orgID = alert.OrganizationID
		return nil
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.activeIDs, id)
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{"alert_id": id, "user_id": userID, "org_id": orgID}).Info("Alert resolved")
	return nil
}

// DismissAlert moves any non-terminal alert to the DISMISSED terminal state.
func (e *AlertEngine) DismissAlert(id, userID, reason string) error {
	err := e.registry.Update(id, func(alert *models.Alert) error {
		if !alert.CanTransitionTo(models.StatusDismissed) {
			return utils.NewAppError(utils.ErrCodeInvalidTransition, "Alert is already in a terminal status", string(alert.Status))
		}

		now := time.Now()
		alert.Status = models.StatusDismissed
		alert.Touch(now)
		if reason != "" {
			appendNote(alert, "dismissal_notes", userID, reason, now)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.activeIDs, id)
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{"alert_id": id, "user_id": userID}).Info("Alert dismissed")
	return nil
}

// GetAlert returns the alert for id, resolved or not.
func (e *AlertEngine) GetAlert(id string) (*models.Alert, error) {
	alert, ok := e.registry.Get(id)
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Alert not found", id)
	}
	return alert, nil
}

// UpdateAlert runs fn under the alert's own lock. Used by collaborators
// (escalation manager) that must mutate alert state without racing the
// engine.
func (e *AlertEngine) UpdateAlert(id string, fn func(*models.Alert) error) error {
	return e.registry.Update(id, fn)
}

// ActiveAlerts returns every unresolved alert across all organizations.
// Used by the escalation sweep.
func (e *AlertEngine) ActiveAlerts() []*models.Alert {
	e.mu.RLock()
	ids := make([]string, 0, len(e.activeIDs))
	for id := range e.activeIDs {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	alerts := make([]*models.Alert, 0, len(ids))
	for _, id := range ids {
		if alert, ok := e.registry.Get(id); ok && !alert.Status.Terminal() {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// GetActiveAlerts returns unresolved alerts for an organization, newest
// first, optionally narrowed by filter. O(n) over active alerts.
func (e *AlertEngine) GetActiveAlerts(organizationID string, filter models.AlertFilter) []*models.Alert {
	e.mu.RLock()
	ids := make([]string, 0, len(e.activeIDs))
	for id := range e.activeIDs {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	alerts := make([]*models.Alert, 0, len(ids))
	for _, id := range ids {
		alert, ok := e.registry.Get(id)
		if !ok || alert.OrganizationID != organizationID {
			continue
		}
		if alert.Status.Terminal() {
			continue
		}
		if filter.Severity != nil && alert.Severity != *filter.Severity {
			continue
		}
		if filter.Type != nil && alert.Type != *filter.Type {
			continue
		}
		if filter.Status != nil && alert.Status != *filter.Status {
			continue
		}
		if filter.SiteID != "" && alert.SiteID != filter.SiteID {
			continue
		}
		if filter.CameraID != "" && alert.CameraID != filter.CameraID {
			continue
		}
		alerts = append(alerts, alert)
	}

	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})

	if filter.Limit > 0 && len(alerts) > filter.Limit {
		alerts = alerts[:filter.Limit]
	}
	return alerts
}

// GetStats aggregates alert counts for an organization.
func (e *AlertEngine) GetStats(organizationID string) *AlertStats {
	active := e.GetActiveAlerts(organizationID, models.AlertFilter{})

	e.mu.RLock()
	total := e.alertCounts[organizationID]
	e.mu.RUnlock()

	stats := &AlertStats{
		TotalAlerts:  total,
		ActiveAlerts: len(active),
		BySeverity:   make(map[models.AlertSeverity]int),
		ByStatus:     make(map[models.AlertStatus]int),
		ByType:       make(map[models.AlertType]int),
	}
	for _, alert := range active {
		stats.BySeverity[alert.Severity]++
		stats.ByStatus[alert.Status]++
		stats.ByType[alert.Type]++
	}
	return stats
}

// ExecuteAutonomousActions runs the rule's non-notification actions through
// the actuator gateway. The batch is best-effort, never transactional:
// failures are recorded on the individual action and do not stop the rest.
func (e *AlertEngine) ExecuteAutonomousActions(ctx context.Context, alert *models.Alert, rule *models.AlertRule) []*models.AlertAction {
	actions := make([]*models.AlertAction, 0, len(rule.Actions))

	for _, actionType := range rule.Actions {
		if actionType.IsNotification() {
			continue
		}

		action := models.NewAlertAction(alert.ID, actionType)
		action.Status = models.ActionStatusExecuting
		now := time.Now()
		action.ExecutedAt = &now

		result, err := e.callActuator(ctx, actionType, alert, rule)

		completed := time.Now()
		action.CompletedAt = &completed
		if err != nil {
			action.Status = models.ActionStatusFailed
			action.Success = false
			action.Error = err.Error()
			e.logger.WithFields(logrus.Fields{
				"alert_id":    alert.ID,
				"action_type": actionType,
				"error":       err.Error(),
			}).Warn("Autonomous action failed")
		} else {
			action.Status = models.ActionStatusCompleted
			action.Success = true
			action.Result = result
			e.logger.WithFields(logrus.Fields{
				"alert_id":    alert.ID,
				"action_type": actionType,
			}).Info("Autonomous action executed")
		}

		actions = append(actions, action)
		alert.AutonomousActions = append(alert.AutonomousActions, action.ID)

		if e.store != nil {
			if err := e.store.SaveAction(ctx, action); err != nil {
				e.logger.WithFields(logrus.Fields{"action_id": action.ID, "error": err.Error()}).Warn("Failed to persist action")
			}
		}
	}

	return actions
}

func (e *AlertEngine) callActuator(ctx context.Context, actionType models.ActionType, alert *models.Alert, rule *models.AlertRule) (map[string]interface{}, error) {
	if e.actuator == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "No actuator gateway configured", string(actionType))
	}
	return e.actuator.Call(ctx, actionType, alert, rule)
}

// AddRule registers an alert rule.
func (e *AlertEngine) AddRule(rule *models.AlertRule) error {
	if rule.ID == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Rule id is required", "")
	}
	e.mu.Lock()
	e.rules[rule.ID] = rule
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{"rule_id": rule.ID, "name": rule.Name}).Info("Alert rule added")
	return nil
}

// UpdateRule replaces an existing rule.
func (e *AlertEngine) UpdateRule(rule *models.AlertRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[rule.ID]; !ok {
		return utils.NewAppError(utils.ErrCodeNotFound, "Rule not found", rule.ID)
	}
	now := time.Now()
	rule.UpdatedAt = &now
	e.rules[rule.ID] = rule
	return nil
}

// RemoveRule deletes a rule.
func (e *AlertEngine) RemoveRule(ruleID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[ruleID]; !ok {
		return utils.NewAppError(utils.ErrCodeNotFound, "Rule not found", ruleID)
	}
	delete(e.rules, ruleID)
	return nil
}

// GetRules returns the rules for an organization sorted by the matching
// order: priority descending, narrower scope first, earliest created first.
func (e *AlertEngine) GetRules(organizationID string) []*models.AlertRule {
	e.mu.RLock()
	rules := make([]*models.AlertRule, 0, len(e.rules))
	for _, rule := range e.rules {
		if rule.OrganizationID == organizationID {
			rules = append(rules, rule)
		}
	}
	e.mu.RUnlock()

	sortRulesForMatching(rules)
	return rules
}

// MatchRule deterministically selects the applicable rule for an alert
// signature: highest priority wins, then the narrowest scope, then the
// earliest created. Returns nil when no rule matches (a valid no-op).
func (e *AlertEngine) MatchRule(alertType models.AlertType, siteID, cameraID string, confidence float64, organizationID string) *models.AlertRule {
	candidates := e.GetRules(organizationID)
	return matchRule(candidates, alertType, siteID, cameraID, confidence)
}

func matchRule(rules []*models.AlertRule, alertType models.AlertType, siteID, cameraID string, confidence float64) *models.AlertRule {
	sortRulesForMatching(rules)
	for _, rule := range rules {
		if !rule.IsActive || rule.TriggerType != alertType {
			continue
		}
		if !rule.MatchesScope(siteID, cameraID) {
			continue
		}
		if confidence < rule.Conditions.EffectiveConfidenceThreshold() {
			continue
		}
		return rule
	}
	return nil
}

func sortRulesForMatching(rules []*models.AlertRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		if rules[i].ScopeSize() != rules[j].ScopeSize() {
			return rules[i].ScopeSize() > rules[j].ScopeSize()
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
}

func (e *AlertEngine) persistAlert(ctx context.Context, alert *models.Alert) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveAlert(ctx, alert); err != nil {
		e.logger.WithFields(logrus.Fields{"alert_id": alert.ID, "error": err.Error()}).Warn("Failed to persist alert")
	}
}

func appendNote(alert *models.Alert, key, userID, notes string, ts time.Time) {
	entry := map[string]interface{}{
		"user_id":   userID,
		"notes":     notes,
		"timestamp": ts.Format(time.RFC3339),
	}
	existing, _ := alert.Metadata[key].([]interface{})
	alert.Metadata[key] = append(existing, entry)
}
