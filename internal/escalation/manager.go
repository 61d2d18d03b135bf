// File: internal/escalation/manager.go
package escalation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/pkg/utils"
)

// AlertAccessor is the slice of the alert engine the escalation manager
// needs: listing active alerts for the sweep and mutating one alert under
// its own lock.
type AlertAccessor interface {
	ActiveAlerts() []*models.Alert
	UpdateAlert(id string, fn func(*models.Alert) error) error
}

// Notifier receives executed escalation steps for delivery. Implemented by
// the notification dispatcher; delivery is best-effort and must not block
// the escalation chain.
type Notifier interface {
	NotifyEscalation(ctx context.Context, alert *models.Alert, entry models.EscalationEntry, recipients []*models.Recipient, channels []models.ChannelType)
}

// Stats aggregates escalation manager counters.
type Stats struct {
	ActiveTimers         int   `json:"active_timers"`
	EscalationsExecuted  int64 `json:"escalations_executed"`
	EscalationsCancelled int64 `json:"escalations_cancelled"`
	ChainsExhausted      int64 `json:"chains_exhausted"`
	RulesConfigured      int   `json:"rules_configured"`
}

// escalationTimer is one armed timer for one alert. cancelled is checked by
// the fire handler: cancellation only prevents future fires, a handler that
// already started runs its own status re-check instead.
type escalationTimer struct {
	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
	dueAt     time.Time
}

func (t *escalationTimer) cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	t.cancelled = true
	if t.timer != nil {
		t.timer.Stop()
	}
	return true
}

func (t *escalationTimer) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Manager drives time-based escalation of unresolved alerts. Each alert has
// at most one armed timer; scheduling a new check always cancels the
// previous one first.
type Manager struct {
	mu     sync.RWMutex
	rules  map[string]*models.EscalationRule
	timers map[string]*escalationTimer

	alerts    AlertAccessor
	directory models.RecipientDirectory
	notifier  Notifier
	logger    *logrus.Logger

	// now is injectable for deterministic readiness tests.
	now func() time.Time

	checkInterval time.Duration
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	running       bool

	executed  int64
	cancelled int64
	exhausted int64
}

// NewManager creates an escalation manager. The directory and notifier may
// be nil; escalation then still advances levels and records the audit trail
// but delivers nothing.
func NewManager(alerts AlertAccessor, directory models.RecipientDirectory, notifier Notifier) *Manager {
	return &Manager{
		rules:         make(map[string]*models.EscalationRule),
		timers:        make(map[string]*escalationTimer),
		alerts:        alerts,
		directory:     directory,
		notifier:      notifier,
		logger:        utils.GetLogger(),
		now:           time.Now,
		checkInterval: time.Minute,
	}
}

// SetCheckInterval changes the sweep interval. Call before StartMonitoring.
func (m *Manager) SetCheckInterval(interval time.Duration) {
	if interval > 0 {
		m.checkInterval = interval
	}
}

// AddRule registers an escalation rule.
func (m *Manager) AddRule(rule *models.EscalationRule) error {
	if rule.ID == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Escalation rule id is required", "")
	}
	if len(rule.EscalationLevels) == 0 {
		return utils.NewAppError(utils.ErrCodeValidation, "Escalation rule must define at least one level", rule.ID)
	}

	m.mu.Lock()
	m.rules[rule.ID] = rule
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"rule_id": rule.ID,
		"name":    rule.Name,
		"levels":  len(rule.EscalationLevels),
	}).Info("Escalation rule added")
	return nil
}

// RemoveRule deletes an escalation rule.
func (m *Manager) RemoveRule(ruleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[ruleID]; !ok {
		return utils.NewAppError(utils.ErrCodeNotFound, "Escalation rule not found", ruleID)
	}
	delete(m.rules, ruleID)
	return nil
}

// GetRules returns the escalation rules for an organization, earliest
// created first.
func (m *Manager) GetRules(organizationID string) []*models.EscalationRule {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rules []*models.EscalationRule
	for _, rule := range m.rules {
		if rule.OrganizationID == organizationID {
			rules = append(rules, rule)
		}
	}
	sortRulesByAge(rules)
	return rules
}

// FindRule returns the escalation rule governing an alert: the earliest
// created active rule whose organization, alert types and minimum severity
// cover it. Nil when the alert escalates under no rule.
func (m *Manager) FindRule(alert *models.Alert) *models.EscalationRule {
	m.mu.RLock()
	var candidates []*models.EscalationRule
	for _, rule := range m.rules {
		if rule.IsActive && rule.AppliesTo(alert) {
			candidates = append(candidates, rule)
		}
	}
	m.mu.RUnlock()

	if len(candidates) == 0 {
		return nil
	}
	sortRulesByAge(candidates)
	return candidates[0]
}

// NextLevel returns the escalation level the alert would advance to, or
// false when the chain is exhausted. Levels are consumed in order;
// alert.EscalationLevel counts completed steps.
func (m *Manager) NextLevel(alert *models.Alert, rule *models.EscalationRule) (models.EscalationLevel, bool) {
	if alert.EscalationLevel >= len(rule.EscalationLevels) {
		return models.EscalationLevel{}, false
	}
	return rule.EscalationLevels[alert.EscalationLevel], true
}

// CheckEscalation reports whether an alert is due for its next escalation
// step. The first step counts its delay from alert creation, every later
// step from the previous escalation.
func (m *Manager) CheckEscalation(alert *models.Alert) (due bool, at time.Time) {
	if alert.Status != models.StatusActive && alert.Status != models.StatusAcknowledged &&
		alert.Status != models.StatusEscalated {
		return false, time.Time{}
	}

	rule := m.FindRule(alert)
	if rule == nil {
		return false, time.Time{}
	}
	level, ok := m.NextLevel(alert, rule)
	if !ok {
		return false, time.Time{}
	}

	since := alert.CreatedAt
	if alert.EscalationLevel > 0 && alert.EscalatedAt != nil {
		since = *alert.EscalatedAt
	}
	at = since.Add(time.Duration(level.DelayMinutes) * time.Minute)
	return !m.now().Before(at), at
}

// ScheduleEscalation arms the escalation timer for an alert. Any previously
// armed timer is cancelled first, preserving the one-timer-per-alert
// invariant.
func (m *Manager) ScheduleEscalation(alertID string, delay time.Duration) {
	t := &escalationTimer{dueAt: m.now().Add(delay)}

	m.mu.Lock()
	if prev, ok := m.timers[alertID]; ok {
		if prev.cancel() {
			m.cancelled++
		}
	}
	m.timers[alertID] = t
	m.mu.Unlock()

	// Arm under the timer's own lock so a concurrent cancel either stops the
	// armed timer or prevents arming entirely.
	t.mu.Lock()
	if !t.cancelled {
		t.timer = time.AfterFunc(delay, func() {
			if t.isCancelled() {
				return
			}
			m.Escalate(context.Background(), alertID)
		})
	}
	t.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"alert_id": alertID,
		"delay":    delay.String(),
	}).Debug("Escalation timer armed")
}

// CancelEscalation disarms the alert's escalation timer. Idempotent and
// race-safe: a handler that already fired completes its own status re-check,
// so cancelling late cannot corrupt state.
func (m *Manager) CancelEscalation(alertID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[alertID]
	if !ok {
		return
	}
	delete(m.timers, alertID)
	if t.cancel() {
		m.cancelled++
		m.logger.WithField("alert_id", alertID).Debug("Escalation cancelled")
	}
}

// Escalate executes one escalation step for an alert. Status and readiness
// are re-checked under the alert's lock: an alert resolved or dismissed since
// the timer was armed escalates nothing, and a fire arriving before the next
// level has aged its full delay re-arms the timer for the remainder instead
// of advancing early. Returns whether the step ran.
func (m *Manager) Escalate(ctx context.Context, alertID string) bool {
	var (
		entry      models.EscalationEntry
		recipients []*models.Recipient
		channels   []models.ChannelType
		snapshot   *models.Alert
		moreLevels bool
		nextDelay  time.Duration
		notYetDue  bool
		remaining  time.Duration
	)

	err := m.alerts.UpdateAlert(alertID, func(alert *models.Alert) error {
		if alert.Status != models.StatusActive && alert.Status != models.StatusAcknowledged &&
			alert.Status != models.StatusEscalated {
			return utils.NewAppError(utils.ErrCodeInvalidTransition, "Alert no longer eligible for escalation", string(alert.Status))
		}

		rule := m.FindRule(alert)
		if rule == nil {
			return utils.NewAppError(utils.ErrCodeNotFound, "No escalation rule applies", alertID)
		}
		level, ok := m.NextLevel(alert, rule)
		if !ok {
			m.mu.Lock()
			m.exhausted++
			m.mu.Unlock()
			return utils.NewAppError(utils.ErrCodeInvalidTransition, "Escalation chain exhausted", alertID)
		}

		since := alert.CreatedAt
		if alert.EscalationLevel > 0 && alert.EscalatedAt != nil {
			since = *alert.EscalatedAt
		}
		dueAt := since.Add(time.Duration(level.DelayMinutes) * time.Minute)
		if now := m.now(); now.Before(dueAt) {
			notYetDue = true
			remaining = dueAt.Sub(now)
			return utils.NewAppError(utils.ErrCodeInvalidTransition, "Escalation level not yet due", alertID)
		}

		recipients = m.resolveRecipients(alert.OrganizationID, level)
		channels = level.Channels
		if len(channels) == 0 {
			channels = models.DefaultEscalationChannels
		}

		now := m.now()
		alert.Status = models.StatusEscalated
		alert.EscalationLevel++
		alert.EscalatedAt = &now
		alert.Touch(now)

		entry = models.EscalationEntry{
			Level:       alert.EscalationLevel,
			EscalatedAt: now,
			RuleID:      rule.ID,
			Recipients:  recipientIDs(recipients),
			Channels:    channelNames(channels),
			Actions:     actionNames(level.Actions),
		}
		alert.EscalationPath = append(alert.EscalationPath, entry)

		copied := *alert
		snapshot = &copied

		if next, ok := m.NextLevel(alert, rule); ok {
			moreLevels = true
			nextDelay = time.Duration(next.DelayMinutes) * time.Minute
		}
		return nil
	})
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"alert_id": alertID,
			"reason":   err.Error(),
		}).Debug("Escalation skipped")
		if notYetDue {
			m.ScheduleEscalation(alertID, remaining)
		} else {
			m.clearTimer(alertID)
		}
		return false
	}

	m.mu.Lock()
	m.executed++
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"alert_id":   alertID,
		"level":      entry.Level,
		"recipients": len(recipients),
		"channels":   entry.Channels,
	}).Info("Alert escalated")

	if m.notifier != nil {
		m.notifier.NotifyEscalation(ctx, snapshot, entry, recipients, channels)
	}

	if moreLevels {
		m.ScheduleEscalation(alertID, nextDelay)
	} else {
		m.clearTimer(alertID)
	}
	return true
}

// StartMonitoring runs a periodic sweep that escalates any alert whose
// timer was lost (process restart) or whose readiness was reached between
// ticks. Timers remain the primary trigger; the sweep is the safety net.
func (m *Manager) StartMonitoring(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep(ctx)
			}
		}
	}()

	m.logger.WithField("interval", m.checkInterval.String()).Info("Escalation monitoring started")
}

// StopMonitoring stops the sweep and disarms all timers.
func (m *Manager) StopMonitoring() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	for id, t := range m.timers {
		if t.cancel() {
			m.cancelled++
		}
		delete(m.timers, id)
	}
	m.mu.Unlock()

	m.logger.Info("Escalation monitoring stopped")
}

// GetStats returns current escalation counters.
func (m *Manager) GetStats() *Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Stats{
		ActiveTimers:         len(m.timers),
		EscalationsExecuted:  m.executed,
		EscalationsCancelled: m.cancelled,
		ChainsExhausted:      m.exhausted,
		RulesConfigured:      len(m.rules),
	}
}

// CreateDefaultRules installs the standard escalation chains for an
// organization: critical alerts walk supervisor, safety manager and site
// director; high alerts stop at the safety manager.
func (m *Manager) CreateDefaultRules(organizationID string) []*models.EscalationRule {
	critical := models.NewEscalationRule("Critical Alert Escalation", models.SeverityCritical, organizationID)
	critical.EscalationLevels = []models.EscalationLevel{
		{
			Level:        1,
			DelayMinutes: 5,
			NotifyRoles:  []string{"supervisor"},
			Channels:     []models.ChannelType{models.ChannelSMS, models.ChannelWhatsApp},
		},
		{
			Level:        2,
			DelayMinutes: 10,
			NotifyRoles:  []string{"safety_manager"},
			Channels:     models.DefaultEscalationChannels,
		},
		{
			Level:        3,
			DelayMinutes: 15,
			NotifyRoles:  []string{"site_director"},
			Channels:     models.DefaultEscalationChannels,
			Actions:      []models.ActionType{models.ActionCreateIncident},
		},
	}

	high := models.NewEscalationRule("High Alert Escalation", models.SeverityHigh, organizationID)
	high.EscalationLevels = []models.EscalationLevel{
		{
			Level:        1,
			DelayMinutes: 15,
			NotifyRoles:  []string{"supervisor"},
			Channels:     []models.ChannelType{models.ChannelSMS, models.ChannelEmail},
		},
		{
			Level:        2,
			DelayMinutes: 30,
			NotifyRoles:  []string{"safety_manager"},
			Channels:     models.DefaultEscalationChannels,
		},
	}

	rules := []*models.EscalationRule{critical, high}
	for _, rule := range rules {
		m.AddRule(rule)
	}
	return rules
}

func (m *Manager) sweep(ctx context.Context) {
	for _, alert := range m.alerts.ActiveAlerts() {
		if due, _ := m.CheckEscalation(alert); due {
			m.Escalate(ctx, alert.ID)
		}
	}
}

func (m *Manager) clearTimer(alertID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[alertID]; ok {
		t.cancel()
		delete(m.timers, alertID)
	}
}

// resolveRecipients expands a level's roles and user ids into the union of
// reachable recipients, deduplicated by id. An unknown user or an empty role
// is skipped silently.
func (m *Manager) resolveRecipients(organizationID string, level models.EscalationLevel) []*models.Recipient {
	if m.directory == nil {
		return nil
	}

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

	for _, role := range level.NotifyRoles {
		for _, r := range m.directory.RecipientsByRole(organizationID, role) {
			add(r)
		}
	}
	for _, userID := range level.NotifyUsers {
		if r, ok := m.directory.RecipientByID(organizationID, userID); ok {
			add(r)
		}
	}
	return recipients
}

func sortRulesByAge(rules []*models.EscalationRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
}

func recipientIDs(recipients []*models.Recipient) []string {
	ids := make([]string, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, r.ID)
	}
	return ids
}

func channelNames(channels []models.ChannelType) []string {
	names := make([]string, 0, len(channels))
	for _, c := range channels {
		names = append(names, string(c))
	}
	return names
}

func actionNames(actions []models.ActionType) []string {
	if len(actions) == 0 {
		return nil
	}
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, string(a))
	}
	return names
}
