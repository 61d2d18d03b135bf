package escalation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/pkg/utils"
)

// fakeAlerts is a minimal AlertAccessor over a map.
type fakeAlerts struct {
	mu     sync.Mutex
	alerts map[string]*models.Alert
}

func newFakeAlerts() *fakeAlerts {
	return &fakeAlerts{alerts: make(map[string]*models.Alert)}
}

func (f *fakeAlerts) add(alert *models.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts[alert.ID] = alert
}

func (f *fakeAlerts) ActiveAlerts() []*models.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	var active []*models.Alert
	for _, alert := range f.alerts {
		if !alert.Status.Terminal() {
			active = append(active, alert)
		}
	}
	return active
}

func (f *fakeAlerts) UpdateAlert(id string, fn func(*models.Alert) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	alert, ok := f.alerts[id]
	if !ok {
		return utils.NewAppError(utils.ErrCodeNotFound, "Alert not found", id)
	}
	return fn(alert)
}

// fakeDirectory resolves recipients from a fixed list.
type fakeDirectory struct {
	recipients []*models.Recipient
}

func (d *fakeDirectory) RecipientsByRole(organizationID, role string) []*models.Recipient {
	var out []*models.Recipient
	for _, r := range d.recipients {
		if r.Role == role {
			out = append(out, r)
		}
	}
	return out
}

func (d *fakeDirectory) RecipientByID(organizationID, userID string) (*models.Recipient, bool) {
	for _, r := range d.recipients {
		if r.ID == userID {
			return r, true
		}
	}
	return nil, false
}

// fakeNotifier records executed escalation steps.
type fakeNotifier struct {
	mu      sync.Mutex
	entries []models.EscalationEntry
	counts  []int
}

func (n *fakeNotifier) NotifyEscalation(ctx context.Context, alert *models.Alert, entry models.EscalationEntry, recipients []*models.Recipient, channels []models.ChannelType) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, entry)
	n.counts = append(n.counts, len(recipients))
}

func testAlert(id string, severity models.AlertSeverity, createdAt time.Time) *models.Alert {
	return &models.Alert{
		ID:             id,
		Type:           models.AlertTypeFallDetected,
		Severity:       severity,
		Status:         models.StatusActive,
		Title:          "Worker Fall Detected",
		OrganizationID: "ORG-1",
		Metadata:       make(map[string]interface{}),
		CreatedAt:      createdAt,
	}
}

func twoLevelRule() *models.EscalationRule {
	rule := models.NewEscalationRule("critical chain", models.SeverityHigh, "ORG-1")
	rule.EscalationLevels = []models.EscalationLevel{
		{Level: 1, DelayMinutes: 5, NotifyRoles: []string{"supervisor"}, Channels: []models.ChannelType{models.ChannelSMS}},
		{Level: 2, DelayMinutes: 10, NotifyRoles: []string{"safety_manager"}},
	}
	return rule
}

func newTestManager(t *testing.T, alerts *fakeAlerts, notifier Notifier) *Manager {
	t.Helper()
	utils.InitLogger("error", "text", "stdout", "")
	directory := &fakeDirectory{recipients: []*models.Recipient{
		{ID: "sup-1", Role: "supervisor", Contacts: map[models.ChannelType]string{models.ChannelSMS: "15550001"}},
		{ID: "mgr-1", Role: "safety_manager", Contacts: map[models.ChannelType]string{models.ChannelSMS: "15550002"}},
	}}
	return NewManager(alerts, directory, notifier)
}

func TestAddRuleValidation(t *testing.T) {
	m := newTestManager(t, newFakeAlerts(), nil)

	err := m.AddRule(&models.EscalationRule{})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))

	err = m.AddRule(&models.EscalationRule{ID: "ESC-1"})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))

	require.NoError(t, m.AddRule(twoLevelRule()))
	assert.Equal(t, 1, m.GetStats().RulesConfigured)
	t.Logf("✓ Rule validation enforces id and at least one level")
}

func TestFindRule(t *testing.T) {
	m := newTestManager(t, newFakeAlerts(), nil)

	older := twoLevelRule()
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := twoLevelRule()
	require.NoError(t, m.AddRule(older))
	require.NoError(t, m.AddRule(newer))

	alert := testAlert("ALT-1", models.SeverityCritical, time.Now())
	got := m.FindRule(alert)
	require.NotNil(t, got)
	assert.Equal(t, older.ID, got.ID, "earliest created rule wins")

	// Below the minimum severity no rule applies
	low := testAlert("ALT-2", models.SeverityMedium, time.Now())
	assert.Nil(t, m.FindRule(low))

	// Inactive rules are skipped
	older.IsActive = false
	got = m.FindRule(alert)
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID)
	t.Logf("✓ Rule selection: earliest active applicable rule")
}

func TestCheckEscalation(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	alerts := newFakeAlerts()
	m := newTestManager(t, alerts, nil)
	m.now = func() time.Time { return now }
	require.NoError(t, m.AddRule(twoLevelRule()))

	t.Run("FirstLevelDue", func(t *testing.T) {
		alert := testAlert("ALT-1", models.SeverityCritical, now.Add(-6*time.Minute))
		due, at := m.CheckEscalation(alert)
		assert.True(t, due)
		assert.Equal(t, alert.CreatedAt.Add(5*time.Minute), at)
	})

	t.Run("FirstLevelNotYetDue", func(t *testing.T) {
		alert := testAlert("ALT-2", models.SeverityCritical, now.Add(-2*time.Minute))
		due, at := m.CheckEscalation(alert)
		assert.False(t, due)
		assert.Equal(t, alert.CreatedAt.Add(5*time.Minute), at)
	})

	t.Run("LaterLevelCountsFromPreviousEscalation", func(t *testing.T) {
		alert := testAlert("ALT-3", models.SeverityCritical, now.Add(-30*time.Minute))
		escalatedAt := now.Add(-4 * time.Minute)
		alert.Status = models.StatusEscalated
		alert.EscalationLevel = 1
		alert.EscalatedAt = &escalatedAt

		due, at := m.CheckEscalation(alert)
		assert.False(t, due, "second level delay runs from the previous escalation")
		assert.Equal(t, escalatedAt.Add(10*time.Minute), at)

		late := now.Add(-11 * time.Minute)
		alert.EscalatedAt = &late
		due, _ = m.CheckEscalation(alert)
		assert.True(t, due)
	})

	t.Run("AcknowledgedStillEligible", func(t *testing.T) {
		alert := testAlert("ALT-4", models.SeverityCritical, now.Add(-6*time.Minute))
		alert.Status = models.StatusAcknowledged
		due, _ := m.CheckEscalation(alert)
		assert.True(t, due, "acknowledgment does not stop the chain")
	})

	t.Run("ResolvedNotEligible", func(t *testing.T) {
		alert := testAlert("ALT-5", models.SeverityCritical, now.Add(-time.Hour))
		alert.Status = models.StatusResolved
		due, _ := m.CheckEscalation(alert)
		assert.False(t, due)
	})

	t.Run("NoRuleNotEligible", func(t *testing.T) {
		alert := testAlert("ALT-6", models.SeverityMedium, now.Add(-time.Hour))
		due, _ := m.CheckEscalation(alert)
		assert.False(t, due)
	})
	t.Logf("✓ Escalation readiness verified")
}

func TestEscalateWalksTheChain(t *testing.T) {
	current := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	alerts := newFakeAlerts()
	notifier := &fakeNotifier{}
	m := newTestManager(t, alerts, notifier)
	m.now = func() time.Time { return current }

	rule := twoLevelRule()
	require.NoError(t, m.AddRule(rule))

	alert := testAlert("ALT-1", models.SeverityCritical, current.Add(-10*time.Minute))
	alerts.add(alert)

	// First step
	require.True(t, m.Escalate(context.Background(), alert.ID))
	assert.Equal(t, models.StatusEscalated, alert.Status)
	assert.Equal(t, 1, alert.EscalationLevel)
	require.NotNil(t, alert.EscalatedAt)
	assert.Equal(t, current, *alert.EscalatedAt)

	require.Len(t, alert.EscalationPath, 1)
	entry := alert.EscalationPath[0]
	assert.Equal(t, 1, entry.Level)
	assert.Equal(t, rule.ID, entry.RuleID)
	assert.Equal(t, []string{"sup-1"}, entry.Recipients)
	assert.Equal(t, []string{"sms"}, entry.Channels)

	require.Len(t, notifier.entries, 1)
	assert.Equal(t, []int{1}, notifier.counts)

	// The next level's timer is armed
	assert.Equal(t, 1, m.GetStats().ActiveTimers)
	assert.Equal(t, int64(1), m.GetStats().EscalationsExecuted)
	t.Logf("✓ First escalation step executed and next timer armed")

	// Second step exhausts the chain once its own delay has elapsed
	current = current.Add(11 * time.Minute)
	require.True(t, m.Escalate(context.Background(), alert.ID))
	assert.Equal(t, 2, alert.EscalationLevel)
	assert.Len(t, alert.EscalationPath, 2)
	assert.Equal(t, 0, m.GetStats().ActiveTimers, "no timer after the last level")

	// Level 2 names no channels, so the defaults apply
	assert.Equal(t, []string{"sms", "email", "whatsapp"}, alert.EscalationPath[1].Channels)

	// Third attempt finds the chain exhausted
	assert.False(t, m.Escalate(context.Background(), alert.ID))
	assert.Equal(t, int64(1), m.GetStats().ChainsExhausted)
	assert.Equal(t, int64(2), m.GetStats().EscalationsExecuted)
	t.Logf("✓ Chain exhaustion stops further escalation")
}

func TestEscalateBeforeDelayElapsedReschedules(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	alerts := newFakeAlerts()
	m := newTestManager(t, alerts, nil)
	m.now = func() time.Time { return now }
	require.NoError(t, m.AddRule(twoLevelRule()))

	// Two minutes old with a five-minute first level: a timer armed with a
	// shorter delay fires early and must not advance the level.
	alert := testAlert("ALT-1", models.SeverityCritical, now.Add(-2*time.Minute))
	alerts.add(alert)

	due, _ := m.CheckEscalation(alert)
	require.False(t, due)

	assert.False(t, m.Escalate(context.Background(), alert.ID))
	assert.Equal(t, models.StatusActive, alert.Status)
	assert.Equal(t, 0, alert.EscalationLevel)
	assert.Empty(t, alert.EscalationPath)
	assert.Equal(t, int64(0), m.GetStats().EscalationsExecuted)

	// The timer re-arms for the remaining three minutes
	assert.Equal(t, 1, m.GetStats().ActiveTimers)
	m.CancelEscalation(alert.ID)
	t.Logf("✓ An early fire re-arms instead of escalating ahead of the delay")
}

func TestConcurrentScheduleAndCancel(t *testing.T) {
	m := newTestManager(t, newFakeAlerts(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("ALT-%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.ScheduleEscalation(id, time.Hour)
		}()
		go func() {
			defer wg.Done()
			m.CancelEscalation(id)
		}()
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		m.CancelEscalation(fmt.Sprintf("ALT-%d", i))
	}
	assert.Equal(t, 0, m.GetStats().ActiveTimers)
	t.Logf("✓ Concurrent scheduling and cancellation leaves no timers behind")
}

func TestEscalateRechecksStatus(t *testing.T) {
	alerts := newFakeAlerts()
	m := newTestManager(t, alerts, nil)
	require.NoError(t, m.AddRule(twoLevelRule()))

	alert := testAlert("ALT-1", models.SeverityCritical, time.Now().Add(-time.Hour))
	alert.Status = models.StatusResolved
	alerts.add(alert)

	assert.False(t, m.Escalate(context.Background(), alert.ID))
	assert.Equal(t, int64(0), m.GetStats().EscalationsExecuted)
	assert.Equal(t, 0, alert.EscalationLevel)
	t.Logf("✓ A resolved alert escalates nothing even with a live timer")
}

func TestEscalateAcknowledgedAlert(t *testing.T) {
	alerts := newFakeAlerts()
	m := newTestManager(t, alerts, nil)
	require.NoError(t, m.AddRule(twoLevelRule()))

	alert := testAlert("ALT-1", models.SeverityCritical, time.Now().Add(-time.Hour))
	alert.Status = models.StatusAcknowledged
	alerts.add(alert)

	assert.True(t, m.Escalate(context.Background(), alert.ID))
	assert.Equal(t, models.StatusEscalated, alert.Status)
	t.Logf("✓ Acknowledged alerts keep escalating until resolved")
}

func TestScheduleAndCancel(t *testing.T) {
	alerts := newFakeAlerts()
	m := newTestManager(t, alerts, nil)

	t.Run("CancelIsIdempotent", func(t *testing.T) {
		m.ScheduleEscalation("ALT-1", time.Hour)
		assert.Equal(t, 1, m.GetStats().ActiveTimers)

		m.CancelEscalation("ALT-1")
		assert.Equal(t, 0, m.GetStats().ActiveTimers)
		assert.Equal(t, int64(1), m.GetStats().EscalationsCancelled)

		m.CancelEscalation("ALT-1")
		assert.Equal(t, int64(1), m.GetStats().EscalationsCancelled)
	})

	t.Run("RescheduleCancelsPrevious", func(t *testing.T) {
		m.ScheduleEscalation("ALT-2", time.Hour)
		m.ScheduleEscalation("ALT-2", 2*time.Hour)

		assert.Equal(t, 1, m.GetStats().ActiveTimers, "one timer per alert")
		assert.Equal(t, int64(2), m.GetStats().EscalationsCancelled)
		m.CancelEscalation("ALT-2")
	})

	t.Run("CancelUnknownAlertIsNoop", func(t *testing.T) {
		before := m.GetStats().EscalationsCancelled
		m.CancelEscalation("ALT-MISSING")
		assert.Equal(t, before, m.GetStats().EscalationsCancelled)
	})
	t.Logf("✓ Timer bookkeeping holds the one-timer-per-alert invariant")
}

func TestStopMonitoringDisarmsTimers(t *testing.T) {
	alerts := newFakeAlerts()
	m := newTestManager(t, alerts, nil)
	m.SetCheckInterval(time.Hour)

	m.ScheduleEscalation("ALT-1", time.Hour)
	m.ScheduleEscalation("ALT-2", time.Hour)

	m.StartMonitoring(context.Background())
	m.StopMonitoring()

	assert.Equal(t, 0, m.GetStats().ActiveTimers)
	t.Logf("✓ Shutdown disarms all timers")
}

func TestCreateDefaultEscalationRules(t *testing.T) {
	m := newTestManager(t, newFakeAlerts(), nil)

	rules := m.CreateDefaultRules("ORG-1")
	require.Len(t, rules, 2)
	assert.Equal(t, 2, m.GetStats().RulesConfigured)

	critical := testAlert("ALT-1", models.SeverityCritical, time.Now())
	got := m.FindRule(critical)
	require.NotNil(t, got)
	assert.Len(t, got.EscalationLevels, 3)

	high := testAlert("ALT-2", models.SeverityHigh, time.Now())
	got = m.FindRule(high)
	require.NotNil(t, got)
	assert.Len(t, got.EscalationLevels, 2)

	medium := testAlert("ALT-3", models.SeverityMedium, time.Now())
	assert.Nil(t, m.FindRule(medium))
	t.Logf("✓ Default chains cover critical and high severities")
}
