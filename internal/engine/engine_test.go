package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/pkg/utils"
)

func newTestEngine() *AlertEngine {
	utils.InitLogger("error", "text", "stdout", "")
	return NewAlertEngine(nil, nil)
}

func newTestAlert(t *testing.T, e *AlertEngine) *models.Alert {
	t.Helper()
	return e.CreateAlert(context.Background(), CreateAlertInput{
		Type:           models.AlertTypePPEViolation,
		Severity:       models.SeverityMedium,
		Title:          "PPE Violation: helmet",
		Description:    "Worker detected without helmet",
		OrganizationID: "ORG-1",
		Source:         "AI_DETECTION",
		SiteID:         "SITE-A",
		CameraID:       "CAM-1",
		Confidence:     0.92,
	})
}

func TestAlertLifecycle(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		e := newTestEngine()
		alert := newTestAlert(t, e)

		assert.Equal(t, models.StatusActive, alert.Status)
		assert.NotEmpty(t, alert.ID)
		assert.False(t, alert.CreatedAt.IsZero())

		active := e.GetActiveAlerts("ORG-1", models.AlertFilter{})
		require.Len(t, active, 1)
		assert.Equal(t, alert.ID, active[0].ID)
		t.Logf("✓ Alert created and listed as active")
	})

	t.Run("Acknowledge", func(t *testing.T) {
		e := newTestEngine()
		alert := newTestAlert(t, e)

		err := e.AcknowledgeAlert(alert.ID, "user-1", "on my way")
		require.NoError(t, err)

		got, err := e.GetAlert(alert.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAcknowledged, got.Status)
		assert.Equal(t, "user-1", got.AcknowledgedBy)
		require.NotNil(t, got.AcknowledgedAt)

		// Second acknowledgment is rejected
		err = e.AcknowledgeAlert(alert.ID, "user-2", "")
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidTransition))
		t.Logf("✓ Acknowledge is one-shot")
	})

	t.Run("Resolve", func(t *testing.T) {
		e := newTestEngine()
		alert := newTestAlert(t, e)

		err := e.ResolveAlert(alert.ID, "user-1", "fixed")
		require.NoError(t, err)

		got, err := e.GetAlert(alert.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusResolved, got.Status)
		assert.Equal(t, "user-1", got.ResolvedBy)
		require.NotNil(t, got.ResolvedAt)

		// Resolved alert leaves the active set but stays retrievable
		assert.Empty(t, e.GetActiveAlerts("ORG-1", models.AlertFilter{}))

		// Resolution is irreversible
		err = e.ResolveAlert(alert.ID, "user-2", "again")
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidTransition))

		err = e.AcknowledgeAlert(alert.ID, "user-2", "")
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidTransition))
		t.Logf("✓ Resolve is terminal and irreversible")
	})

	t.Run("AcknowledgeThenResolve", func(t *testing.T) {
		e := newTestEngine()
		alert := newTestAlert(t, e)

		require.NoError(t, e.AcknowledgeAlert(alert.ID, "user-1", ""))
		require.NoError(t, e.ResolveAlert(alert.ID, "user-1", "done"))

		got, _ := e.GetAlert(alert.ID)
		assert.Equal(t, models.StatusResolved, got.Status)
	})

	t.Run("Dismiss", func(t *testing.T) {
		e := newTestEngine()
		alert := newTestAlert(t, e)

		err := e.DismissAlert(alert.ID, "user-1", "false positive")
		require.NoError(t, err)

		got, _ := e.GetAlert(alert.ID)
		assert.Equal(t, models.StatusDismissed, got.Status)
		assert.Empty(t, e.GetActiveAlerts("ORG-1", models.AlertFilter{}))

		// Terminal alerts cannot be dismissed again
		err = e.DismissAlert(alert.ID, "user-1", "")
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidTransition))
		t.Logf("✓ Dismiss moves any non-terminal alert to a terminal state")
	})

	t.Run("NotFound", func(t *testing.T) {
		e := newTestEngine()
		_, err := e.GetAlert("ALT-MISSING")
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))

		err = e.AcknowledgeAlert("ALT-MISSING", "user-1", "")
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
	})
}

func TestStatusTransitionGraph(t *testing.T) {
	cases := []struct {
		from    models.AlertStatus
		to      models.AlertStatus
		allowed bool
	}{
		{models.StatusPending, models.StatusAcknowledged, true},
		{models.StatusActive, models.StatusAcknowledged, true},
		{models.StatusEscalated, models.StatusAcknowledged, true},
		{models.StatusAcknowledged, models.StatusAcknowledged, false},
		{models.StatusPending, models.StatusResolved, true},
		{models.StatusActive, models.StatusResolved, true},
		{models.StatusAcknowledged, models.StatusResolved, true},
		{models.StatusEscalated, models.StatusResolved, true},
		{models.StatusActive, models.StatusEscalated, true},
		{models.StatusAcknowledged, models.StatusEscalated, true},
		{models.StatusPending, models.StatusEscalated, false},
		{models.StatusEscalated, models.StatusEscalated, false},
		{models.StatusActive, models.StatusDismissed, true},
		{models.StatusEscalated, models.StatusDismissed, true},
		{models.StatusResolved, models.StatusDismissed, false},
		{models.StatusDismissed, models.StatusResolved, false},
		{models.StatusResolved, models.StatusAcknowledged, false},
	}

	for _, tc := range cases {
		alert := &models.Alert{Status: tc.from}
		got := alert.CanTransitionTo(tc.to)
		assert.Equal(t, tc.allowed, got, "%s -> %s", tc.from, tc.to)
	}
	t.Logf("✓ Status graph verified for %d transitions", len(cases))
}

func TestGetActiveAlertsFilter(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	e.CreateAlert(ctx, CreateAlertInput{
		Type: models.AlertTypePPEViolation, Severity: models.SeverityMedium,
		Title: "a", OrganizationID: "ORG-1", Source: "test", SiteID: "SITE-A",
	})
	e.CreateAlert(ctx, CreateAlertInput{
		Type: models.AlertTypeFallDetected, Severity: models.SeverityCritical,
		Title: "b", OrganizationID: "ORG-1", Source: "test", SiteID: "SITE-B",
	})
	e.CreateAlert(ctx, CreateAlertInput{
		Type: models.AlertTypePPEViolation, Severity: models.SeverityMedium,
		Title: "c", OrganizationID: "ORG-2", Source: "test",
	})

	assert.Len(t, e.GetActiveAlerts("ORG-1", models.AlertFilter{}), 2)
	assert.Len(t, e.GetActiveAlerts("ORG-2", models.AlertFilter{}), 1)

	critical := models.SeverityCritical
	got := e.GetActiveAlerts("ORG-1", models.AlertFilter{Severity: &critical})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Title)

	got = e.GetActiveAlerts("ORG-1", models.AlertFilter{SiteID: "SITE-A"})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Title)

	got = e.GetActiveAlerts("ORG-1", models.AlertFilter{Limit: 1})
	assert.Len(t, got, 1)
	t.Logf("✓ Active alert filtering works")
}

func TestGetStats(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	a1 := e.CreateAlert(ctx, CreateAlertInput{
		Type: models.AlertTypePPEViolation, Severity: models.SeverityMedium,
		Title: "a", OrganizationID: "ORG-1", Source: "test",
	})
	e.CreateAlert(ctx, CreateAlertInput{
		Type: models.AlertTypeFallDetected, Severity: models.SeverityCritical,
		Title: "b", OrganizationID: "ORG-1", Source: "test",
	})
	require.NoError(t, e.ResolveAlert(a1.ID, "user-1", ""))

	stats := e.GetStats("ORG-1")
	assert.Equal(t, int64(2), stats.TotalAlerts)
	assert.Equal(t, 1, stats.ActiveAlerts)
	assert.Equal(t, 1, stats.BySeverity[models.SeverityCritical])
	assert.Equal(t, 1, stats.ByType[models.AlertTypeFallDetected])
	t.Logf("✓ Stats aggregate active alerts and lifetime totals")
}

func TestRuleMatching(t *testing.T) {
	e := newTestEngine()

	makeRule := func(name string, priority int, sites []string, threshold float64) *models.AlertRule {
		rule := models.NewAlertRule(name, models.AlertTypePPEViolation, models.SeverityMedium, "ORG-1")
		rule.Priority = priority
		rule.Sites = sites
		rule.Conditions.ConfidenceThreshold = threshold
		return rule
	}

	t.Run("PriorityWins", func(t *testing.T) {
		e := newTestEngine()
		low := makeRule("low", 1, nil, 0.5)
		high := makeRule("high", 10, nil, 0.5)
		require.NoError(t, e.AddRule(low))
		require.NoError(t, e.AddRule(high))

		got := e.MatchRule(models.AlertTypePPEViolation, "SITE-A", "CAM-1", 0.9, "ORG-1")
		require.NotNil(t, got)
		assert.Equal(t, "high", got.Name)
	})

	t.Run("NarrowerScopeBreaksPriorityTie", func(t *testing.T) {
		e := newTestEngine()
		broad := makeRule("broad", 5, nil, 0.5)
		scoped := makeRule("scoped", 5, []string{"SITE-A"}, 0.5)
		require.NoError(t, e.AddRule(broad))
		require.NoError(t, e.AddRule(scoped))

		got := e.MatchRule(models.AlertTypePPEViolation, "SITE-A", "CAM-1", 0.9, "ORG-1")
		require.NotNil(t, got)
		assert.Equal(t, "scoped", got.Name)

		// Out-of-scope signature falls back to the broad rule
		got = e.MatchRule(models.AlertTypePPEViolation, "SITE-B", "CAM-1", 0.9, "ORG-1")
		require.NotNil(t, got)
		assert.Equal(t, "broad", got.Name)
	})

	t.Run("EarliestCreatedBreaksFullTie", func(t *testing.T) {
		e := newTestEngine()
		older := makeRule("older", 5, nil, 0.5)
		older.CreatedAt = time.Now().Add(-time.Hour)
		newer := makeRule("newer", 5, nil, 0.5)
		require.NoError(t, e.AddRule(newer))
		require.NoError(t, e.AddRule(older))

		got := e.MatchRule(models.AlertTypePPEViolation, "", "", 0.9, "ORG-1")
		require.NotNil(t, got)
		assert.Equal(t, "older", got.Name)
	})

	t.Run("ConfidenceThreshold", func(t *testing.T) {
		e := newTestEngine()
		rule := makeRule("strict", 5, nil, 0.9)
		require.NoError(t, e.AddRule(rule))

		assert.Nil(t, e.MatchRule(models.AlertTypePPEViolation, "", "", 0.85, "ORG-1"))
		assert.NotNil(t, e.MatchRule(models.AlertTypePPEViolation, "", "", 0.95, "ORG-1"))
	})

	t.Run("DefaultThresholdWhenUnset", func(t *testing.T) {
		e := newTestEngine()
		rule := makeRule("default", 5, nil, 0)
		require.NoError(t, e.AddRule(rule))

		assert.Nil(t, e.MatchRule(models.AlertTypePPEViolation, "", "", 0.75, "ORG-1"))
		assert.NotNil(t, e.MatchRule(models.AlertTypePPEViolation, "", "", 0.85, "ORG-1"))
	})

	t.Run("InactiveRuleSkipped", func(t *testing.T) {
		e := newTestEngine()
		rule := makeRule("off", 5, nil, 0.5)
		rule.IsActive = false
		require.NoError(t, e.AddRule(rule))

		assert.Nil(t, e.MatchRule(models.AlertTypePPEViolation, "", "", 0.9, "ORG-1"))
	})

	t.Run("NoMatchIsNil", func(t *testing.T) {
		e := newTestEngine()
		assert.Nil(t, e.MatchRule(models.AlertTypePPEViolation, "", "", 0.9, "ORG-1"))
	})

	_ = e
	t.Logf("✓ Deterministic rule matching verified")
}

func TestRuleManagement(t *testing.T) {
	e := newTestEngine()

	rule := models.NewAlertRule("r1", models.AlertTypePPEViolation, models.SeverityMedium, "ORG-1")
	require.NoError(t, e.AddRule(rule))

	rules := e.GetRules("ORG-1")
	require.Len(t, rules, 1)

	rule.Name = "r1-updated"
	require.NoError(t, e.UpdateRule(rule))

	require.NoError(t, e.RemoveRule(rule.ID))
	assert.Empty(t, e.GetRules("ORG-1"))

	err := e.RemoveRule(rule.ID)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))

	err = e.AddRule(&models.AlertRule{})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))
	t.Logf("✓ Rule management round trip")
}

// fakeActuator records calls and optionally fails specific action types.
type fakeActuator struct {
	calls   []models.ActionType
	failing map[models.ActionType]bool
}

func (f *fakeActuator) Call(ctx context.Context, actionType models.ActionType, alert *models.Alert, rule *models.AlertRule) (map[string]interface{}, error) {
	f.calls = append(f.calls, actionType)
	if f.failing[actionType] {
		return nil, utils.NewAppError(utils.ErrCodeExternal, "Actuator unreachable", string(actionType))
	}
	return map[string]interface{}{"status": "ok"}, nil
}

func TestExecuteAutonomousActions(t *testing.T) {
	utils.InitLogger("error", "text", "stdout", "")

	actuator := &fakeActuator{failing: map[models.ActionType]bool{models.ActionLockZone: true}}
	e := NewAlertEngine(actuator, nil)

	alert := newTestAlert(t, e)
	rule := models.NewAlertRule("response", models.AlertTypePPEViolation, models.SeverityMedium, "ORG-1")
	rule.Actions = []models.ActionType{
		models.ActionSoundAlarm,
		models.ActionLockZone,
		models.ActionSendSMS, // notification action, not an actuator call
	}

	actions := e.ExecuteAutonomousActions(context.Background(), alert, rule)

	// Notification actions are routed through the dispatcher, not the actuator
	require.Len(t, actions, 2)
	assert.Equal(t, []models.ActionType{models.ActionSoundAlarm, models.ActionLockZone}, actuator.calls)

	assert.Equal(t, models.ActionStatusCompleted, actions[0].Status)
	assert.True(t, actions[0].Success)
	assert.Equal(t, "ok", actions[0].Result["status"])

	// A failed action is recorded but does not stop the batch
	assert.Equal(t, models.ActionStatusFailed, actions[1].Status)
	assert.False(t, actions[1].Success)
	assert.NotEmpty(t, actions[1].Error)

	assert.Len(t, alert.AutonomousActions, 2)
	t.Logf("✓ Autonomous actions are best-effort and never transactional")
}

func TestCreateDefaultRules(t *testing.T) {
	e := newTestEngine()
	rules := e.CreateDefaultRules("ORG-1")
	require.NotEmpty(t, rules)
	assert.Len(t, e.GetRules("ORG-1"), len(rules))

	got := e.MatchRule(models.AlertTypeFallDetected, "SITE-A", "CAM-1", 0.9, "ORG-1")
	require.NotNil(t, got)
	assert.Equal(t, models.SeverityCritical, got.Severity)
	t.Logf("✓ Default rules cover the standard alert types")
}
