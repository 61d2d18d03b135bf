package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/pkg/utils"
)

func storedAlert(severity models.AlertSeverity, siteID string, createdAt time.Time) *models.Alert {
	alert := models.NewAlert(models.AlertTypePPEViolation, severity, "PPE Violation", "Missing helmet", "ORG-1", "AI_DETECTION")
	alert.SiteID = siteID
	alert.CreatedAt = createdAt
	return alert
}

func TestMemoryStoreAlerts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	require.NoError(t, store.Ping())

	alert := storedAlert(models.SeverityMedium, "SITE-A", time.Now())
	require.NoError(t, store.SaveAlert(ctx, alert))

	t.Run("GetAlert", func(t *testing.T) {
		got, err := store.GetAlert(ctx, alert.ID)
		require.NoError(t, err)
		assert.Equal(t, alert.ID, got.ID)
		assert.Equal(t, models.StatusActive, got.Status)
	})

	t.Run("GetAlertNotFound", func(t *testing.T) {
		_, err := store.GetAlert(ctx, "ALT-MISSING")
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
	})

	t.Run("UpdateAlert", func(t *testing.T) {
		alert.Status = models.StatusActive
		require.NoError(t, store.UpdateAlert(ctx, alert))

		got, err := store.GetAlert(ctx, alert.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, got.Status)
	})

	t.Run("UpdateUnknownAlert", func(t *testing.T) {
		ghost := storedAlert(models.SeverityLow, "SITE-A", time.Now())
		err := store.UpdateAlert(ctx, ghost)
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
	})
	t.Logf("✓ Alert CRUD works")
}

func TestMemoryStoreAlertQueries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	a1 := storedAlert(models.SeverityCritical, "SITE-A", base)
	a2 := storedAlert(models.SeverityMedium, "SITE-A", base.Add(time.Minute))
	a3 := storedAlert(models.SeverityCritical, "SITE-B", base.Add(2*time.Minute))
	other := storedAlert(models.SeverityCritical, "SITE-A", base)
	other.OrganizationID = "ORG-2"

	for _, alert := range []*models.Alert{a1, a2, a3, other} {
		require.NoError(t, store.SaveAlert(ctx, alert))
	}

	t.Run("NewestFirst", func(t *testing.T) {
		alerts, err := store.GetAlerts(ctx, models.AlertFilter{OrganizationID: "ORG-1"})
		require.NoError(t, err)
		require.Len(t, alerts, 3)
		assert.Equal(t, a3.ID, alerts[0].ID)
		assert.Equal(t, a1.ID, alerts[2].ID)
	})

	t.Run("SeverityFilter", func(t *testing.T) {
		severity := models.SeverityCritical
		alerts, err := store.GetAlerts(ctx, models.AlertFilter{OrganizationID: "ORG-1", Severity: &severity})
		require.NoError(t, err)
		assert.Len(t, alerts, 2)
	})

	t.Run("SiteFilter", func(t *testing.T) {
		alerts, err := store.GetAlerts(ctx, models.AlertFilter{OrganizationID: "ORG-1", SiteID: "SITE-B"})
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, a3.ID, alerts[0].ID)
	})

	t.Run("OffsetAndLimit", func(t *testing.T) {
		alerts, err := store.GetAlerts(ctx, models.AlertFilter{OrganizationID: "ORG-1", Offset: 1, Limit: 1})
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, a2.ID, alerts[0].ID)
	})

	t.Run("OffsetPastEnd", func(t *testing.T) {
		alerts, err := store.GetAlerts(ctx, models.AlertFilter{OrganizationID: "ORG-1", Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})

	t.Run("Count", func(t *testing.T) {
		count, err := store.GetAlertCount(ctx, models.AlertFilter{OrganizationID: "ORG-1"})
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})
	t.Logf("✓ Filters, ordering and pagination behave")
}

func TestMemoryStoreAlertRules(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	r1 := models.NewAlertRule("ppe", models.AlertTypePPEViolation, models.SeverityMedium, "ORG-1")
	r1.CreatedAt = time.Now().Add(-time.Hour)
	r2 := models.NewAlertRule("fall", models.AlertTypeFallDetected, models.SeverityCritical, "ORG-1")

	require.NoError(t, store.SaveAlertRule(ctx, r1))
	require.NoError(t, store.SaveAlertRule(ctx, r2))

	got, err := store.GetAlertRule(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, "ppe", got.Name)

	rules, err := store.GetAlertRules(ctx, "ORG-1")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, r1.ID, rules[0].ID, "oldest rule first")

	rules, err = store.GetAlertRules(ctx, "ORG-2")
	require.NoError(t, err)
	assert.Empty(t, rules)

	require.NoError(t, store.DeleteAlertRule(ctx, r1.ID))
	err = store.DeleteAlertRule(ctx, r1.ID)
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
	t.Logf("✓ Alert rule CRUD works")
}

func TestMemoryStoreEscalationRules(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rule := models.NewEscalationRule("critical-chain", models.SeverityCritical, "ORG-1")
	require.NoError(t, store.SaveEscalationRule(ctx, rule))

	rules, err := store.GetEscalationRules(ctx, "ORG-1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, rule.ID, rules[0].ID)

	require.NoError(t, store.DeleteEscalationRule(ctx, rule.ID))
	err = store.DeleteEscalationRule(ctx, rule.ID)
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
}

func TestMemoryStoreActions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := models.NewAlertAction("ALT-1", models.ActionSoundAlarm)
	first.CreatedAt = time.Now().Add(-time.Minute)
	second := models.NewAlertAction("ALT-1", models.ActionStopEquipment)
	unrelated := models.NewAlertAction("ALT-2", models.ActionSoundAlarm)

	for _, action := range []*models.AlertAction{second, first, unrelated} {
		require.NoError(t, store.SaveAction(ctx, action))
	}

	actions, err := store.GetActions(ctx, "ALT-1")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, first.ID, actions[0].ID, "oldest action first")
}

func TestMemoryStoreNotifications(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	n := models.NewNotification("ALT-1", models.ChannelSMS, "sup-1", "+15550001", "subject", "message")
	require.NoError(t, store.SaveNotification(ctx, n))

	require.NoError(t, store.UpdateNotificationStatus(ctx, n.ID, models.NotificationFailed, "provider timeout"))

	notifications, err := store.GetNotifications(ctx, "ALT-1")
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, models.NotificationFailed, notifications[0].Status)
	assert.Equal(t, "provider timeout", notifications[0].Error)

	err = store.UpdateNotificationStatus(ctx, "NOT-MISSING", models.NotificationSent, "")
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
}

func TestMemoryStoreStatsAndCleanup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	old := storedAlert(models.SeverityMedium, "SITE-A", time.Now().AddDate(0, 0, -60))
	old.Status = models.StatusResolved
	recent := storedAlert(models.SeverityMedium, "SITE-A", time.Now())
	recent.Status = models.StatusResolved
	active := storedAlert(models.SeverityCritical, "SITE-A", time.Now().AddDate(0, 0, -60))
	active.Status = models.StatusActive

	for _, alert := range []*models.Alert{old, recent, active} {
		require.NoError(t, store.SaveAlert(ctx, alert))
	}
	oldAction := models.NewAlertAction(old.ID, models.ActionSoundAlarm)
	require.NoError(t, store.SaveAction(ctx, oldAction))
	oldNotification := models.NewNotification(old.ID, models.ChannelSMS, "sup-1", "+15550001", "s", "m")
	require.NoError(t, store.SaveNotification(ctx, oldNotification))

	stats, err := store.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalAlerts)
	require.NotNil(t, stats.OldestAlert)
	assert.True(t, stats.OldestAlert.Before(*stats.LatestAlert))
	assert.Nil(t, stats.LastCleanup)

	require.NoError(t, store.Cleanup(ctx, 30))

	// Terminal and old: removed with its actions and notifications.
	_, err = store.GetAlert(ctx, old.ID)
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
	actions, _ := store.GetActions(ctx, old.ID)
	assert.Empty(t, actions)
	notifications, _ := store.GetNotifications(ctx, old.ID)
	assert.Empty(t, notifications)

	// Recent terminal and old-but-active alerts survive.
	_, err = store.GetAlert(ctx, recent.ID)
	assert.NoError(t, err)
	_, err = store.GetAlert(ctx, active.ID)
	assert.NoError(t, err)

	stats, err = store.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalAlerts)
	assert.NotNil(t, stats.LastCleanup)
	t.Logf("✓ Cleanup drops only terminal alerts past retention")
}
