package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/internal/storage"
	"github.com/safesite/alert-engine/pkg/utils"
)

func TestSQLiteStorage(t *testing.T) {
	testDB := filepath.Join(t.TempDir(), "test_alerts.db")

	cfg := &storage.Config{
		Type:             "sqlite",
		ConnectionString: testDB,
		MaxConnections:   10,
		MaxIdleTime:      time.Minute * 15,
	}

	// Initialize logger
	utils.InitLogger("error", "text", "stdout", "")

	// Create storage
	store, err := storage.NewStore(cfg)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	// Test connection
	err = store.Connect()
	if err != nil {
		t.Fatalf("Failed to connect to storage: %v", err)
	}

	// Test migration
	err = store.Migrate()
	if err != nil {
		t.Fatalf("Failed to migrate storage: %v", err)
	}

	// Test ping
	err = store.Ping()
	if err != nil {
		t.Fatalf("Failed to ping storage: %v", err)
	}

	t.Logf("✓ Storage connection and migration successful")

	// Run tests
	t.Run("Alert Operations", func(t *testing.T) { testAlertOperations(t, store) })
	t.Run("Alert Rule Operations", func(t *testing.T) { testAlertRuleOperations(t, store) })
	t.Run("Escalation Rule Operations", func(t *testing.T) { testEscalationRuleOperations(t, store) })
	t.Run("Action Operations", func(t *testing.T) { testActionOperations(t, store) })
	t.Run("Notification Operations", func(t *testing.T) { testNotificationOperations(t, store) })
	t.Run("Statistics", func(t *testing.T) { testStatistics(t, store) })
}

func testAlertOperations(t *testing.T, store storage.Store) {
	ctx := context.Background()

	alert := models.NewAlert(models.AlertTypePPEViolation, models.SeverityMedium,
		"PPE Violation", "Worker without helmet near crane", "ORG-IT", "AI_DETECTION")
	alert.SiteID = "SITE-A"
	alert.CameraID = "CAM-3"
	alert.Zone = "crane-zone"
	alert.Confidence = 0.93
	alert.Evidence = []string{"frames/det-1.jpg"}
	alert.Metadata["violation_type"] = "helmet"

	// Test save alert
	err := store.SaveAlert(ctx, alert)
	if err != nil {
		t.Fatalf("Failed to save alert: %v", err)
	}
	t.Logf("✓ Alert saved successfully")

	// Test get alert
	retrieved, err := store.GetAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("Failed to get alert: %v", err)
	}
	if retrieved.ID != alert.ID {
		t.Fatalf("Alert ID mismatch: expected %s, got %s", alert.ID, retrieved.ID)
	}
	if retrieved.Status != models.StatusActive {
		t.Fatalf("Expected active status, got %s", retrieved.Status)
	}
	if retrieved.Confidence != 0.93 {
		t.Fatalf("Confidence mismatch: got %v", retrieved.Confidence)
	}
	if retrieved.Metadata["violation_type"] != "helmet" {
		t.Fatalf("Metadata not round-tripped: %v", retrieved.Metadata)
	}
	t.Logf("✓ Alert retrieved successfully")

	// Test update alert
	now := time.Now()
	alert.Status = models.StatusAcknowledged
	alert.AcknowledgedBy = "user-7"
	alert.AcknowledgedAt = &now
	err = store.UpdateAlert(ctx, alert)
	if err != nil {
		t.Fatalf("Failed to update alert: %v", err)
	}

	retrieved, err = store.GetAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("Failed to get updated alert: %v", err)
	}
	if retrieved.Status != models.StatusAcknowledged {
		t.Fatalf("Expected acknowledged status, got %s", retrieved.Status)
	}
	if retrieved.AcknowledgedBy != "user-7" {
		t.Fatalf("AcknowledgedBy not persisted: %s", retrieved.AcknowledgedBy)
	}
	t.Logf("✓ Alert updated successfully")

	// Test filtered queries
	severity := models.SeverityMedium
	alerts, err := store.GetAlerts(ctx, models.AlertFilter{
		OrganizationID: "ORG-IT",
		Severity:       &severity,
	})
	if err != nil {
		t.Fatalf("Failed to query alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts))
	}

	count, err := store.GetAlertCount(ctx, models.AlertFilter{OrganizationID: "ORG-IT"})
	if err != nil {
		t.Fatalf("Failed to count alerts: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected count 1, got %d", count)
	}

	// Test not found
	_, err = store.GetAlert(ctx, "ALT-MISSING")
	if !utils.IsCode(err, utils.ErrCodeNotFound) {
		t.Fatalf("Expected NOT_FOUND, got %v", err)
	}
	t.Logf("✓ Alert queries behave correctly")
}

func testAlertRuleOperations(t *testing.T, store storage.Store) {
	ctx := context.Background()

	rule := models.NewAlertRule("PPE enforcement", models.AlertTypePPEViolation, models.SeverityMedium, "ORG-IT")
	rule.Conditions.ConfidenceThreshold = 0.85
	rule.Actions = []models.ActionType{models.ActionSoundAlarm}
	rule.NotifyChannels = []models.ChannelType{models.ChannelSMS, models.ChannelEmail}
	rule.NotifyRoles = []string{"supervisor"}
	rule.Sites = []string{"SITE-A"}
	rule.Priority = 5

	err := store.SaveAlertRule(ctx, rule)
	if err != nil {
		t.Fatalf("Failed to save alert rule: %v", err)
	}

	retrieved, err := store.GetAlertRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("Failed to get alert rule: %v", err)
	}
	if retrieved.Conditions.ConfidenceThreshold != 0.85 {
		t.Fatalf("Conditions not round-tripped: %+v", retrieved.Conditions)
	}
	if len(retrieved.NotifyChannels) != 2 {
		t.Fatalf("Channels not round-tripped: %v", retrieved.NotifyChannels)
	}
	if len(retrieved.Sites) != 1 || retrieved.Sites[0] != "SITE-A" {
		t.Fatalf("Sites not round-tripped: %v", retrieved.Sites)
	}
	t.Logf("✓ Alert rule round-tripped")

	rules, err := store.GetAlertRules(ctx, "ORG-IT")
	if err != nil {
		t.Fatalf("Failed to list alert rules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("Expected 1 rule, got %d", len(rules))
	}

	err = store.DeleteAlertRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("Failed to delete alert rule: %v", err)
	}
	err = store.DeleteAlertRule(ctx, rule.ID)
	if !utils.IsCode(err, utils.ErrCodeNotFound) {
		t.Fatalf("Expected NOT_FOUND on second delete, got %v", err)
	}
	t.Logf("✓ Alert rule CRUD works")
}

func testEscalationRuleOperations(t *testing.T, store storage.Store) {
	ctx := context.Background()

	rule := models.NewEscalationRule("Critical chain", models.SeverityCritical, "ORG-IT")
	rule.EscalationLevels = []models.EscalationLevel{
		{Level: 1, DelayMinutes: 5, NotifyRoles: []string{"supervisor"}, Channels: []models.ChannelType{models.ChannelSMS}},
		{Level: 2, DelayMinutes: 10, NotifyRoles: []string{"safety_manager"}},
	}

	err := store.SaveEscalationRule(ctx, rule)
	if err != nil {
		t.Fatalf("Failed to save escalation rule: %v", err)
	}

	rules, err := store.GetEscalationRules(ctx, "ORG-IT")
	if err != nil {
		t.Fatalf("Failed to list escalation rules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("Expected 1 escalation rule, got %d", len(rules))
	}
	if len(rules[0].EscalationLevels) != 2 {
		t.Fatalf("Levels not round-tripped: %v", rules[0].EscalationLevels)
	}
	if rules[0].EscalationLevels[0].DelayMinutes != 5 {
		t.Fatalf("Level delay not round-tripped: %+v", rules[0].EscalationLevels[0])
	}
	t.Logf("✓ Escalation rule round-tripped")

	err = store.DeleteEscalationRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("Failed to delete escalation rule: %v", err)
	}
}

func testActionOperations(t *testing.T, store storage.Store) {
	ctx := context.Background()

	action := models.NewAlertAction("ALT-FLOW-1", models.ActionSoundAlarm)
	action.Status = models.ActionStatusCompleted
	action.Success = true
	action.Result = map[string]interface{}{"device": "alarm-3"}
	now := time.Now()
	action.ExecutedAt = &now
	action.CompletedAt = &now

	err := store.SaveAction(ctx, action)
	if err != nil {
		t.Fatalf("Failed to save action: %v", err)
	}

	actions, err := store.GetActions(ctx, "ALT-FLOW-1")
	if err != nil {
		t.Fatalf("Failed to get actions: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("Expected 1 action, got %d", len(actions))
	}
	if !actions[0].Success || actions[0].Status != models.ActionStatusCompleted {
		t.Fatalf("Action state not round-tripped: %+v", actions[0])
	}
	if actions[0].Result["device"] != "alarm-3" {
		t.Fatalf("Action result not round-tripped: %v", actions[0].Result)
	}
	t.Logf("✓ Action round-tripped")
}

func testNotificationOperations(t *testing.T, store storage.Store) {
	ctx := context.Background()

	notification := models.NewNotification("ALT-FLOW-1", models.ChannelSMS,
		"sup-1", "+15550001", "⚡ MEDIUM Alert: PPE Violation", "Worker without helmet")
	notification.Status = models.NotificationSent
	now := time.Now()
	notification.SentAt = &now
	notification.ProviderID = "prov-123"

	err := store.SaveNotification(ctx, notification)
	if err != nil {
		t.Fatalf("Failed to save notification: %v", err)
	}

	notifications, err := store.GetNotifications(ctx, "ALT-FLOW-1")
	if err != nil {
		t.Fatalf("Failed to get notifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notifications))
	}
	if notifications[0].ProviderID != "prov-123" {
		t.Fatalf("Provider id not round-tripped: %+v", notifications[0])
	}

	err = store.UpdateNotificationStatus(ctx, notification.ID, models.NotificationDelivered, "")
	if err != nil {
		t.Fatalf("Failed to update notification status: %v", err)
	}

	notifications, err = store.GetNotifications(ctx, "ALT-FLOW-1")
	if err != nil {
		t.Fatalf("Failed to re-read notifications: %v", err)
	}
	if notifications[0].Status != models.NotificationDelivered {
		t.Fatalf("Expected delivered status, got %s", notifications[0].Status)
	}
	t.Logf("✓ Notification status update works")
}

func testStatistics(t *testing.T, store storage.Store) {
	ctx := context.Background()

	stats, err := store.GetStorageStats(ctx)
	if err != nil {
		t.Fatalf("Failed to get storage stats: %v", err)
	}
	if stats.TotalAlerts < 1 {
		t.Fatalf("Expected at least 1 alert in stats, got %d", stats.TotalAlerts)
	}
	if stats.TotalNotifications < 1 {
		t.Fatalf("Expected at least 1 notification in stats, got %d", stats.TotalNotifications)
	}
	if stats.OldestAlert == nil || stats.LatestAlert == nil {
		t.Fatal("Expected oldest and latest alert timestamps")
	}
	t.Logf("✓ Storage stats: %d alerts, %d notifications", stats.TotalAlerts, stats.TotalNotifications)
}
