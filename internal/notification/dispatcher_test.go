package notification

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/internal/storage"
	"github.com/safesite/alert-engine/pkg/utils"
)

// fakeChannel records sends and optionally fails every delivery.
type fakeChannel struct {
	mu       sync.Mutex
	typ      models.ChannelType
	fail     bool
	contacts []string
	subjects []string
	bodies   []string
}

func (c *fakeChannel) Type() models.ChannelType { return c.typ }

func (c *fakeChannel) Send(ctx context.Context, contact, subject, message string, metadata map[string]string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return "", utils.NewAppError(utils.ErrCodeExternal, "Provider rejected message", contact)
	}
	c.contacts = append(c.contacts, contact)
	c.subjects = append(c.subjects, subject)
	c.bodies = append(c.bodies, message)
	return "prov-" + contact, nil
}

// fakeRecorder holds one alert and applies updates to it.
type fakeRecorder struct {
	mu    sync.Mutex
	alert *models.Alert
}

func (r *fakeRecorder) UpdateAlert(id string, fn func(*models.Alert) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.alert == nil || r.alert.ID != id {
		return utils.NewAppError(utils.ErrCodeNotFound, "Alert not found", id)
	}
	return fn(r.alert)
}

func dispatchTestAlert() *models.Alert {
	return &models.Alert{
		ID:             "ALT-TEST1",
		Type:           models.AlertTypeFallDetected,
		Severity:       models.SeverityCritical,
		Status:         models.StatusActive,
		Title:          "Worker Fall Detected",
		Description:    "Fall detected with high severity",
		OrganizationID: "ORG-1",
		SiteID:         "SITE-A",
		CameraID:       "CAM-7",
		Zone:           "loading-dock",
		Confidence:     0.91,
		CreatedAt:      time.Date(2026, 8, 30, 9, 30, 0, 0, time.UTC),
	}
}

func TestSendAlertNotificationFanOut(t *testing.T) {
	utils.InitLogger("error", "text", "stdout", "")

	alert := dispatchTestAlert()
	recorder := &fakeRecorder{alert: alert}
	store := storage.NewMemoryStore()

	d := NewDispatcher(recorder, store)
	sms := &fakeChannel{typ: models.ChannelSMS}
	email := &fakeChannel{typ: models.ChannelEmail}
	d.RegisterChannel(sms)
	d.RegisterChannel(email)

	recipients := []*models.Recipient{
		{ID: "sup-1", Role: "supervisor", Contacts: map[models.ChannelType]string{
			models.ChannelSMS:   "15550001",
			models.ChannelEmail: "sup@example.com",
		}},
		// No email contact: that pairing must be skipped, not failed
		{ID: "mgr-1", Role: "safety_manager", Contacts: map[models.ChannelType]string{
			models.ChannelSMS: "15550002",
		}},
	}
	channels := []models.ChannelType{models.ChannelSMS, models.ChannelEmail}

	notifications := d.SendAlertNotification(context.Background(), alert, recipients, channels)

	// 2 recipients x 2 channels minus the missing email contact
	require.Len(t, notifications, 3)
	for _, n := range notifications {
		assert.Equal(t, models.NotificationSent, n.Status)
		assert.NotNil(t, n.SentAt)
		assert.NotEmpty(t, n.ProviderID)
		assert.Equal(t, alert.ID, n.AlertID)
	}
	assert.Len(t, sms.contacts, 2)
	assert.Len(t, email.contacts, 1)
	t.Logf("✓ Fan-out produced one record per attempted pairing")

	// Receipts land on the alert
	require.Len(t, alert.NotificationsSent, 3)
	assert.Equal(t, notifications[0].ID, alert.NotificationsSent[0].NotificationID)

	// Records are persisted
	stored, err := store.GetNotifications(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	stats := d.GetStats()
	assert.Equal(t, int64(3), stats.TotalSent)
	assert.Equal(t, int64(0), stats.TotalFailed)
	assert.Equal(t, int64(1), stats.TotalSkipped)
	assert.Equal(t, 1.0, stats.DeliveryRate)
	assert.Equal(t, int64(2), stats.ByChannel[models.ChannelSMS])
	t.Logf("✓ Receipts, persistence and stats recorded")
}

func TestSendAlertNotificationBestEffort(t *testing.T) {
	utils.InitLogger("error", "text", "stdout", "")

	alert := dispatchTestAlert()
	d := NewDispatcher(&fakeRecorder{alert: alert}, nil)
	d.RegisterChannel(&fakeChannel{typ: models.ChannelSMS, fail: true})
	d.RegisterChannel(&fakeChannel{typ: models.ChannelEmail})

	recipients := []*models.Recipient{
		{ID: "sup-1", Contacts: map[models.ChannelType]string{
			models.ChannelSMS:   "15550001",
			models.ChannelEmail: "sup@example.com",
		}},
	}

	notifications := d.SendAlertNotification(context.Background(), alert, recipients,
		[]models.ChannelType{models.ChannelSMS, models.ChannelEmail})

	require.Len(t, notifications, 2)
	assert.Equal(t, models.NotificationFailed, notifications[0].Status)
	assert.NotEmpty(t, notifications[0].Error)
	assert.Nil(t, notifications[0].SentAt)
	assert.Equal(t, models.NotificationSent, notifications[1].Status)

	stats := d.GetStats()
	assert.Equal(t, int64(1), stats.TotalSent)
	assert.Equal(t, int64(1), stats.TotalFailed)
	assert.Equal(t, 0.5, stats.DeliveryRate)
	t.Logf("✓ A failed channel does not stop the rest of the batch")
}

func TestSendAlertNotificationUnregisteredChannel(t *testing.T) {
	utils.InitLogger("error", "text", "stdout", "")

	alert := dispatchTestAlert()
	d := NewDispatcher(nil, nil)

	recipients := []*models.Recipient{
		{ID: "sup-1", Contacts: map[models.ChannelType]string{models.ChannelSMS: "15550001"}},
	}

	notifications := d.SendAlertNotification(context.Background(), alert, recipients,
		[]models.ChannelType{models.ChannelWhatsApp})

	assert.Empty(t, notifications)
	assert.Equal(t, int64(1), d.GetStats().TotalSkipped)
	t.Logf("✓ Unregistered channels are skipped silently")
}

func TestNotifyEscalation(t *testing.T) {
	utils.InitLogger("error", "text", "stdout", "")

	alert := dispatchTestAlert()
	d := NewDispatcher(&fakeRecorder{alert: alert}, nil)
	sms := &fakeChannel{typ: models.ChannelSMS}
	d.RegisterChannel(sms)

	entry := models.EscalationEntry{Level: 2, RuleID: "ESC-1"}
	recipients := []*models.Recipient{
		{ID: "mgr-1", Contacts: map[models.ChannelType]string{models.ChannelSMS: "15550002"}},
	}

	d.NotifyEscalation(context.Background(), alert, entry, recipients, []models.ChannelType{models.ChannelSMS})

	require.Len(t, sms.subjects, 1)
	assert.Contains(t, sms.subjects[0], "[ESCALATION L2]")
	assert.Contains(t, sms.bodies[0], "escalation to level 2")

	// The original alert title is untouched
	assert.Equal(t, "Worker Fall Detected", alert.Title)
	t.Logf("✓ Escalation notifications carry the level marker")
}

func TestSendTestNotification(t *testing.T) {
	utils.InitLogger("error", "text", "stdout", "")

	d := NewDispatcher(nil, nil)
	sms := &fakeChannel{typ: models.ChannelSMS}
	d.RegisterChannel(sms)

	require.NoError(t, d.SendTestNotification(context.Background(), models.ChannelSMS, "15550001"))
	assert.Len(t, sms.contacts, 1)

	err := d.SendTestNotification(context.Background(), models.ChannelEmail, "x@example.com")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))
}

func TestBuildSubject(t *testing.T) {
	alert := dispatchTestAlert()
	subject := BuildSubject(alert)
	assert.Equal(t, "🚨 CRITICAL Alert: Worker Fall Detected", subject)

	alert.Severity = models.SeverityMedium
	assert.Equal(t, "⚡ MEDIUM Alert: Worker Fall Detected", BuildSubject(alert))

	alert.Severity = models.AlertSeverity("unknown")
	assert.True(t, strings.HasPrefix(BuildSubject(alert), "📢"))
}

func TestBuildMessage(t *testing.T) {
	alert := dispatchTestAlert()
	message := BuildMessage(alert)

	assert.Contains(t, message, "Fall detected with high severity")
	assert.Contains(t, message, "Site: SITE-A")
	assert.Contains(t, message, "Camera: CAM-7")
	assert.Contains(t, message, "Zone: loading-dock")
	assert.Contains(t, message, "Confidence: 91%")
	assert.Contains(t, message, "Alert ID: ALT-TEST1")

	// Optional lines are omitted when the alert lacks them
	bare := &models.Alert{ID: "ALT-2", Description: "d", CreatedAt: time.Now()}
	message = BuildMessage(bare)
	assert.NotContains(t, message, "Site:")
	assert.NotContains(t, message, "Confidence:")
}

func TestFormatSMS(t *testing.T) {
	t.Run("SubjectFoldedIntoBody", func(t *testing.T) {
		body := FormatSMS("Alert", "short message")
		assert.Equal(t, "Alert\nshort message", body)
	})

	t.Run("LongBodyTruncated", func(t *testing.T) {
		long := strings.Repeat("x", 300)
		body := FormatSMS("Alert", long)
		assert.Len(t, body, 160)
		assert.True(t, strings.HasSuffix(body, "..."))
	})

	t.Run("EmptySubject", func(t *testing.T) {
		assert.Equal(t, "message", FormatSMS("", "message"))
	})

	t.Run("MultiByteNeverSplit", func(t *testing.T) {
		// The 157th character is multi-byte; byte-indexed truncation would
		// cut it in half.
		long := strings.Repeat("a", 156) + "é" + strings.Repeat("b", 20)
		body := FormatSMS("", long)
		assert.True(t, utf8.ValidString(body))
		assert.Equal(t, 160, utf8.RuneCountInString(body))
		assert.True(t, strings.HasSuffix(body, "é..."))
	})
	t.Logf("✓ SMS bodies fit one segment")
}

func TestFormatWhatsApp(t *testing.T) {
	metadata := map[string]string{"alert_id": "ALT-1", "camera_id": "CAM-7"}
	body := FormatWhatsApp("Fall Alert", "Worker down", metadata)

	assert.True(t, strings.HasPrefix(body, "*Fall Alert*\n\n"))
	assert.Contains(t, body, "Worker down")
	assert.Contains(t, body, "Alert ID: ALT-1")
	assert.Contains(t, body, "Camera: CAM-7")

	// Reference lines drop out with empty metadata
	body = FormatWhatsApp("Fall Alert", "Worker down", map[string]string{})
	assert.NotContains(t, body, "Alert ID:")
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+15550001", normalizePhone("15550001"))
	assert.Equal(t, "+15550001", normalizePhone("+15550001"))
	assert.Equal(t, "+15550001", normalizePhone(" 15550001 "))
	assert.Equal(t, "", normalizePhone(""))
}

func TestFormatEmailHTML(t *testing.T) {
	alert := dispatchTestAlert()
	metadata := map[string]string{
		"alert_id": alert.ID,
		"severity": string(alert.Severity),
		"site_id":  alert.SiteID,
	}

	rendered := FormatEmailHTML(BuildSubject(alert), BuildMessage(alert), metadata)
	assert.Contains(t, rendered, "#dc2626", "critical alerts use the red accent")
	assert.Contains(t, rendered, "ALT-TEST1")
	assert.Contains(t, rendered, "SITE-A")

	// Detector-supplied text must not inject markup
	rendered = FormatEmailHTML("<script>alert(1)</script>", "a < b", map[string]string{
		"zone": "<img src=x>",
	})
	assert.NotContains(t, rendered, "<script>")
	assert.NotContains(t, rendered, "<img")
	assert.Contains(t, rendered, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.Contains(t, rendered, "a &lt; b")
	assert.Contains(t, rendered, "&lt;img src=x&gt;")
}

func TestStaticDirectory(t *testing.T) {
	d := NewStaticDirectory()
	d.AddRecipient("ORG-1", &models.Recipient{ID: "sup-1", Role: "supervisor"})
	d.AddRecipient("ORG-1", &models.Recipient{ID: "sup-2", Role: "supervisor"})
	d.AddRecipient("ORG-2", &models.Recipient{ID: "mgr-1", Role: "safety_manager"})

	assert.Len(t, d.RecipientsByRole("ORG-1", "supervisor"), 2)
	assert.Empty(t, d.RecipientsByRole("ORG-1", "safety_manager"))
	assert.Empty(t, d.RecipientsByRole("ORG-3", "supervisor"))

	r, ok := d.RecipientByID("ORG-2", "mgr-1")
	require.True(t, ok)
	assert.Equal(t, "safety_manager", r.Role)

	_, ok = d.RecipientByID("ORG-1", "mgr-1")
	assert.False(t, ok)
	t.Logf("✓ Directory resolves by role and id per organization")
}
