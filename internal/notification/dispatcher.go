// File: internal/notification/dispatcher.go
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/internal/storage"
	"github.com/safesite/alert-engine/pkg/utils"
)

// AlertRecorder appends notification receipts to an alert under its own
// lock. Implemented by the alert engine.
type AlertRecorder interface {
	UpdateAlert(id string, fn func(*models.Alert) error) error
}

// DispatchStats aggregates dispatcher counters. DeliveryRate is sent over
// attempted (sent plus failed); skipped pairings are not attempts.
type DispatchStats struct {
	TotalSent    int64                        `json:"total_sent"`
	TotalFailed  int64                        `json:"total_failed"`
	TotalSkipped int64                        `json:"total_skipped"`
	ByChannel    map[models.ChannelType]int64 `json:"by_channel"`
	DeliveryRate float64                      `json:"delivery_rate"`
}

// Dispatcher fans alert notifications out to recipients across channels.
// The fan-out is best-effort and never transactional: a failed or skipped
// pairing does not stop the rest of the batch.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[models.ChannelType]Channel

	recorder AlertRecorder
	store    storage.Store
	logger   *NotificationLogger

	sent    int64
	failed  int64
	skipped int64
	byChan  map[models.ChannelType]int64
}

// severityEmojis prefix notification subjects so the severity is readable at
// a glance on any channel.
var severityEmojis = map[models.AlertSeverity]string{
	models.SeverityCritical: "🚨",
	models.SeverityHigh:     "⚠️",
	models.SeverityMedium:   "⚡",
	models.SeverityLow:      "ℹ️",
	models.SeverityInfo:     "📢",
}

// NewDispatcher creates a notification dispatcher. The recorder and store
// may be nil; receipts and notification records are then kept only on the
// returned Notification values.
func NewDispatcher(recorder AlertRecorder, store storage.Store) *Dispatcher {
	return &Dispatcher{
		channels: make(map[models.ChannelType]Channel),
		recorder: recorder,
		store:    store,
		logger:   NewNotificationLogger(),
		byChan:   make(map[models.ChannelType]int64),
	}
}

// RegisterChannel makes a delivery channel available to the fan-out.
func (d *Dispatcher) RegisterChannel(channel Channel) {
	d.mu.Lock()
	d.channels[channel.Type()] = channel
	d.mu.Unlock()

	d.logger.Info("Notification channel registered", map[string]interface{}{
		"channel": string(channel.Type()),
	})
}

// Channels returns the registered channel types.
func (d *Dispatcher) Channels() []models.ChannelType {
	d.mu.RLock()
	defer d.mu.RUnlock()

	types := make([]models.ChannelType, 0, len(d.channels))
	for t := range d.channels {
		types = append(types, t)
	}
	return types
}

// SendAlertNotification delivers an alert to every recipient on every
// requested channel. One Notification record is produced per attempted
// pairing; recipients without a contact for a channel are skipped silently.
func (d *Dispatcher) SendAlertNotification(ctx context.Context, alert *models.Alert, recipients []*models.Recipient, channels []models.ChannelType) []*models.Notification {
	startTime := time.Now()
	d.logger.LogDispatchStart(alert.ID, len(recipients), len(channels))

	subject := BuildSubject(alert)
	message := BuildMessage(alert)
	metadata := buildMetadata(alert)

	var notifications []*models.Notification
	var sent, failed, skipped int

	for _, recipient := range recipients {
		for _, channelType := range channels {
			channel := d.channel(channelType)
			if channel == nil {
				skipped++
				continue
			}
			contact, ok := recipient.Contact(channelType)
			if !ok {
				skipped++
				continue
			}

			notification := models.NewNotification(alert.ID, channelType, recipient.ID, contact, subject, message)
			providerID, err := channel.Send(ctx, contact, subject, message, metadata)

			now := time.Now()
			if err != nil {
				notification.Status = models.NotificationFailed
				notification.Error = err.Error()
				failed++
			} else {
				notification.Status = models.NotificationSent
				notification.SentAt = &now
				notification.ProviderID = providerID
				sent++
			}

			notifications = append(notifications, notification)
			d.persist(ctx, notification)
		}
	}

	d.recordReceipts(alert.ID, notifications)
	d.updateStats(notifications, skipped)
	d.logger.LogDispatchResult(alert.ID, sent, failed, skipped, time.Since(startTime))

	return notifications
}

// NotifyEscalation delivers an executed escalation step. Satisfies the
// escalation manager's Notifier interface.
func (d *Dispatcher) NotifyEscalation(ctx context.Context, alert *models.Alert, entry models.EscalationEntry, recipients []*models.Recipient, channels []models.ChannelType) {
	escalated := *alert
	escalated.Title = fmt.Sprintf("[ESCALATION L%d] %s", entry.Level, alert.Title)
	escalated.Description = fmt.Sprintf("Alert unresolved after escalation to level %d. %s", entry.Level, alert.Description)

	d.SendAlertNotification(ctx, &escalated, recipients, channels)
}

// SendTestNotification exercises one channel end to end. Used by the admin
// API to verify provider credentials.
func (d *Dispatcher) SendTestNotification(ctx context.Context, channelType models.ChannelType, contact string) error {
	channel := d.channel(channelType)
	if channel == nil {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Channel not registered", string(channelType))
	}

	subject := "SafeSite Alert Engine - Test Notification"
	message := "This is a test notification. If you received it, the channel is configured correctly."
	metadata := map[string]string{"severity": string(models.SeverityInfo)}

	_, err := channel.Send(ctx, contact, subject, message, metadata)
	return err
}

// GetStats returns dispatcher counters and the delivery rate.
func (d *Dispatcher) GetStats() *DispatchStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := &DispatchStats{
		TotalSent:    d.sent,
		TotalFailed:  d.failed,
		TotalSkipped: d.skipped,
		ByChannel:    make(map[models.ChannelType]int64, len(d.byChan)),
	}
	for ch, n := range d.byChan {
		stats.ByChannel[ch] = n
	}
	if attempted := d.sent + d.failed; attempted > 0 {
		stats.DeliveryRate = float64(d.sent) / float64(attempted)
	}
	return stats
}

// BuildSubject renders the notification subject with the severity emoji
// prefix.
func BuildSubject(alert *models.Alert) string {
	emoji, ok := severityEmojis[alert.Severity]
	if !ok {
		emoji = severityEmojis[models.SeverityInfo]
	}
	return fmt.Sprintf("%s %s Alert: %s", emoji, strings.ToUpper(string(alert.Severity)), alert.Title)
}

// BuildMessage renders the notification body: description followed by the
// reference lines present on the alert.
func BuildMessage(alert *models.Alert) string {
	var b strings.Builder
	b.WriteString(alert.Description)
	b.WriteString("\n")

	if alert.SiteID != "" {
		fmt.Fprintf(&b, "\nSite: %s", alert.SiteID)
	}
	if alert.CameraID != "" {
		fmt.Fprintf(&b, "\nCamera: %s", alert.CameraID)
	}
	if alert.Zone != "" {
		fmt.Fprintf(&b, "\nZone: %s", alert.Zone)
	}
	if alert.Confidence > 0 {
		fmt.Fprintf(&b, "\nConfidence: %.0f%%", alert.Confidence*100)
	}
	fmt.Fprintf(&b, "\nTime: %s", alert.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "\nAlert ID: %s", alert.ID)

	return b.String()
}

func buildMetadata(alert *models.Alert) map[string]string {
	return map[string]string{
		"alert_id":  alert.ID,
		"severity":  string(alert.Severity),
		"site_id":   alert.SiteID,
		"camera_id": alert.CameraID,
		"zone":      alert.Zone,
	}
}

func (d *Dispatcher) channel(channelType models.ChannelType) Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.channels[channelType]
}

func (d *Dispatcher) persist(ctx context.Context, notification *models.Notification) {
	if d.store == nil {
		return
	}
	if err := d.store.SaveNotification(ctx, notification); err != nil {
		d.logger.Warn("Failed to persist notification", map[string]interface{}{
			"notification_id": notification.ID,
			"error":           err.Error(),
		})
	}
}

// recordReceipts appends compact receipts to the alert under its lock.
func (d *Dispatcher) recordReceipts(alertID string, notifications []*models.Notification) {
	if d.recorder == nil || len(notifications) == 0 {
		return
	}

	err := d.recorder.UpdateAlert(alertID, func(alert *models.Alert) error {
		for _, n := range notifications {
			alert.NotificationsSent = append(alert.NotificationsSent, models.NotificationReceipt{
				NotificationID: n.ID,
				Channel:        string(n.Channel),
				SentAt:         n.SentAt,
			})
		}
		return nil
	})
	if err != nil {
		d.logger.Warn("Failed to record notification receipts", map[string]interface{}{
			"alert_id": alertID,
			"error":    err.Error(),
		})
	}
}

func (d *Dispatcher) updateStats(notifications []*models.Notification, skipped int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.skipped += int64(skipped)
	for _, n := range notifications {
		switch n.Status {
		case models.NotificationSent:
			d.sent++
			d.byChan[n.Channel]++
		case models.NotificationFailed:
			d.failed++
		}
	}
}
