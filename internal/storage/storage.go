// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/safesite/alert-engine/internal/models"
)

// Store defines the persistence interface for the alert engine. The engine
// core is storage-agnostic: all implementations are interchangeable and the
// in-memory store is the reference implementation.
type Store interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Alert operations
	SaveAlert(ctx context.Context, alert *models.Alert) error
	UpdateAlert(ctx context.Context, alert *models.Alert) error
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	GetAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error)
	GetAlertCount(ctx context.Context, filter models.AlertFilter) (int64, error)

	// Alert rule operations
	SaveAlertRule(ctx context.Context, rule *models.AlertRule) error
	GetAlertRule(ctx context.Context, id string) (*models.AlertRule, error)
	GetAlertRules(ctx context.Context, organizationID string) ([]*models.AlertRule, error)
	DeleteAlertRule(ctx context.Context, id string) error

	// Escalation rule operations
	SaveEscalationRule(ctx context.Context, rule *models.EscalationRule) error
	GetEscalationRules(ctx context.Context, organizationID string) ([]*models.EscalationRule, error)
	DeleteEscalationRule(ctx context.Context, id string) error

	// Action operations
	SaveAction(ctx context.Context, action *models.AlertAction) error
	GetActions(ctx context.Context, alertID string) ([]*models.AlertAction, error)

	// Notification operations
	SaveNotification(ctx context.Context, notification *models.Notification) error
	UpdateNotificationStatus(ctx context.Context, id string, status models.NotificationStatus, errMsg string) error
	GetNotifications(ctx context.Context, alertID string) ([]*models.Notification, error)

	// Statistics and maintenance
	GetStorageStats(ctx context.Context) (*StorageStats, error)
	Cleanup(ctx context.Context, retentionDays int) error
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalAlerts        int64      `json:"total_alerts"`
	TotalRules         int64      `json:"total_rules"`
	TotalNotifications int64      `json:"total_notifications"`
	OldestAlert        *time.Time `json:"oldest_alert,omitempty"`
	LatestAlert        *time.Time `json:"latest_alert,omitempty"`
	LastCleanup        *time.Time `json:"last_cleanup,omitempty"`
}

// Config holds storage configuration
type Config struct {
	Type             string        `json:"type"` // memory, sqlite, postgres
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
	RetentionDays    int           `json:"retention_days"`
}
