// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/pkg/utils"
)

// SQLiteStorage implements Store using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *Config
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *Config) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable foreign keys", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// SaveAlert inserts or replaces an alert row.
func (s *SQLiteStorage) SaveAlert(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT OR REPLACE INTO alerts
		(id, type, severity, status, title, description, source, source_id,
		 camera_id, site_id, zone, organization_id, confidence, metadata,
		 evidence, actions_taken, autonomous_actions, assigned_to,
		 acknowledged_by, acknowledged_at, resolved_by, resolved_at,
		 escalation_level, escalated_at, escalation_path, notifications_sent,
		 created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	args, err := alertRowArgs(alert)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save alert", err.Error())
	}
	return nil
}

// UpdateAlert replaces a stored alert.
func (s *SQLiteStorage) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	return s.SaveAlert(ctx, alert)
}

// GetAlert returns one alert by id.
func (s *SQLiteStorage) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	query := selectAlertColumns + ` FROM alerts WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Alert not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get alert", err.Error())
	}
	return alert, nil
}

// GetAlerts returns alerts matching filter, newest first.
func (s *SQLiteStorage) GetAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	query, args := buildAlertQuery(selectAlertColumns+" FROM alerts", filter, "?")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query alerts", err.Error())
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan alert", err.Error())
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// GetAlertCount counts alerts matching filter.
func (s *SQLiteStorage) GetAlertCount(ctx context.Context, filter models.AlertFilter) (int64, error) {
	filter.Limit = 0
	filter.Offset = 0
	query, args := buildAlertQuery("SELECT COUNT(*) FROM alerts", filter, "?")

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count alerts", err.Error())
	}
	return count, nil
}

// SaveAlertRule inserts or replaces an alert rule row.
func (s *SQLiteStorage) SaveAlertRule(ctx context.Context, rule *models.AlertRule) error {
	query := `
		INSERT OR REPLACE INTO alert_rules
		(id, name, description, trigger_type, severity, conditions, actions,
		 notify_channels, notify_roles, notify_users, enable_escalation,
		 escalation_delay_minutes, organization_id, sites, cameras, is_active,
		 priority, created_at, created_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	args, err := alertRuleRowArgs(rule)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save alert rule", err.Error())
	}
	return nil
}

// GetAlertRule returns one alert rule by id.
func (s *SQLiteStorage) GetAlertRule(ctx context.Context, id string) (*models.AlertRule, error) {
	query := selectAlertRuleColumns + ` FROM alert_rules WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	rule, err := scanAlertRule(row)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Rule not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get alert rule", err.Error())
	}
	return rule, nil
}

// GetAlertRules returns the alert rules for an organization.
func (s *SQLiteStorage) GetAlertRules(ctx context.Context, organizationID string) ([]*models.AlertRule, error) {
	query := selectAlertRuleColumns + ` FROM alert_rules WHERE organization_id = ? ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query alert rules", err.Error())
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		rule, err := scanAlertRule(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan alert rule", err.Error())
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// DeleteAlertRule removes an alert rule.
func (s *SQLiteStorage) DeleteAlertRule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete alert rule", err.Error())
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Rule not found", id)
	}
	return nil
}

// SaveEscalationRule inserts or replaces an escalation rule row.
func (s *SQLiteStorage) SaveEscalationRule(ctx context.Context, rule *models.EscalationRule) error {
	query := `
		INSERT OR REPLACE INTO escalation_rules
		(id, name, alert_types, min_severity, escalation_levels,
		 organization_id, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	args, err := escalationRuleRowArgs(rule)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save escalation rule", err.Error())
	}
	return nil
}

// GetEscalationRules returns the escalation rules for an organization.
func (s *SQLiteStorage) GetEscalationRules(ctx context.Context, organizationID string) ([]*models.EscalationRule, error) {
	query := selectEscalationRuleColumns + ` FROM escalation_rules WHERE organization_id = ? ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query escalation rules", err.Error())
	}
	defer rows.Close()

	var rules []*models.EscalationRule
	for rows.Next() {
		rule, err := scanEscalationRule(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan escalation rule", err.Error())
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// DeleteEscalationRule removes an escalation rule.
func (s *SQLiteStorage) DeleteEscalationRule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM escalation_rules WHERE id = ?`, id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete escalation rule", err.Error())
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Rule not found", id)
	}
	return nil
}

// SaveAction inserts or replaces an action row.
func (s *SQLiteStorage) SaveAction(ctx context.Context, action *models.AlertAction) error {
	query := `
		INSERT OR REPLACE INTO alert_actions
		(id, alert_id, action_type, status, executed_at, completed_at,
		 success, result, error, target, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	args, err := actionRowArgs(action)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save action", err.Error())
	}
	return nil
}

// GetActions returns the actions for an alert, oldest first.
func (s *SQLiteStorage) GetActions(ctx context.Context, alertID string) ([]*models.AlertAction, error) {
	query := selectActionColumns + ` FROM alert_actions WHERE alert_id = ? ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query actions", err.Error())
	}
	defer rows.Close()

	var actions []*models.AlertAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan action", err.Error())
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

// SaveNotification inserts or replaces a notification row.
func (s *SQLiteStorage) SaveNotification(ctx context.Context, notification *models.Notification) error {
	query := `
		INSERT OR REPLACE INTO notifications
		(id, alert_id, channel, recipient_id, recipient_contact, subject,
		 message, status, sent_at, delivered_at, read_at, provider,
		 provider_id, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		notification.ID, notification.AlertID, notification.Channel,
		notification.RecipientID, notification.RecipientContact,
		notification.Subject, notification.Message, notification.Status,
		notification.SentAt, notification.DeliveredAt, notification.ReadAt,
		notification.Provider, notification.ProviderID, notification.Error,
		notification.CreatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save notification", err.Error())
	}
	return nil
}

// UpdateNotificationStatus updates delivery status and error of a notification.
func (s *SQLiteStorage) UpdateNotificationStatus(ctx context.Context, id string, status models.NotificationStatus, errMsg string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = ?, error = ? WHERE id = ?`,
		status, errMsg, id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update notification", err.Error())
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Notification not found", id)
	}
	return nil
}

// GetNotifications returns notifications for an alert, oldest first.
func (s *SQLiteStorage) GetNotifications(ctx context.Context, alertID string) ([]*models.Notification, error) {
	query := selectNotificationColumns + ` FROM notifications WHERE alert_id = ? ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query notifications", err.Error())
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan notification", err.Error())
		}
		notifications = append(notifications, notification)
	}
	return notifications, rows.Err()
}

// GetStorageStats returns counts over all stored records.
func (s *SQLiteStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&stats.TotalAlerts); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count alerts", err.Error())
	}

	var ruleCount, escalationCount int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_rules`).Scan(&ruleCount); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count rules", err.Error())
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM escalation_rules`).Scan(&escalationCount); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count escalation rules", err.Error())
	}
	stats.TotalRules = ruleCount + escalationCount

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&stats.TotalNotifications); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count notifications", err.Error())
	}

	var oldest, latest sql.NullTime
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(created_at), MAX(created_at) FROM alerts`).Scan(&oldest, &latest); err == nil {
		if oldest.Valid {
			stats.OldestAlert = &oldest.Time
		}
		if latest.Valid {
			stats.LatestAlert = &latest.Time
		}
	}

	return stats, nil
}

// Cleanup drops terminal alerts (and their actions/notifications) older than
// the retention window.
func (s *SQLiteStorage) Cleanup(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin cleanup transaction", err.Error())
	}
	defer tx.Rollback()

	terminal := []interface{}{string(models.StatusResolved), string(models.StatusDismissed), cutoff}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM alert_actions WHERE alert_id IN
		 (SELECT id FROM alerts WHERE status IN (?, ?) AND created_at < ?)`, terminal...); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean up actions", err.Error())
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM notifications WHERE alert_id IN
		 (SELECT id FROM alerts WHERE status IN (?, ?) AND created_at < ?)`, terminal...); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean up notifications", err.Error())
	}
	result, err := tx.ExecContext(ctx,
		`DELETE FROM alerts WHERE status IN (?, ?) AND created_at < ?`, terminal...)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean up alerts", err.Error())
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit cleanup", err.Error())
	}

	if removed, _ := result.RowsAffected(); removed > 0 {
		s.logger.WithFields(logrus.Fields{
			"removed":        removed,
			"retention_days": retentionDays,
		}).Info("Storage cleanup completed")
	}
	return nil
}

// buildAlertQuery appends filter predicates and pagination to a base SELECT.
// placeholder is "?" for SQLite; PostgreSQL rewrites afterwards.
func buildAlertQuery(base string, filter models.AlertFilter, placeholder string) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	add := func(column string, value interface{}) {
		conditions = append(conditions, fmt.Sprintf("%s = %s", column, placeholder))
		args = append(args, value)
	}

	if filter.OrganizationID != "" {
		add("organization_id", filter.OrganizationID)
	}
	if filter.Severity != nil {
		add("severity", string(*filter.Severity))
	}
	if filter.Type != nil {
		add("type", string(*filter.Type))
	}
	if filter.Status != nil {
		add("status", string(*filter.Status))
	}
	if filter.SiteID != "" {
		add("site_id", filter.SiteID)
	}
	if filter.CameraID != "" {
		add("camera_id", filter.CameraID)
	}

	query := base
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if !strings.HasPrefix(base, "SELECT COUNT") {
		query += " ORDER BY created_at DESC"
		if filter.Limit > 0 {
			query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		}
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}
	return query, args
}
