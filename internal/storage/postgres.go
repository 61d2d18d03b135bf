// File: internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/pkg/utils"
)

// PostgreSQLStorage implements Store using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *Config
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *Config) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgreSQLMigrations(),
	}
}

// Connect establishes database connection
func (s *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (s *PostgreSQLStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgreSQLStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *PostgreSQLStorage) Migrate() error {
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

// SaveAlert upserts an alert row.
func (s *PostgreSQLStorage) SaveAlert(ctx context.Context, alert *models.Alert) error {
	query := rebind(`
		INSERT INTO alerts
		(id, type, severity, status, title, description, source, source_id,
		 camera_id, site_id, zone, organization_id, confidence, metadata,
		 evidence, actions_taken, autonomous_actions, assigned_to,
		 acknowledged_by, acknowledged_at, resolved_by, resolved_at,
		 escalation_level, escalated_at, escalation_path, notifications_sent,
		 created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			severity = EXCLUDED.severity,
			metadata = EXCLUDED.metadata,
			actions_taken = EXCLUDED.actions_taken,
			autonomous_actions = EXCLUDED.autonomous_actions,
			assigned_to = EXCLUDED.assigned_to,
			acknowledged_by = EXCLUDED.acknowledged_by,
			acknowledged_at = EXCLUDED.acknowledged_at,
			resolved_by = EXCLUDED.resolved_by,
			resolved_at = EXCLUDED.resolved_at,
			escalation_level = EXCLUDED.escalation_level,
			escalated_at = EXCLUDED.escalated_at,
			escalation_path = EXCLUDED.escalation_path,
			notifications_sent = EXCLUDED.notifications_sent,
			updated_at = EXCLUDED.updated_at
	`)

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
func (s *PostgreSQLStorage) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	return s.SaveAlert(ctx, alert)
}

// GetAlert returns one alert by id.
func (s *PostgreSQLStorage) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	query := rebind(selectAlertColumns + ` FROM alerts WHERE id = ?`)
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
func (s *PostgreSQLStorage) GetAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	query, args := buildAlertQuery(selectAlertColumns+" FROM alerts", filter, "?")
	query = rebind(query)

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
func (s *PostgreSQLStorage) GetAlertCount(ctx context.Context, filter models.AlertFilter) (int64, error) {
	filter.Limit = 0
	filter.Offset = 0
	query, args := buildAlertQuery("SELECT COUNT(*) FROM alerts", filter, "?")
	query = rebind(query)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count alerts", err.Error())
	}
	return count, nil
}

// SaveAlertRule upserts an alert rule row.
func (s *PostgreSQLStorage) SaveAlertRule(ctx context.Context, rule *models.AlertRule) error {
	query := rebind(`
		INSERT INTO alert_rules
		(id, name, description, trigger_type, severity, conditions, actions,
		 notify_channels, notify_roles, notify_users, enable_escalation,
		 escalation_delay_minutes, organization_id, sites, cameras, is_active,
		 priority, created_at, created_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			trigger_type = EXCLUDED.trigger_type,
			severity = EXCLUDED.severity,
			conditions = EXCLUDED.conditions,
			actions = EXCLUDED.actions,
			notify_channels = EXCLUDED.notify_channels,
			notify_roles = EXCLUDED.notify_roles,
			notify_users = EXCLUDED.notify_users,
			enable_escalation = EXCLUDED.enable_escalation,
			escalation_delay_minutes = EXCLUDED.escalation_delay_minutes,
			sites = EXCLUDED.sites,
			cameras = EXCLUDED.cameras,
			is_active = EXCLUDED.is_active,
			priority = EXCLUDED.priority,
			updated_at = EXCLUDED.updated_at
	`)

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
func (s *PostgreSQLStorage) GetAlertRule(ctx context.Context, id string) (*models.AlertRule, error) {
	query := rebind(selectAlertRuleColumns + ` FROM alert_rules WHERE id = ?`)
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
func (s *PostgreSQLStorage) GetAlertRules(ctx context.Context, organizationID string) ([]*models.AlertRule, error) {
	query := rebind(selectAlertRuleColumns + ` FROM alert_rules WHERE organization_id = ? ORDER BY created_at ASC`)

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
func (s *PostgreSQLStorage) DeleteAlertRule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, rebind(`DELETE FROM alert_rules WHERE id = ?`), id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete alert rule", err.Error())
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Rule not found", id)
	}
	return nil
}

// SaveEscalationRule upserts an escalation rule row.
func (s *PostgreSQLStorage) SaveEscalationRule(ctx context.Context, rule *models.EscalationRule) error {
	query := rebind(`
		INSERT INTO escalation_rules
		(id, name, alert_types, min_severity, escalation_levels,
		 organization_id, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			alert_types = EXCLUDED.alert_types,
			min_severity = EXCLUDED.min_severity,
			escalation_levels = EXCLUDED.escalation_levels,
			is_active = EXCLUDED.is_active
	`)

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
func (s *PostgreSQLStorage) GetEscalationRules(ctx context.Context, organizationID string) ([]*models.EscalationRule, error) {
	query := rebind(selectEscalationRuleColumns + ` FROM escalation_rules WHERE organization_id = ? ORDER BY created_at ASC`)

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
func (s *PostgreSQLStorage) DeleteEscalationRule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, rebind(`DELETE FROM escalation_rules WHERE id = ?`), id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete escalation rule", err.Error())
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Rule not found", id)
	}
	return nil
}

// SaveAction upserts an action row.
func (s *PostgreSQLStorage) SaveAction(ctx context.Context, action *models.AlertAction) error {
	query := rebind(`
		INSERT INTO alert_actions
		(id, alert_id, action_type, status, executed_at, completed_at,
		 success, result, error, target, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			executed_at = EXCLUDED.executed_at,
			completed_at = EXCLUDED.completed_at,
			success = EXCLUDED.success,
			result = EXCLUDED.result,
			error = EXCLUDED.error
	`)

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
func (s *PostgreSQLStorage) GetActions(ctx context.Context, alertID string) ([]*models.AlertAction, error) {
	query := rebind(selectActionColumns + ` FROM alert_actions WHERE alert_id = ? ORDER BY created_at ASC`)

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

// SaveNotification upserts a notification row.
func (s *PostgreSQLStorage) SaveNotification(ctx context.Context, notification *models.Notification) error {
	query := rebind(`
		INSERT INTO notifications
		(id, alert_id, channel, recipient_id, recipient_contact, subject,
		 message, status, sent_at, delivered_at, read_at, provider,
		 provider_id, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			sent_at = EXCLUDED.sent_at,
			delivered_at = EXCLUDED.delivered_at,
			read_at = EXCLUDED.read_at,
			provider = EXCLUDED.provider,
			provider_id = EXCLUDED.provider_id,
			error = EXCLUDED.error
	`)

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
func (s *PostgreSQLStorage) UpdateNotificationStatus(ctx context.Context, id string, status models.NotificationStatus, errMsg string) error {
	result, err := s.db.ExecContext(ctx,
		rebind(`UPDATE notifications SET status = ?, error = ? WHERE id = ?`),
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
func (s *PostgreSQLStorage) GetNotifications(ctx context.Context, alertID string) ([]*models.Notification, error) {
	query := rebind(selectNotificationColumns + ` FROM notifications WHERE alert_id = ? ORDER BY created_at ASC`)

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
func (s *PostgreSQLStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
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
func (s *PostgreSQLStorage) Cleanup(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin cleanup transaction", err.Error())
	}
	defer tx.Rollback()

	terminal := []interface{}{string(models.StatusResolved), string(models.StatusDismissed), cutoff}

	if _, err := tx.ExecContext(ctx, rebind(
		`DELETE FROM alert_actions WHERE alert_id IN
		 (SELECT id FROM alerts WHERE status IN (?, ?) AND created_at < ?)`), terminal...); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean up actions", err.Error())
	}
	if _, err := tx.ExecContext(ctx, rebind(
		`DELETE FROM notifications WHERE alert_id IN
		 (SELECT id FROM alerts WHERE status IN (?, ?) AND created_at < ?)`), terminal...); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean up notifications", err.Error())
	}
	result, err := tx.ExecContext(ctx, rebind(
		`DELETE FROM alerts WHERE status IN (?, ?) AND created_at < ?`), terminal...)
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
