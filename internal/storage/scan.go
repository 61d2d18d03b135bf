// File: internal/storage/scan.go
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/pkg/utils"
)

// Column lists shared by the SQLite and PostgreSQL backends. Scan helpers
// below depend on this exact ordering.
const (
	selectAlertColumns = `SELECT id, type, severity, status, title, description, source, source_id,
		camera_id, site_id, zone, organization_id, confidence, metadata,
		evidence, actions_taken, autonomous_actions, assigned_to,
		acknowledged_by, acknowledged_at, resolved_by, resolved_at,
		escalation_level, escalated_at, escalation_path, notifications_sent,
		created_at, updated_at, expires_at`

	selectAlertRuleColumns = `SELECT id, name, description, trigger_type, severity, conditions, actions,
		notify_channels, notify_roles, notify_users, enable_escalation,
		escalation_delay_minutes, organization_id, sites, cameras, is_active,
		priority, created_at, created_by, updated_at`

	selectEscalationRuleColumns = `SELECT id, name, alert_types, min_severity, escalation_levels,
		organization_id, is_active, created_at`

	selectActionColumns = `SELECT id, alert_id, action_type, status, executed_at, completed_at,
		success, result, error, target, created_at`

	selectNotificationColumns = `SELECT id, alert_id, channel, recipient_id, recipient_contact, subject,
		message, status, sent_at, delivered_at, read_at, provider,
		provider_id, error, created_at`
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func marshalColumn(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal column", err.Error())
	}
	return string(data), nil
}

func unmarshalColumn(data sql.NullString, v interface{}) error {
	if !data.Valid || data.String == "" || data.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(data.String), v)
}

func alertRowArgs(alert *models.Alert) ([]interface{}, error) {
	metadata, err := marshalColumn(alert.Metadata)
	if err != nil {
		return nil, err
	}
	evidence, err := marshalColumn(alert.Evidence)
	if err != nil {
		return nil, err
	}
	actionsTaken, err := marshalColumn(alert.ActionsTaken)
	if err != nil {
		return nil, err
	}
	autonomousActions, err := marshalColumn(alert.AutonomousActions)
	if err != nil {
		return nil, err
	}
	escalationPath, err := marshalColumn(alert.EscalationPath)
	if err != nil {
		return nil, err
	}
	notificationsSent, err := marshalColumn(alert.NotificationsSent)
	if err != nil {
		return nil, err
	}

	return []interface{}{
		alert.ID, alert.Type, alert.Severity, alert.Status, alert.Title,
		alert.Description, alert.Source, alert.SourceID, alert.CameraID,
		alert.SiteID, alert.Zone, alert.OrganizationID, alert.Confidence,
		metadata, evidence, actionsTaken, autonomousActions,
		alert.AssignedTo, alert.AcknowledgedBy, alert.AcknowledgedAt,
		alert.ResolvedBy, alert.ResolvedAt, alert.EscalationLevel,
		alert.EscalatedAt, escalationPath, notificationsSent,
		alert.CreatedAt, alert.UpdatedAt, alert.ExpiresAt,
	}, nil
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	alert := &models.Alert{}
	var sourceID, cameraID, siteID, zone, assignedTo, acknowledgedBy, resolvedBy sql.NullString
	var metadata, evidence, actionsTaken, autonomousActions, escalationPath, notificationsSent sql.NullString
	var acknowledgedAt, resolvedAt, escalatedAt, updatedAt, expiresAt sql.NullTime

	err := row.Scan(
		&alert.ID, &alert.Type, &alert.Severity, &alert.Status, &alert.Title,
		&alert.Description, &alert.Source, &sourceID, &cameraID, &siteID,
		&zone, &alert.OrganizationID, &alert.Confidence, &metadata,
		&evidence, &actionsTaken, &autonomousActions, &assignedTo,
		&acknowledgedBy, &acknowledgedAt, &resolvedBy, &resolvedAt,
		&alert.EscalationLevel, &escalatedAt, &escalationPath,
		&notificationsSent, &alert.CreatedAt, &updatedAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}

	alert.SourceID = sourceID.String
	alert.CameraID = cameraID.String
	alert.SiteID = siteID.String
	alert.Zone = zone.String
	alert.AssignedTo = assignedTo.String
	alert.AcknowledgedBy = acknowledgedBy.String
	alert.ResolvedBy = resolvedBy.String

	if acknowledgedAt.Valid {
		alert.AcknowledgedAt = &acknowledgedAt.Time
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}
	if escalatedAt.Valid {
		alert.EscalatedAt = &escalatedAt.Time
	}
	if updatedAt.Valid {
		alert.UpdatedAt = &updatedAt.Time
	}
	if expiresAt.Valid {
		alert.ExpiresAt = &expiresAt.Time
	}

	if err := unmarshalColumn(metadata, &alert.Metadata); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(evidence, &alert.Evidence); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(actionsTaken, &alert.ActionsTaken); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(autonomousActions, &alert.AutonomousActions); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(escalationPath, &alert.EscalationPath); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(notificationsSent, &alert.NotificationsSent); err != nil {
		return nil, err
	}
	return alert, nil
}

func alertRuleRowArgs(rule *models.AlertRule) ([]interface{}, error) {
	conditions, err := marshalColumn(rule.Conditions)
	if err != nil {
		return nil, err
	}
	actions, err := marshalColumn(rule.Actions)
	if err != nil {
		return nil, err
	}
	channels, err := marshalColumn(rule.NotifyChannels)
	if err != nil {
		return nil, err
	}
	roles, err := marshalColumn(rule.NotifyRoles)
	if err != nil {
		return nil, err
	}
	users, err := marshalColumn(rule.NotifyUsers)
	if err != nil {
		return nil, err
	}
	sites, err := marshalColumn(rule.Sites)
	if err != nil {
		return nil, err
	}
	cameras, err := marshalColumn(rule.Cameras)
	if err != nil {
		return nil, err
	}

	return []interface{}{
		rule.ID, rule.Name, rule.Description, rule.TriggerType,
		rule.Severity, conditions, actions, channels, roles, users,
		rule.EnableEscalation, rule.EscalationDelayMinutes,
		rule.OrganizationID, sites, cameras, rule.IsActive, rule.Priority,
		rule.CreatedAt, rule.CreatedBy, rule.UpdatedAt,
	}, nil
}

func scanAlertRule(row rowScanner) (*models.AlertRule, error) {
	rule := &models.AlertRule{}
	var description, createdBy sql.NullString
	var conditions, actions, channels, roles, users, sites, cameras sql.NullString
	var updatedAt sql.NullTime

	err := row.Scan(
		&rule.ID, &rule.Name, &description, &rule.TriggerType,
		&rule.Severity, &conditions, &actions, &channels, &roles, &users,
		&rule.EnableEscalation, &rule.EscalationDelayMinutes,
		&rule.OrganizationID, &sites, &cameras, &rule.IsActive,
		&rule.Priority, &rule.CreatedAt, &createdBy, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.CreatedBy = createdBy.String
	if updatedAt.Valid {
		rule.UpdatedAt = &updatedAt.Time
	}

	if err := unmarshalColumn(conditions, &rule.Conditions); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(actions, &rule.Actions); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(channels, &rule.NotifyChannels); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(roles, &rule.NotifyRoles); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(users, &rule.NotifyUsers); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(sites, &rule.Sites); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(cameras, &rule.Cameras); err != nil {
		return nil, err
	}
	return rule, nil
}

func escalationRuleRowArgs(rule *models.EscalationRule) ([]interface{}, error) {
	alertTypes, err := marshalColumn(rule.AlertTypes)
	if err != nil {
		return nil, err
	}
	levels, err := marshalColumn(rule.EscalationLevels)
	if err != nil {
		return nil, err
	}

	return []interface{}{
		rule.ID, rule.Name, alertTypes, rule.MinSeverity, levels,
		rule.OrganizationID, rule.IsActive, rule.CreatedAt,
	}, nil
}

func scanEscalationRule(row rowScanner) (*models.EscalationRule, error) {
	rule := &models.EscalationRule{}
	var alertTypes, levels sql.NullString

	err := row.Scan(
		&rule.ID, &rule.Name, &alertTypes, &rule.MinSeverity, &levels,
		&rule.OrganizationID, &rule.IsActive, &rule.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalColumn(alertTypes, &rule.AlertTypes); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(levels, &rule.EscalationLevels); err != nil {
		return nil, err
	}
	return rule, nil
}

func actionRowArgs(action *models.AlertAction) ([]interface{}, error) {
	result, err := marshalColumn(action.Result)
	if err != nil {
		return nil, err
	}

	return []interface{}{
		action.ID, action.AlertID, action.ActionType, action.Status,
		action.ExecutedAt, action.CompletedAt, action.Success, result,
		action.Error, action.Target, action.CreatedAt,
	}, nil
}

func scanAction(row rowScanner) (*models.AlertAction, error) {
	action := &models.AlertAction{}
	var result, errMsg, target sql.NullString
	var executedAt, completedAt sql.NullTime

	err := row.Scan(
		&action.ID, &action.AlertID, &action.ActionType, &action.Status,
		&executedAt, &completedAt, &action.Success, &result, &errMsg,
		&target, &action.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	action.Error = errMsg.String
	action.Target = target.String
	if executedAt.Valid {
		action.ExecutedAt = &executedAt.Time
	}
	if completedAt.Valid {
		action.CompletedAt = &completedAt.Time
	}

	if err := unmarshalColumn(result, &action.Result); err != nil {
		return nil, err
	}
	return action, nil
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	notification := &models.Notification{}
	var recipientID, subject, provider, providerID, errMsg sql.NullString
	var sentAt, deliveredAt, readAt sql.NullTime

	err := row.Scan(
		&notification.ID, &notification.AlertID, &notification.Channel,
		&recipientID, &notification.RecipientContact, &subject,
		&notification.Message, &notification.Status, &sentAt, &deliveredAt,
		&readAt, &provider, &providerID, &errMsg, &notification.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	notification.RecipientID = recipientID.String
	notification.Subject = subject.String
	notification.Provider = provider.String
	notification.ProviderID = providerID.String
	notification.Error = errMsg.String
	if sentAt.Valid {
		notification.SentAt = &sentAt.Time
	}
	if deliveredAt.Valid {
		notification.DeliveredAt = &deliveredAt.Time
	}
	if readAt.Valid {
		notification.ReadAt = &readAt.Time
	}
	return notification, nil
}

// rebind converts "?" placeholders to PostgreSQL's "$n" form.
func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
