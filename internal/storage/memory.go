// File: internal/storage/memory.go
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/pkg/utils"
)

// MemoryStore is the reference in-memory implementation of Store. It is the
// default backend and the one unit tests run against.
type MemoryStore struct {
	mu sync.RWMutex

	alerts          map[string]*models.Alert
	alertRules      map[string]*models.AlertRule
	escalationRules map[string]*models.EscalationRule
	actions         map[string]*models.AlertAction
	notifications   map[string]*models.Notification

	lastCleanup *time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts:          make(map[string]*models.Alert),
		alertRules:      make(map[string]*models.AlertRule),
		escalationRules: make(map[string]*models.EscalationRule),
		actions:         make(map[string]*models.AlertAction),
		notifications:   make(map[string]*models.Notification),
	}
}

// Connect is a no-op for the in-memory store.
func (s *MemoryStore) Connect() error { return nil }

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// Ping is a no-op for the in-memory store.
func (s *MemoryStore) Ping() error { return nil }

// Migrate is a no-op for the in-memory store.
func (s *MemoryStore) Migrate() error { return nil }

// SaveAlert stores an alert.
func (s *MemoryStore) SaveAlert(ctx context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[alert.ID] = alert
	return nil
}

// UpdateAlert replaces a stored alert.
func (s *MemoryStore) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[alert.ID]; !ok {
		return utils.NewAppError(utils.ErrCodeNotFound, "Alert not found", alert.ID)
	}
	s.alerts[alert.ID] = alert
	return nil
}

// GetAlert returns a stored alert.
func (s *MemoryStore) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[id]
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Alert not found", id)
	}
	return alert, nil
}

// GetAlerts returns alerts matching filter, newest first.
func (s *MemoryStore) GetAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var alerts []*models.Alert
	for _, alert := range s.alerts {
		if matchesFilter(alert, filter) {
			alerts = append(alerts, alert)
		}
	}

	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(alerts) {
			return nil, nil
		}
		alerts = alerts[filter.Offset:]
	}
	if filter.Limit > 0 && len(alerts) > filter.Limit {
		alerts = alerts[:filter.Limit]
	}
	return alerts, nil
}

// GetAlertCount counts alerts matching filter.
func (s *MemoryStore) GetAlertCount(ctx context.Context, filter models.AlertFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, alert := range s.alerts {
		if matchesFilter(alert, filter) {
			count++
		}
	}
	return count, nil
}

// SaveAlertRule stores an alert rule.
func (s *MemoryStore) SaveAlertRule(ctx context.Context, rule *models.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertRules[rule.ID] = rule
	return nil
}

// GetAlertRule returns one alert rule.
func (s *MemoryStore) GetAlertRule(ctx context.Context, id string) (*models.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.alertRules[id]
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Rule not found", id)
	}
	return rule, nil
}

// GetAlertRules returns the alert rules for an organization.
func (s *MemoryStore) GetAlertRules(ctx context.Context, organizationID string) ([]*models.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rules []*models.AlertRule
	for _, rule := range s.alertRules {
		if rule.OrganizationID == organizationID {
			rules = append(rules, rule)
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules, nil
}

// DeleteAlertRule removes an alert rule.
func (s *MemoryStore) DeleteAlertRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alertRules[id]; !ok {
		return utils.NewAppError(utils.ErrCodeNotFound, "Rule not found", id)
	}
	delete(s.alertRules, id)
	return nil
}

// SaveEscalationRule stores an escalation rule.
func (s *MemoryStore) SaveEscalationRule(ctx context.Context, rule *models.EscalationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalationRules[rule.ID] = rule
	return nil
}

// GetEscalationRules returns the escalation rules for an organization.
func (s *MemoryStore) GetEscalationRules(ctx context.Context, organizationID string) ([]*models.EscalationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rules []*models.EscalationRule
	for _, rule := range s.escalationRules {
		if rule.OrganizationID == organizationID {
			rules = append(rules, rule)
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules, nil
}

// DeleteEscalationRule removes an escalation rule.
func (s *MemoryStore) DeleteEscalationRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.escalationRules[id]; !ok {
		return utils.NewAppError(utils.ErrCodeNotFound, "Rule not found", id)
	}
	delete(s.escalationRules, id)
	return nil
}

// SaveAction stores an action record.
func (s *MemoryStore) SaveAction(ctx context.Context, action *models.AlertAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action.ID] = action
	return nil
}

// GetActions returns the actions for an alert, oldest first.
func (s *MemoryStore) GetActions(ctx context.Context, alertID string) ([]*models.AlertAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var actions []*models.AlertAction
	for _, action := range s.actions {
		if action.AlertID == alertID {
			actions = append(actions, action)
		}
	}
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].CreatedAt.Before(actions[j].CreatedAt)
	})
	return actions, nil
}

// SaveNotification stores a notification record.
func (s *MemoryStore) SaveNotification(ctx context.Context, notification *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[notification.ID] = notification
	return nil
}

// UpdateNotificationStatus updates delivery status and error of a
// notification.
func (s *MemoryStore) UpdateNotificationStatus(ctx context.Context, id string, status models.NotificationStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	notification, ok := s.notifications[id]
	if !ok {
		return utils.NewAppError(utils.ErrCodeNotFound, "Notification not found", id)
	}
	notification.Status = status
	notification.Error = errMsg
	return nil
}

// GetNotifications returns notifications for an alert, oldest first.
func (s *MemoryStore) GetNotifications(ctx context.Context, alertID string) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var notifications []*models.Notification
	for _, notification := range s.notifications {
		if notification.AlertID == alertID {
			notifications = append(notifications, notification)
		}
	}
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.Before(notifications[j].CreatedAt)
	})
	return notifications, nil
}

// GetStorageStats returns counts over all stored records.
func (s *MemoryStore) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &StorageStats{
		TotalAlerts:        int64(len(s.alerts)),
		TotalRules:         int64(len(s.alertRules) + len(s.escalationRules)),
		TotalNotifications: int64(len(s.notifications)),
		LastCleanup:        s.lastCleanup,
	}
	for _, alert := range s.alerts {
		created := alert.CreatedAt
		if stats.OldestAlert == nil || created.Before(*stats.OldestAlert) {
			t := created
			stats.OldestAlert = &t
		}
		if stats.LatestAlert == nil || created.After(*stats.LatestAlert) {
			t := created
			stats.LatestAlert = &t
		}
	}
	return stats, nil
}

// Cleanup drops terminal alerts (and their actions/notifications) older
// than the retention window.
func (s *MemoryStore) Cleanup(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]struct{})
	for id, alert := range s.alerts {
		if alert.Status.Terminal() && alert.CreatedAt.Before(cutoff) {
			delete(s.alerts, id)
			removed[id] = struct{}{}
		}
	}
	for id, action := range s.actions {
		if _, ok := removed[action.AlertID]; ok {
			delete(s.actions, id)
		}
	}
	for id, notification := range s.notifications {
		if _, ok := removed[notification.AlertID]; ok {
			delete(s.notifications, id)
		}
	}

	now := time.Now()
	s.lastCleanup = &now
	return nil
}

func matchesFilter(alert *models.Alert, filter models.AlertFilter) bool {
	if filter.OrganizationID != "" && alert.OrganizationID != filter.OrganizationID {
		return false
	}
	if filter.Severity != nil && alert.Severity != *filter.Severity {
		return false
	}
	if filter.Type != nil && alert.Type != *filter.Type {
		return false
	}
	if filter.Status != nil && alert.Status != *filter.Status {
		return false
	}
	if filter.SiteID != "" && alert.SiteID != filter.SiteID {
		return false
	}
	if filter.CameraID != "" && alert.CameraID != filter.CameraID {
		return false
	}
	return true
}
