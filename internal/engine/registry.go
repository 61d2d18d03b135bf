package engine

import (
	"sync"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/pkg/utils"
)

// ActiveRegistry holds the in-memory set of unresolved alerts. Each alert
// carries its own mutex so writers to unrelated alerts never block each
// other; the registry-level lock only guards map membership.
type ActiveRegistry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	mu    sync.Mutex
	alert *models.Alert
}

// NewActiveRegistry creates an empty registry.
func NewActiveRegistry() *ActiveRegistry {
	return &ActiveRegistry{
		entries: make(map[string]*registryEntry),
	}
}

// Add inserts an alert into the registry.
func (r *ActiveRegistry) Add(alert *models.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[alert.ID] = &registryEntry{alert: alert}
}

// Get returns the alert for id, if present.
func (r *ActiveRegistry) Get(id string) (*models.Alert, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return entry.alert, true
}

// Update runs fn while holding the alert's own lock, enforcing the
// single-writer-per-alert discipline. Returns NOT_FOUND if the alert is not
// registered.
func (r *ActiveRegistry) Update(id string, fn func(*models.Alert) error) error {
	r.mu.RLock()
	entry, ok := r.entries[id]
	r.mu.RUnlock()

	if !ok {
		return utils.NewAppError(utils.ErrCodeNotFound, "Alert not found", id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry.alert)
}

// Remove deletes an alert from the registry.
func (r *ActiveRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// List returns a snapshot of all registered alerts.
func (r *ActiveRegistry) List() []*models.Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alerts := make([]*models.Alert, 0, len(r.entries))
	for _, entry := range r.entries {
		alerts = append(alerts, entry.alert)
	}
	return alerts
}

// Len returns the number of registered alerts.
func (r *ActiveRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
