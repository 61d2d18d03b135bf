// File: internal/notification/directory.go
package notification

import (
	"sync"

	"github.com/safesite/alert-engine/internal/models"
)

// StaticDirectory is a RecipientDirectory backed by configuration. Suitable
// for single-site deployments; larger installations replace it with an
// adapter over the HR or user service.
type StaticDirectory struct {
	mu         sync.RWMutex
	recipients map[string]map[string]*models.Recipient // org -> id -> recipient
}

// NewStaticDirectory creates an empty directory.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		recipients: make(map[string]map[string]*models.Recipient),
	}
}

// AddRecipient registers a recipient for an organization.
func (d *StaticDirectory) AddRecipient(organizationID string, recipient *models.Recipient) {
	d.mu.Lock()
	defer d.mu.Unlock()

	org, ok := d.recipients[organizationID]
	if !ok {
		org = make(map[string]*models.Recipient)
		d.recipients[organizationID] = org
	}
	org[recipient.ID] = recipient
}

// RecipientsByRole returns every recipient holding the role in the
// organization.
func (d *StaticDirectory) RecipientsByRole(organizationID, role string) []*models.Recipient {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*models.Recipient
	for _, recipient := range d.recipients[organizationID] {
		if recipient.Role == role {
			result = append(result, recipient)
		}
	}
	return result
}

// RecipientByID returns one recipient by user id.
func (d *StaticDirectory) RecipientByID(organizationID, userID string) (*models.Recipient, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	recipient, ok := d.recipients[organizationID][userID]
	return recipient, ok
}
