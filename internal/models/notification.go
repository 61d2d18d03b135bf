package models

import (
	"time"

	"github.com/safesite/alert-engine/pkg/utils"
)

// ChannelType identifies a notification delivery channel.
type ChannelType string

const (
	ChannelSMS      ChannelType = "sms"
	ChannelEmail    ChannelType = "email"
	ChannelWhatsApp ChannelType = "whatsapp"
	ChannelPush     ChannelType = "push"
)

// DefaultEscalationChannels applies when an escalation level does not name
// its own channels.
var DefaultEscalationChannels = []ChannelType{ChannelSMS, ChannelEmail, ChannelWhatsApp}

// NotificationStatus tracks delivery progress of a single notification.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSent      NotificationStatus = "sent"
	NotificationDelivered NotificationStatus = "delivered"
	NotificationFailed    NotificationStatus = "failed"
)

// Notification is one message sent to one recipient through one channel.
type Notification struct {
	ID      string      `json:"id" db:"id"`
	AlertID string      `json:"alert_id" db:"alert_id"`
	Channel ChannelType `json:"channel" db:"channel"`

	RecipientID      string `json:"recipient_id,omitempty" db:"recipient_id"`
	RecipientContact string `json:"recipient_contact" db:"recipient_contact"`

	Subject string `json:"subject,omitempty" db:"subject"`
	Message string `json:"message" db:"message"`

	Status      NotificationStatus `json:"status" db:"status"`
	SentAt      *time.Time         `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt *time.Time         `json:"delivered_at,omitempty" db:"delivered_at"`
	ReadAt      *time.Time         `json:"read_at,omitempty" db:"read_at"`

	Provider   string `json:"provider,omitempty" db:"provider"`
	ProviderID string `json:"provider_id,omitempty" db:"provider_id"`
	Error      string `json:"error,omitempty" db:"error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewNotification creates a pending notification record.
func NewNotification(alertID string, channel ChannelType, recipientID, contact, subject, message string) *Notification {
	return &Notification{
		ID:               utils.NewNotificationID(),
		AlertID:          alertID,
		Channel:          channel,
		RecipientID:      recipientID,
		RecipientContact: contact,
		Subject:          subject,
		Message:          message,
		Status:           NotificationPending,
		CreatedAt:        time.Now(),
	}
}

// Recipient is a person reachable through one or more channels. Contacts
// maps channel type to the channel-specific address (phone number, email,
// device token). A missing entry means the recipient cannot be reached on
// that channel.
type Recipient struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name,omitempty"`
	Role     string                 `json:"role,omitempty"`
	Contacts map[ChannelType]string `json:"contacts"`
}

// Contact returns the recipient's address for the channel, if registered.
func (r *Recipient) Contact(channel ChannelType) (string, bool) {
	contact, ok := r.Contacts[channel]
	return contact, ok && contact != ""
}

// RecipientDirectory resolves recipients by role or user id for an
// organization. Implemented by the boundary layer (user store, HR system).
type RecipientDirectory interface {
	RecipientsByRole(organizationID, role string) []*Recipient
	RecipientByID(organizationID, userID string) (*Recipient, bool)
}
