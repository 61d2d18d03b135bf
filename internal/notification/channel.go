// File: internal/notification/channel.go
package notification

import (
	"context"

	"github.com/safesite/alert-engine/internal/models"
)

// Channel delivers one message to one contact address. Implementations own
// their channel-specific formatting (truncation, markup, HTML); the
// dispatcher hands every channel the same subject and body.
type Channel interface {
	Type() models.ChannelType
	Send(ctx context.Context, contact, subject, message string, metadata map[string]string) (providerID string, err error)
}

// ChannelConfig holds per-channel enablement and provider settings.
type ChannelConfig struct {
	Enabled  bool              `json:"enabled"`
	Provider string            `json:"provider"`
	Settings map[string]string `json:"settings,omitempty"`
}
