// File: internal/notification/push.go
package notification

import (
	"context"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/pkg/utils"
)

// PushChannel delivers alert notifications to mobile devices through the
// messaging provider. The contact is the device token registered for the
// recipient.
type PushChannel struct {
	provider *ProviderClient
	logger   *NotificationLogger
}

// NewPushChannel creates a push channel backed by the given provider.
func NewPushChannel(provider *ProviderClient, logger *NotificationLogger) *PushChannel {
	return &PushChannel{
		provider: provider,
		logger:   logger.WithField("channel", "push"),
	}
}

// Type returns the channel type.
func (c *PushChannel) Type() models.ChannelType {
	return models.ChannelPush
}

// Send delivers one push notification. Subject and body map directly to the
// platform notification title and body.
func (c *PushChannel) Send(ctx context.Context, contact, subject, message string, metadata map[string]string) (string, error) {
	if contact == "" {
		return "", utils.NewAppError(utils.ErrCodeValidation, "Push device token is required", "")
	}
	return c.provider.Deliver(ctx, "push", contact, subject, message, metadata)
}
