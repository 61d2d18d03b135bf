// File: internal/notification/whatsapp.go
package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/pkg/utils"
)

// WhatsAppChannel delivers alert notifications as WhatsApp messages through
// the messaging provider.
type WhatsAppChannel struct {
	provider *ProviderClient
	logger   *NotificationLogger
}

// NewWhatsAppChannel creates a WhatsApp channel backed by the given provider.
func NewWhatsAppChannel(provider *ProviderClient, logger *NotificationLogger) *WhatsAppChannel {
	return &WhatsAppChannel{
		provider: provider,
		logger:   logger.WithField("channel", "whatsapp"),
	}
}

// Type returns the channel type.
func (c *WhatsAppChannel) Type() models.ChannelType {
	return models.ChannelWhatsApp
}

// Send delivers one WhatsApp message with the subject rendered bold and the
// alert reference lines appended.
func (c *WhatsAppChannel) Send(ctx context.Context, contact, subject, message string, metadata map[string]string) (string, error) {
	if contact == "" {
		return "", utils.NewAppError(utils.ErrCodeValidation, "WhatsApp contact is required", "")
	}

	body := FormatWhatsApp(subject, message, metadata)
	to := "whatsapp:" + normalizePhone(contact)

	return c.provider.Deliver(ctx, "whatsapp", to, "", body, metadata)
}

// FormatWhatsApp builds the WhatsApp body: bold subject, the message, then
// reference lines for the alert id and camera when present.
func FormatWhatsApp(subject, message string, metadata map[string]string) string {
	var b strings.Builder

	if subject != "" {
		fmt.Fprintf(&b, "*%s*\n\n", subject)
	}
	b.WriteString(message)

	if alertID := metadata["alert_id"]; alertID != "" {
		fmt.Fprintf(&b, "\n\nAlert ID: %s", alertID)
	}
	if cameraID := metadata["camera_id"]; cameraID != "" {
		fmt.Fprintf(&b, "\nCamera: %s", cameraID)
	}
	return b.String()
}
