// File: internal/notification/sms.go
package notification

import (
	"context"
	"strings"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/pkg/utils"
)

// smsMaxBodyLength leaves room for the "..." suffix within a 160-character
// single-segment SMS.
const smsMaxBodyLength = 157

// SMSChannel delivers alert notifications as text messages through the
// messaging provider.
type SMSChannel struct {
	provider *ProviderClient
	logger   *NotificationLogger
}

// NewSMSChannel creates an SMS channel backed by the given provider.
func NewSMSChannel(provider *ProviderClient, logger *NotificationLogger) *SMSChannel {
	return &SMSChannel{
		provider: provider,
		logger:   logger.WithField("channel", "sms"),
	}
}

// Type returns the channel type.
func (c *SMSChannel) Type() models.ChannelType {
	return models.ChannelSMS
}

// Send delivers one SMS. The body is truncated to a single segment; the
// subject is folded into the body since SMS has no subject line.
func (c *SMSChannel) Send(ctx context.Context, contact, subject, message string, metadata map[string]string) (string, error) {
	if contact == "" {
		return "", utils.NewAppError(utils.ErrCodeValidation, "SMS contact is required", "")
	}

	body := FormatSMS(subject, message)
	to := normalizePhone(contact)

	return c.provider.Deliver(ctx, "sms", to, "", body, metadata)
}

// FormatSMS folds subject and message into a single-segment SMS body,
// truncating with an ellipsis marker when too long. Truncation counts
// characters, not bytes, so a multi-byte character is never cut in half.
func FormatSMS(subject, message string) string {
	body := message
	if subject != "" {
		body = subject + "\n" + message
	}
	if runes := []rune(body); len(runes) > smsMaxBodyLength {
		body = string(runes[:smsMaxBodyLength]) + "..."
	}
	return body
}

func normalizePhone(contact string) string {
	contact = strings.TrimSpace(contact)
	if contact != "" && !strings.HasPrefix(contact, "+") {
		contact = "+" + contact
	}
	return contact
}
