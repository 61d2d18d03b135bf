// File: internal/notification/logger.go
package notification

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/safesite/alert-engine/pkg/utils"
)

// NotificationLogger handles logging for notification operations
type NotificationLogger struct {
	logger  *logrus.Logger
	context map[string]interface{}
}

// NewNotificationLogger creates a new notification logger
func NewNotificationLogger() *NotificationLogger {
	return &NotificationLogger{
		logger:  utils.GetLogger(),
		context: make(map[string]interface{}),
	}
}

// WithField adds a single field to the logger context
func (nl *NotificationLogger) WithField(key string, value interface{}) *NotificationLogger {
	newLogger := &NotificationLogger{
		logger:  nl.logger,
		context: make(map[string]interface{}),
	}
	for k, v := range nl.context {
		newLogger.context[k] = v
	}
	newLogger.context[key] = value
	return newLogger
}

// Debug logs a debug message
func (nl *NotificationLogger) Debug(message string, context ...map[string]interface{}) {
	nl.entry(context...).Debug(message)
}

// Info logs an info message
func (nl *NotificationLogger) Info(message string, context ...map[string]interface{}) {
	nl.entry(context...).Info(message)
}

// Warn logs a warning message
func (nl *NotificationLogger) Warn(message string, context ...map[string]interface{}) {
	nl.entry(context...).Warn(message)
}

// Error logs an error message
func (nl *NotificationLogger) Error(message string, context ...map[string]interface{}) {
	nl.entry(context...).Error(message)
}

func (nl *NotificationLogger) entry(context ...map[string]interface{}) *logrus.Entry {
	merged := make(map[string]interface{})
	for k, v := range nl.context {
		merged[k] = v
	}
	for _, ctx := range context {
		for k, v := range ctx {
			merged[k] = v
		}
	}
	merged["component"] = "notification"
	return nl.logger.WithFields(logrus.Fields(merged))
}

// LogDispatchStart logs the start of a notification fan-out
func (nl *NotificationLogger) LogDispatchStart(alertID string, recipients, channels int) {
	nl.Info("Notification dispatch started", map[string]interface{}{
		"alert_id":   alertID,
		"recipients": recipients,
		"channels":   channels,
	})
}

// LogDispatchResult logs the outcome of a notification fan-out
func (nl *NotificationLogger) LogDispatchResult(alertID string, sent, failed, skipped int, duration time.Duration) {
	nl.Info("Notification dispatch completed", map[string]interface{}{
		"alert_id":    alertID,
		"sent":        sent,
		"failed":      failed,
		"skipped":     skipped,
		"duration_ms": duration.Milliseconds(),
	})
}

// LogEmailAttempt logs an email attempt
func (nl *NotificationLogger) LogEmailAttempt(to []string, subject string) {
	nl.Debug("Email attempt started", map[string]interface{}{
		"to":      strings.Join(to, ", "),
		"subject": subject,
	})
}

// LogEmailResult logs an email result
func (nl *NotificationLogger) LogEmailResult(to []string, subject string, success bool, duration time.Duration, err error) {
	context := map[string]interface{}{
		"to":          strings.Join(to, ", "),
		"subject":     subject,
		"success":     success,
		"duration_ms": duration.Milliseconds(),
	}

	if err != nil {
		context["error"] = err.Error()
		nl.Error("Email failed", context)
	} else {
		nl.Info("Email sent successfully", context)
	}
}

// LogProviderResponse logs a messaging provider response
func (nl *NotificationLogger) LogProviderResponse(channel, to string, statusCode int, duration time.Duration, err error) {
	context := map[string]interface{}{
		"channel":     channel,
		"to":          to,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	if err != nil {
		context["error"] = err.Error()
		nl.Error("Provider delivery failed", context)
	} else {
		nl.Debug("Provider delivery completed", context)
	}
}

// LogRetryAttempt logs a retry attempt
func (nl *NotificationLogger) LogRetryAttempt(operation string, attempt int, maxAttempts int, delay time.Duration) {
	nl.Warn("Retrying operation", map[string]interface{}{
		"operation":    operation,
		"attempt":      attempt,
		"max_attempts": maxAttempts,
		"retry_delay":  delay.String(),
	})
}
