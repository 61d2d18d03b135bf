// File: internal/notification/email.go
package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"net/smtp"
	"strings"
	"time"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/pkg/utils"
)

// EmailChannel delivers alert notifications over SMTP.
type EmailChannel struct {
	config *EmailConfig
	logger *NotificationLogger
	auth   smtp.Auth
}

// EmailConfig holds SMTP configuration
type EmailConfig struct {
	SMTPHost    string        `json:"smtp_host"`
	SMTPPort    int           `json:"smtp_port"`
	Username    string        `json:"username"`
	Password    string        `json:"password"`
	FromEmail   string        `json:"from_email"`
	FromName    string        `json:"from_name"`
	UseTLS      bool          `json:"use_tls"`
	UseStartTLS bool          `json:"use_start_tls"`
	Timeout     time.Duration `json:"timeout"`
}

// severityColors maps alert severity to the accent color of the HTML body.
var severityColors = map[string]string{
	string(models.SeverityCritical): "#dc2626",
	string(models.SeverityHigh):     "#ea580c",
	string(models.SeverityMedium):   "#d97706",
	string(models.SeverityLow):      "#65a30d",
	string(models.SeverityInfo):     "#2563eb",
}

// NewEmailChannel creates an email channel.
func NewEmailChannel(config *EmailConfig, logger *NotificationLogger) *EmailChannel {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.FromName == "" {
		config.FromName = "SafeSite Alerts"
	}

	c := &EmailChannel{
		config: config,
		logger: logger.WithField("channel", "email"),
	}
	if config.Username != "" && config.Password != "" {
		c.auth = smtp.PlainAuth("", config.Username, config.Password, config.SMTPHost)
	}
	return c
}

// Type returns the channel type.
func (c *EmailChannel) Type() models.ChannelType {
	return models.ChannelEmail
}

// Send delivers one HTML email.
func (c *EmailChannel) Send(ctx context.Context, contact, subject, message string, metadata map[string]string) (string, error) {
	startTime := time.Now()

	if !isValidEmail(contact) {
		return "", utils.NewAppError(utils.ErrCodeValidation, "Invalid email address", contact)
	}
	if subject == "" {
		return "", utils.NewAppError(utils.ErrCodeValidation, "Email subject is required", "")
	}

	c.logger.LogEmailAttempt([]string{contact}, subject)

	body := c.buildMessage(contact, subject, message, metadata)

	var err error
	if c.config.UseTLS {
		err = c.sendTLS([]string{contact}, body)
	} else {
		err = c.sendPlain([]string{contact}, body)
	}

	c.logger.LogEmailResult([]string{contact}, subject, err == nil, time.Since(startTime), err)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeExternal, "Failed to send email", err.Error())
	}
	return "", nil
}

// sendTLS sends email over an implicit TLS connection
func (c *EmailChannel) sendTLS(to []string, message string) error {
	addr := fmt.Sprintf("%s:%d", c.config.SMTPHost, c.config.SMTPPort)

	tlsConfig := &tls.Config{
		InsecureSkipVerify: false,
		ServerName:         c.config.SMTPHost,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to connect with TLS: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, c.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if c.auth != nil {
		if err := client.Auth(c.auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := client.Mail(c.config.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", recipient, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	defer writer.Close()

	if _, err := writer.Write([]byte(message)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// sendPlain sends email without implicit TLS; STARTTLS is negotiated by
// smtp.SendMail when the server advertises it.
func (c *EmailChannel) sendPlain(to []string, message string) error {
	addr := fmt.Sprintf("%s:%d", c.config.SMTPHost, c.config.SMTPPort)
	return smtp.SendMail(addr, c.auth, c.config.FromEmail, to, []byte(message))
}

// buildMessage builds the full RFC 5322 message with a severity-colored HTML
// body.
func (c *EmailChannel) buildMessage(to, subject, body string, metadata map[string]string) string {
	var message strings.Builder

	message.WriteString(fmt.Sprintf("From: %s <%s>\r\n", c.config.FromName, c.config.FromEmail))
	message.WriteString(fmt.Sprintf("To: %s\r\n", to))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/html; charset=UTF-8\r\n")

	severity := metadata["severity"]
	if severity == string(models.SeverityCritical) || severity == string(models.SeverityHigh) {
		message.WriteString("X-Priority: 1\r\n")
		message.WriteString("Importance: high\r\n")
	}

	message.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	message.WriteString("\r\n")
	message.WriteString(FormatEmailHTML(subject, body, metadata))

	return message.String()
}

// FormatEmailHTML renders the HTML body with the severity accent color and a
// detail table built from the metadata reference fields. Subject, body and
// metadata values carry detector-supplied text and are escaped before
// interpolation.
func FormatEmailHTML(subject, body string, metadata map[string]string) string {
	color, ok := severityColors[metadata["severity"]]
	if !ok {
		color = severityColors[string(models.SeverityInfo)]
	}

	var b strings.Builder
	b.WriteString("<html><body style='font-family: Arial, sans-serif;'>")
	fmt.Fprintf(&b, "<div style='border-left: 4px solid %s; padding: 12px 16px;'>", color)
	fmt.Fprintf(&b, "<h2 style='color: %s; margin-top: 0;'>%s</h2>", color, html.EscapeString(subject))
	fmt.Fprintf(&b, "<p style='white-space: pre-line;'>%s</p>", html.EscapeString(body))

	b.WriteString("<table cellpadding='4' cellspacing='0' style='font-size: 13px; color: #444;'>")
	for _, key := range []string{"alert_id", "severity", "site_id", "camera_id", "zone"} {
		if value := metadata[key]; value != "" {
			fmt.Fprintf(&b, "<tr><td><strong>%s</strong></td><td>%s</td></tr>", emailFieldLabel(key), html.EscapeString(value))
		}
	}
	b.WriteString("</table>")

	fmt.Fprintf(&b, "<p style='font-size: 11px; color: #999;'>Sent at %s</p>", time.Now().Format(time.RFC3339))
	b.WriteString("</div></body></html>")
	return b.String()
}

func emailFieldLabel(key string) string {
	switch key {
	case "alert_id":
		return "Alert ID"
	case "severity":
		return "Severity"
	case "site_id":
		return "Site"
	case "camera_id":
		return "Camera"
	case "zone":
		return "Zone"
	}
	return key
}

// isValidEmail performs basic email validation
func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}

	local, domain := parts[0], parts[1]
	if len(local) == 0 || len(domain) == 0 {
		return false
	}
	if len(local) > 64 || len(domain) > 253 {
		return false
	}
	return true
}
