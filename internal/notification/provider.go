// File: internal/notification/provider.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/safesite/alert-engine/pkg/utils"
)

// ProviderClient posts delivery requests to an external messaging provider's
// REST API. Shared by the SMS, WhatsApp and push channels.
type ProviderClient struct {
	config     *ProviderConfig
	logger     *NotificationLogger
	httpClient *http.Client
}

// ProviderConfig holds messaging provider configuration
type ProviderConfig struct {
	Name          string            `json:"name"`
	BaseURL       string            `json:"base_url"`
	APIKey        string            `json:"api_key"`
	Headers       map[string]string `json:"headers,omitempty"`
	Timeout       time.Duration     `json:"timeout"`
	RetryAttempts int               `json:"retry_attempts"`
	RetryDelay    time.Duration     `json:"retry_delay"`
}

// providerRequest is the wire format for one outbound message.
type providerRequest struct {
	Channel   string            `json:"channel"`
	To        string            `json:"to"`
	Subject   string            `json:"subject,omitempty"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// providerResponse is the provider's acknowledgement.
type providerResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// NewProviderClient creates a messaging provider client
func NewProviderClient(config *ProviderConfig, logger *NotificationLogger) *ProviderClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}

	return &ProviderClient{
		config: config,
		logger: logger.WithField("provider", config.Name),
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Deliver sends one message through the provider with retry. Returns the
// provider's message id on success.
func (pc *ProviderClient) Deliver(ctx context.Context, channel, to, subject, body string, metadata map[string]string) (string, error) {
	request := &providerRequest{
		Channel:   channel,
		To:        to,
		Subject:   subject,
		Body:      body,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}

	var lastErr error
	for attempt := 1; attempt <= pc.config.RetryAttempts; attempt++ {
		if attempt > 1 {
			delay := pc.retryDelay(attempt)
			pc.logger.LogRetryAttempt(channel, attempt, pc.config.RetryAttempts, delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		messageID, err := pc.deliverOnce(ctx, request)
		if err == nil {
			return messageID, nil
		}
		lastErr = err
	}

	return "", lastErr
}

func (pc *ProviderClient) deliverOnce(ctx context.Context, request *providerRequest) (string, error) {
	startTime := time.Now()

	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal provider request", err.Error())
	}

	url := fmt.Sprintf("%s/v1/messages", pc.config.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeInternal, "Failed to create provider request", err.Error())
	}
	pc.setRequestHeaders(req)

	resp, err := pc.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		pc.logger.LogProviderResponse(request.Channel, request.To, 0, duration, err)
		return "", utils.NewAppError(utils.ErrCodeExternal, "Failed to reach messaging provider", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := utils.NewAppError(utils.ErrCodeExternal,
			"Messaging provider returned non-success status",
			fmt.Sprintf("status: %d", resp.StatusCode))
		pc.logger.LogProviderResponse(request.Channel, request.To, resp.StatusCode, duration, err)
		return "", err
	}

	var response providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		// Some providers answer 2xx with an empty body; treat that as
		// accepted without a message id.
		pc.logger.LogProviderResponse(request.Channel, request.To, resp.StatusCode, duration, nil)
		return "", nil
	}

	pc.logger.LogProviderResponse(request.Channel, request.To, resp.StatusCode, duration, nil)
	return response.MessageID, nil
}

func (pc *ProviderClient) setRequestHeaders(req *http.Request) {
	for key, value := range pc.config.Headers {
		req.Header.Set(key, value)
	}

	req.Header.Set("Content-Type", "application/json")
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "SafeSite-Alert-Engine/1.0")
	}
	if pc.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+pc.config.APIKey)
	}
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	req.Header.Set("X-Request-ID", uuid.NewString())
}

// retryDelay grows exponentially from the base delay, capped at 30s.
func (pc *ProviderClient) retryDelay(attempt int) time.Duration {
	delay := time.Duration(int64(pc.config.RetryDelay) << uint(attempt-2))
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}
