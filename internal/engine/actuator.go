package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/pkg/utils"
)

// ActuatorGateway invokes physical-side effects (alarms, equipment stop,
// zone locks) for autonomous actions. Implementations talk to the facility's
// actuation layer; the engine only records the outcome.
type ActuatorGateway interface {
	Call(ctx context.Context, actionType models.ActionType, alert *models.Alert, rule *models.AlertRule) (map[string]interface{}, error)
}

// HTTPActuatorConfig holds HTTP actuator gateway configuration.
type HTTPActuatorConfig struct {
	BaseURL       string        `json:"base_url"`
	Timeout       time.Duration `json:"timeout"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

// HTTPActuatorGateway delivers actuation commands to a facility gateway over
// HTTP. One POST per action; a non-2xx response is a failed action.
type HTTPActuatorGateway struct {
	config     *HTTPActuatorConfig
	httpClient *http.Client
}

// NewHTTPActuatorGateway creates an HTTP actuator gateway.
func NewHTTPActuatorGateway(config *HTTPActuatorConfig) *HTTPActuatorGateway {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = 2
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}
	return &HTTPActuatorGateway{
		config: config,
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

type actuatorCommand struct {
	ActionType models.ActionType    `json:"action_type"`
	AlertID    string               `json:"alert_id"`
	Severity   models.AlertSeverity `json:"severity"`
	Zone       string               `json:"zone,omitempty"`
	CameraID   string               `json:"camera_id,omitempty"`
	SiteID     string               `json:"site_id,omitempty"`
	RuleID     string               `json:"rule_id,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

// Call sends one actuation command and decodes the gateway's result payload.
func (g *HTTPActuatorGateway) Call(ctx context.Context, actionType models.ActionType, alert *models.Alert, rule *models.AlertRule) (map[string]interface{}, error) {
	command := &actuatorCommand{
		ActionType: actionType,
		AlertID:    alert.ID,
		Severity:   alert.Severity,
		Zone:       alert.Zone,
		CameraID:   alert.CameraID,
		SiteID:     alert.SiteID,
		Timestamp:  time.Now(),
	}
	if rule != nil {
		command.RuleID = rule.ID
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal actuator command", err.Error())
	}

	var lastErr error
	for attempt := 1; attempt <= g.config.RetryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(g.config.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := g.send(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

func (g *HTTPActuatorGateway) send(ctx context.Context, body []byte) (map[string]interface{}, error) {
	url := fmt.Sprintf("%s/actions", g.config.BaseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to create actuator request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeExternal, "Failed to reach actuator gateway", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, utils.NewAppError(utils.ErrCodeExternal,
			"Actuator gateway returned non-success status",
			fmt.Sprintf("status: %d, body: %s", resp.StatusCode, string(payload)))
	}

	result := make(map[string]interface{})
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil && err != io.EOF {
		return nil, utils.NewAppError(utils.ErrCodeExternal, "Failed to decode actuator response", err.Error())
	}
	return result, nil
}
