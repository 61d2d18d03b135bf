package models

import (
	"time"

	"github.com/safesite/alert-engine/pkg/utils"
)

// ActionType identifies an automated response.
type ActionType string

const (
	ActionNotifyWorker     ActionType = "notify_worker"
	ActionNotifySupervisor ActionType = "notify_supervisor"
	ActionStopEquipment    ActionType = "stop_equipment"
	ActionSoundAlarm       ActionType = "sound_alarm"
	ActionActivateLight    ActionType = "activate_light"
	ActionLockZone         ActionType = "lock_zone"
	ActionCallEmergency    ActionType = "call_emergency"
	ActionCreateIncident   ActionType = "create_incident"
	ActionSendSMS          ActionType = "send_sms"
	ActionSendEmail        ActionType = "send_email"
	ActionSendWhatsApp     ActionType = "send_whatsapp"
)

// IsNotification reports whether the action is delivered by the notification
// dispatcher rather than the actuator gateway.
func (t ActionType) IsNotification() bool {
	switch t {
	case ActionNotifyWorker, ActionNotifySupervisor, ActionSendSMS, ActionSendEmail, ActionSendWhatsApp:
		return true
	}
	return false
}

// ActionStatus tracks execution progress of a single autonomous action.
type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "pending"
	ActionStatusExecuting ActionStatus = "executing"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

// AlertAction is one autonomous action executed for an alert.
type AlertAction struct {
	ID         string       `json:"id" db:"id"`
	AlertID    string       `json:"alert_id" db:"alert_id"`
	ActionType ActionType   `json:"action_type" db:"action_type"`
	Status     ActionStatus `json:"status" db:"status"`

	ExecutedAt  *time.Time `json:"executed_at,omitempty" db:"executed_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	Success bool                   `json:"success" db:"success"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Error   string                 `json:"error,omitempty" db:"error"`

	Target string `json:"target,omitempty" db:"target"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewAlertAction creates a pending action record for an alert.
func NewAlertAction(alertID string, actionType ActionType) *AlertAction {
	return &AlertAction{
		ID:         utils.NewActionID(),
		AlertID:    alertID,
		ActionType: actionType,
		Status:     ActionStatusPending,
		CreatedAt:  time.Now(),
	}
}
