package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// ID prefixes for the different record kinds.
const (
	AlertIDPrefix          = "ALT"
	RuleIDPrefix           = "RULE"
	EscalationIDPrefix     = "ESC"
	ActionIDPrefix         = "ACT"
	NotificationIDPrefix   = "NOT"
	alertIDEntropyBytes    = 6
	standardIDEntropyBytes = 4
)

// GenerateID generates a random hex ID
func GenerateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// NewAlertID returns an id of the form ALT-<hex12>.
func NewAlertID() string {
	return newPrefixedID(AlertIDPrefix, alertIDEntropyBytes)
}

// NewRuleID returns an id of the form RULE-<hex8>.
func NewRuleID() string {
	return newPrefixedID(RuleIDPrefix, standardIDEntropyBytes)
}

// NewEscalationRuleID returns an id of the form ESC-<hex8>.
func NewEscalationRuleID() string {
	return newPrefixedID(EscalationIDPrefix, standardIDEntropyBytes)
}

// NewActionID returns an id of the form ACT-<hex8>.
func NewActionID() string {
	return newPrefixedID(ActionIDPrefix, standardIDEntropyBytes)
}

// NewNotificationID returns an id of the form NOT-<hex8>.
func NewNotificationID() string {
	return newPrefixedID(NotificationIDPrefix, standardIDEntropyBytes)
}

func newPrefixedID(prefix string, entropyBytes int) string {
	bytes := make([]byte, entropyBytes)
	if _, err := rand.Read(bytes); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// recognizable sentinel rather than returning an error from every
		// model constructor.
		return fmt.Sprintf("%s-ERR", prefix)
	}
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(hex.EncodeToString(bytes)))
}
