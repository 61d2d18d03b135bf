// File: internal/storage/factory.go
package storage

import (
	"strings"

	"github.com/safesite/alert-engine/pkg/utils"
)

// NewStore creates a storage instance based on configuration
func NewStore(cfg *Config) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStorage(cfg), nil
	case "postgres", "postgresql":
		return NewPostgreSQLStorage(cfg), nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration,
			"Unsupported storage type", cfg.Type)
	}
}

// ValidateConfig validates storage configuration
func ValidateConfig(cfg *Config) error {
	storageType := strings.ToLower(cfg.Type)
	if storageType == "" || storageType == "memory" {
		return nil
	}

	supportedTypes := []string{"memory", "sqlite", "postgres", "postgresql"}
	supported := false
	for _, t := range supportedTypes {
		if storageType == t {
			supported = true
			break
		}
	}
	if !supported {
		return utils.NewAppError(utils.ErrCodeConfiguration,
			"Unsupported storage type",
			"Supported types: "+strings.Join(supportedTypes, ", "))
	}

	if cfg.ConnectionString == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Storage connection string is required", "")
	}
	if cfg.MaxConnections <= 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Max connections must be positive", "")
	}
	return nil
}

// GetDefaultConfig returns default storage configuration
func GetDefaultConfig() *Config {
	return &Config{
		Type:             "sqlite",
		ConnectionString: "./data/alerts.db",
		MaxConnections:   25,
		RetentionDays:    30,
	}
}
