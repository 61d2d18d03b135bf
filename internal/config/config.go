// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Engine        EngineConfig       `mapstructure:"engine"`
	Escalation    EscalationConfig   `mapstructure:"escalation"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name           string `mapstructure:"name"`
	Version        string `mapstructure:"version"`
	Environment    string `mapstructure:"environment"`
	Debug          bool   `mapstructure:"debug"`
	OrganizationID string `mapstructure:"organization_id"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // memory, sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
	RetentionDays    int           `mapstructure:"retention_days"`
}

// EngineConfig contains alert engine configuration
type EngineConfig struct {
	DefaultConfidenceThreshold float64       `mapstructure:"default_confidence_threshold"`
	CreateDefaultRules         bool          `mapstructure:"create_default_rules"`
	ActuatorURL                string        `mapstructure:"actuator_url"`
	ActuatorTimeout            time.Duration `mapstructure:"actuator_timeout"`
	ActuatorRetryAttempts      int           `mapstructure:"actuator_retry_attempts"`
	ActuatorRetryDelay         time.Duration `mapstructure:"actuator_retry_delay"`
}

// EscalationConfig contains escalation manager configuration
type EscalationConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	CheckInterval      time.Duration `mapstructure:"check_interval"`
	CreateDefaultRules bool          `mapstructure:"create_default_rules"`
}

// NotificationConfig contains notification system configuration
type NotificationConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`

	Provider ProviderConfig `mapstructure:"provider"`
	Email    EmailConfig    `mapstructure:"email"`

	EnableSMS      bool `mapstructure:"enable_sms"`
	EnableEmail    bool `mapstructure:"enable_email"`
	EnableWhatsApp bool `mapstructure:"enable_whatsapp"`
	EnablePush     bool `mapstructure:"enable_push"`

	Recipients []RecipientConfig `mapstructure:"recipients"`
}

// ProviderConfig contains messaging provider configuration
type ProviderConfig struct {
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// EmailConfig contains SMTP configuration
type EmailConfig struct {
	SMTPHost    string `mapstructure:"smtp_host"`
	SMTPPort    int    `mapstructure:"smtp_port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	FromEmail   string `mapstructure:"from_email"`
	FromName    string `mapstructure:"from_name"`
	UseTLS      bool   `mapstructure:"use_tls"`
	UseStartTLS bool   `mapstructure:"use_start_tls"`
}

// RecipientConfig describes one notifiable person in the static directory.
type RecipientConfig struct {
	ID       string            `mapstructure:"id"`
	Name     string            `mapstructure:"name"`
	Role     string            `mapstructure:"role"`
	Contacts map[string]string `mapstructure:"contacts"` // channel -> address
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./internal/config")
	}

	viper.SetEnvPrefix("ALERT_ENGINE")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}
	if apiKey := os.Getenv("PROVIDER_API_KEY"); apiKey != "" {
		config.Notifications.Provider.APIKey = apiKey
	}
	if smtpPassword := os.Getenv("SMTP_PASSWORD"); smtpPassword != "" {
		config.Notifications.Email.Password = smtpPassword
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "alert-engine")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.organization_id", "ORG-DEFAULT")

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/alerts.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")
	viper.SetDefault("storage.retention_days", 30)

	// Engine defaults
	viper.SetDefault("engine.default_confidence_threshold", 0.8)
	viper.SetDefault("engine.create_default_rules", true)
	viper.SetDefault("engine.actuator_timeout", "10s")
	viper.SetDefault("engine.actuator_retry_attempts", 2)
	viper.SetDefault("engine.actuator_retry_delay", "1s")

	// Escalation defaults
	viper.SetDefault("escalation.enabled", true)
	viper.SetDefault("escalation.check_interval", "1m")
	viper.SetDefault("escalation.create_default_rules", true)

	// Notification defaults
	viper.SetDefault("notifications.enabled", true)
	viper.SetDefault("notifications.timeout", "30s")
	viper.SetDefault("notifications.retry_attempts", 3)
	viper.SetDefault("notifications.retry_delay", "1s")
	viper.SetDefault("notifications.enable_sms", true)
	viper.SetDefault("notifications.enable_email", true)
	viper.SetDefault("notifications.enable_whatsapp", true)
	viper.SetDefault("notifications.enable_push", false)
	viper.SetDefault("notifications.email.smtp_host", "localhost")
	viper.SetDefault("notifications.email.smtp_port", 587)
	viper.SetDefault("notifications.email.from_email", "alerts@safesite.local")
	viper.SetDefault("notifications.email.from_name", "SafeSite Alerts")
	viper.SetDefault("notifications.email.use_start_tls", true)

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.Type != "memory" && c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Engine.DefaultConfidenceThreshold < 0 || c.Engine.DefaultConfidenceThreshold > 1 {
		return fmt.Errorf("default confidence threshold must be between 0 and 1")
	}
	if c.Escalation.Enabled && c.Escalation.CheckInterval <= 0 {
		return fmt.Errorf("escalation check interval must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if c.Notifications.Enabled && c.Notifications.EnableEmail && c.Notifications.Email.SMTPHost == "" {
		return fmt.Errorf("SMTP host is required when email notifications are enabled")
	}
	return nil
}
