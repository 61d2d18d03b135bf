// File: cmd/alertd/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/safesite/alert-engine/internal/config"
	"github.com/safesite/alert-engine/internal/engine"
	"github.com/safesite/alert-engine/internal/escalation"
	"github.com/safesite/alert-engine/internal/metrics"
	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/internal/notification"
	"github.com/safesite/alert-engine/internal/server"
	"github.com/safesite/alert-engine/internal/storage"
	"github.com/safesite/alert-engine/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application represents the main application
type Application struct {
	config      *config.Config
	logger      *logrus.Logger
	store       storage.Store
	engine      *engine.AlertEngine
	escalation  *escalation.Manager
	dispatcher  *notification.Dispatcher
	directory   *notification.StaticDirectory
	coordinator *engine.Coordinator
	metrics     *metrics.Manager
	server      *server.HTTPServer
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initializeEngine(); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	if err := app.initializeNotifications(); err != nil {
		return fmt.Errorf("failed to initialize notifications: %w", err)
	}

	if err := app.initializeEscalation(); err != nil {
		return fmt.Errorf("failed to initialize escalation: %w", err)
	}

	app.coordinator = engine.NewCoordinator(app.engine, app.escalation, app.dispatcher, app.directory)

	if app.config.Server.EnableMetrics {
		app.metrics = metrics.NewManager()
	}

	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeStorage initializes the storage layer
func (app *Application) initializeStorage() error {
	app.logger.WithField("type", app.config.Storage.Type).Info("Initializing storage layer")

	store, err := storage.NewStore(&storage.Config{
		Type:             app.config.Storage.Type,
		ConnectionString: app.config.Storage.ConnectionString,
		MaxConnections:   app.config.Storage.MaxConnections,
		MaxIdleTime:      app.config.Storage.MaxIdleTime,
		RetentionDays:    app.config.Storage.RetentionDays,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}

	app.store = store
	app.logger.Info("Storage layer initialized successfully")
	return nil
}

// initializeEngine initializes the alert engine and its actuator gateway
func (app *Application) initializeEngine() error {
	app.logger.Info("Initializing alert engine")

	var actuator engine.ActuatorGateway
	if app.config.Engine.ActuatorURL != "" {
		actuator = engine.NewHTTPActuatorGateway(&engine.HTTPActuatorConfig{
			BaseURL:       app.config.Engine.ActuatorURL,
			Timeout:       app.config.Engine.ActuatorTimeout,
			RetryAttempts: app.config.Engine.ActuatorRetryAttempts,
			RetryDelay:    app.config.Engine.ActuatorRetryDelay,
		})
	}

	app.engine = engine.NewAlertEngine(actuator, app.store)

	if app.config.Engine.CreateDefaultRules {
		app.engine.CreateDefaultRules(app.config.App.OrganizationID)
	}

	app.logger.Info("Alert engine initialized successfully")
	return nil
}

// initializeNotifications initializes the recipient directory, channels and
// dispatcher
func (app *Application) initializeNotifications() error {
	app.directory = notification.NewStaticDirectory()
	for _, rc := range app.config.Notifications.Recipients {
		contacts := make(map[models.ChannelType]string, len(rc.Contacts))
		for channel, contact := range rc.Contacts {
			contacts[models.ChannelType(channel)] = contact
		}
		app.directory.AddRecipient(app.config.App.OrganizationID, &models.Recipient{
			ID:       rc.ID,
			Name:     rc.Name,
			Role:     rc.Role,
			Contacts: contacts,
		})
	}

	if !app.config.Notifications.Enabled {
		app.logger.Info("Notifications disabled")
		return nil
	}

	app.logger.Info("Initializing notification dispatcher")

	notifLogger := notification.NewNotificationLogger()
	app.dispatcher = notification.NewDispatcher(app.engine, app.store)

	notifCfg := app.config.Notifications
	var provider *notification.ProviderClient
	if notifCfg.EnableSMS || notifCfg.EnableWhatsApp || notifCfg.EnablePush {
		provider = notification.NewProviderClient(&notification.ProviderConfig{
			Name:          notifCfg.Provider.Name,
			BaseURL:       notifCfg.Provider.BaseURL,
			APIKey:        notifCfg.Provider.APIKey,
			Timeout:       notifCfg.Timeout,
			RetryAttempts: notifCfg.RetryAttempts,
			RetryDelay:    notifCfg.RetryDelay,
		}, notifLogger)
	}

	if notifCfg.EnableSMS {
		app.dispatcher.RegisterChannel(notification.NewSMSChannel(provider, notifLogger))
	}
	if notifCfg.EnableWhatsApp {
		app.dispatcher.RegisterChannel(notification.NewWhatsAppChannel(provider, notifLogger))
	}
	if notifCfg.EnablePush {
		app.dispatcher.RegisterChannel(notification.NewPushChannel(provider, notifLogger))
	}
	if notifCfg.EnableEmail {
		app.dispatcher.RegisterChannel(notification.NewEmailChannel(&notification.EmailConfig{
			SMTPHost:    notifCfg.Email.SMTPHost,
			SMTPPort:    notifCfg.Email.SMTPPort,
			Username:    notifCfg.Email.Username,
			Password:    notifCfg.Email.Password,
			FromEmail:   notifCfg.Email.FromEmail,
			FromName:    notifCfg.Email.FromName,
			UseTLS:      notifCfg.Email.UseTLS,
			UseStartTLS: notifCfg.Email.UseStartTLS,
			Timeout:     notifCfg.Timeout,
		}, notifLogger))
	}

	app.logger.WithField("channels", app.dispatcher.Channels()).Info("Notification dispatcher initialized")
	return nil
}

// initializeEscalation initializes the escalation manager
func (app *Application) initializeEscalation() error {
	if !app.config.Escalation.Enabled {
		app.logger.Info("Escalation disabled")
		return nil
	}

	app.logger.Info("Initializing escalation manager")

	var notifier escalation.Notifier
	if app.dispatcher != nil {
		notifier = app.dispatcher
	}
	app.escalation = escalation.NewManager(app.engine, app.directory, notifier)
	app.escalation.SetCheckInterval(app.config.Escalation.CheckInterval)

	if app.config.Escalation.CreateDefaultRules {
		app.escalation.CreateDefaultRules(app.config.App.OrganizationID)
	}

	app.logger.Info("Escalation manager initialized successfully")
	return nil
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() error {
	app.logger.Info("Initializing HTTP server")

	serverCfg := &server.ServerConfig{
		Port:           app.config.Server.Port,
		Host:           app.config.Server.Host,
		ReadTimeout:    app.config.Server.ReadTimeout,
		WriteTimeout:   app.config.Server.WriteTimeout,
		EnableMetrics:  app.config.Server.EnableMetrics,
		EnableHealth:   app.config.Server.EnableHealth,
		OrganizationID: app.config.App.OrganizationID,
	}

	var err error
	app.server, err = server.NewHTTPServer(serverCfg, app.coordinator, app.store, app.metrics)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	app.logger.Info("HTTP server initialized successfully")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting alert engine")

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	app.coordinator.Start(app.ctx)

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"storage":        app.config.Storage.Type,
		"org_id":         app.config.App.OrganizationID,
	}).Info("Alert engine started successfully")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping alert engine")

	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithField("error", err).Error("Failed to stop HTTP server")
		}
	}

	if app.coordinator != nil {
		app.coordinator.Stop()
	}

	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.WithField("error", err).Error("Failed to close storage")
		}
	}

	app.logger.Info("Alert engine stopped successfully")
	return nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "alertd",
	Short:   "SafeSite Alert Engine",
	Long:    `Alert lifecycle, escalation and notification dispatch service for workplace safety monitoring.`,
	Version: AppVersion,
	RunE:    runAlertEngine,
}

// runAlertEngine is the main command to run the alert engine
func runAlertEngine(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("SafeSite Alert Engine %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Organization: %s\n", cfg.App.OrganizationID)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Escalation enabled: %t\n", cfg.Escalation.Enabled)
		fmt.Printf("Recipients: %d\n", len(cfg.Notifications.Recipients))

		return nil
	},
}

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Println("Testing alert engine connectivity...")

		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStore(&storage.Config{
			Type:             cfg.Storage.Type,
			ConnectionString: cfg.Storage.ConnectionString,
			MaxConnections:   cfg.Storage.MaxConnections,
			MaxIdleTime:      cfg.Storage.MaxIdleTime,
			RetentionDays:    cfg.Storage.RetentionDays,
		})
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
		fmt.Println("✓ Storage connection successful")

		if cfg.Notifications.Enabled && cfg.Notifications.EnableEmail {
			fmt.Printf("Email configured for %s:%d\n", cfg.Notifications.Email.SMTPHost, cfg.Notifications.Email.SMTPPort)
			fmt.Println("✓ Email configuration valid")
		}
		if cfg.Engine.ActuatorURL != "" {
			fmt.Printf("Actuator gateway: %s\n", cfg.Engine.ActuatorURL)
		}

		fmt.Println("\nAll connectivity tests passed! ✓")
		return nil
	},
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
