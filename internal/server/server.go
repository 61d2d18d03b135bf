// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/safesite/alert-engine/internal/engine"
	"github.com/safesite/alert-engine/internal/metrics"
	"github.com/safesite/alert-engine/internal/models"
	"github.com/safesite/alert-engine/internal/storage"
	"github.com/safesite/alert-engine/pkg/utils"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int           `json:"port"`
	Host           string        `json:"host"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	EnableMetrics  bool          `json:"enable_metrics"`
	EnableHealth   bool          `json:"enable_health"`
	OrganizationID string        `json:"organization_id"`
}

// HTTPServer exposes the alert engine over REST
type HTTPServer struct {
	config         *ServerConfig
	server         *http.Server
	router         *mux.Router
	coordinator    *engine.Coordinator
	store          storage.Store
	metricsManager *metrics.Manager
	logger         *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	config *ServerConfig,
	coordinator *engine.Coordinator,
	store storage.Store,
	metricsManager *metrics.Manager,
) (*HTTPServer, error) {

	server := &HTTPServer{
		config:         config,
		coordinator:    coordinator,
		store:          store,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
	}

	// Setup router
	server.setupRouter()

	// Create HTTP server
	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health check endpoint
	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	// Metrics endpoint
	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Detection intake
	api.HandleFunc("/detections", s.processDetectionHandler).Methods("POST")

	// Alert endpoints
	api.HandleFunc("/alerts", s.listAlertsHandler).Methods("GET")
	api.HandleFunc("/alerts", s.createAlertHandler).Methods("POST")
	api.HandleFunc("/alerts/history", s.alertHistoryHandler).Methods("GET")
	api.HandleFunc("/alerts/{id}", s.getAlertHandler).Methods("GET")
	api.HandleFunc("/alerts/{id}/acknowledge", s.acknowledgeAlertHandler).Methods("POST")
	api.HandleFunc("/alerts/{id}/resolve", s.resolveAlertHandler).Methods("POST")
	api.HandleFunc("/alerts/{id}/dismiss", s.dismissAlertHandler).Methods("POST")
	api.HandleFunc("/alerts/{id}/actions", s.alertActionsHandler).Methods("GET")
	api.HandleFunc("/alerts/{id}/notifications", s.alertNotificationsHandler).Methods("GET")

	// Alert rule endpoints
	api.HandleFunc("/rules", s.listRulesHandler).Methods("GET")
	api.HandleFunc("/rules", s.addRuleHandler).Methods("POST")
	api.HandleFunc("/rules/{id}", s.getRuleHandler).Methods("GET")
	api.HandleFunc("/rules/{id}", s.updateRuleHandler).Methods("PUT")
	api.HandleFunc("/rules/{id}", s.removeRuleHandler).Methods("DELETE")

	// Escalation rule endpoints
	api.HandleFunc("/escalation-rules", s.listEscalationRulesHandler).Methods("GET")
	api.HandleFunc("/escalation-rules", s.addEscalationRuleHandler).Methods("POST")
	api.HandleFunc("/escalation-rules/{id}", s.removeEscalationRuleHandler).Methods("DELETE")

	// Notification endpoints
	api.HandleFunc("/notifications/channels", s.listChannelsHandler).Methods("GET")
	api.HandleFunc("/notifications/test", s.testNotificationHandler).Methods("POST")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	// Immediately update system metrics so they appear on first scrape
	if s.metricsManager != nil {
		s.metricsManager.UpdateSystemMetrics()
		s.updateComponentHealth()
		go s.systemMetricsUpdater()
	}

	// Create a channel to receive startup errors
	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithField("error", err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Give the server a moment to start and check for immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.metricsManager.UpdateSystemMetrics()
		s.updateComponentHealth()
	}
}

func (s *HTTPServer) updateComponentHealth() {
	prom := s.metricsManager.GetPrometheusMetrics()

	if s.store != nil {
		prom.UpdateComponentHealth("storage", s.store.Ping() == nil)
	}
	if esc := s.coordinator.Escalation(); esc != nil {
		escStats := esc.GetStats()
		prom.UpdateComponentHealth("escalation", true)
		prom.UpdateEscalationTimers(escStats.ActiveTimers)
	}
	if s.coordinator.Dispatcher() != nil {
		prom.UpdateComponentHealth("notification", true)
	}

	engineStats := s.coordinator.Engine().GetStats(s.config.OrganizationID)
	for severity, count := range engineStats.BySeverity {
		prom.UpdateActiveAlerts(string(severity), count)
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Middleware

// loggingMiddleware logs HTTP requests
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"duration":   time.Since(start),
			"user_agent": r.UserAgent(),
			"remote_ip":  r.RemoteAddr,
		}).Info("HTTP request")
	})
}

// corsMiddleware handles CORS
func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for the metrics middleware
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// metricsMiddleware records request counts and latencies
func (s *HTTPServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				path = template
			}
		}

		s.metricsManager.GetPrometheusMetrics().RecordHTTPRequest(
			r.Method, path, strconv.Itoa(recorder.status), time.Since(start))
	})
}

// Health Handlers

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"version":         "1.0.0",
		"metrics_enabled": s.config.EnableMetrics,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// detailedHealthHandler returns per-component health status
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	components := map[string]interface{}{}

	if s.store != nil {
		storageHealthy := s.store.Ping() == nil
		components["storage"] = storageHealthy
	}
	if esc := s.coordinator.Escalation(); esc != nil {
		components["escalation"] = esc.GetStats()
	}
	if dispatcher := s.coordinator.Dispatcher(); dispatcher != nil {
		components["notification"] = dispatcher.GetStats()
	}

	health := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now(),
		"version":    "1.0.0",
		"components": components,
	}

	s.writeJSON(w, http.StatusOK, health)
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	orgID := s.organizationID(r)

	stats := map[string]interface{}{
		"timestamp":       time.Now(),
		"alerts":          s.coordinator.Engine().GetStats(orgID),
		"metrics_enabled": s.config.EnableMetrics,
	}

	if esc := s.coordinator.Escalation(); esc != nil {
		stats["escalation"] = esc.GetStats()
	}
	if dispatcher := s.coordinator.Dispatcher(); dispatcher != nil {
		stats["notifications"] = dispatcher.GetStats()
	}
	if s.store != nil {
		if storageStats, err := s.store.GetStorageStats(r.Context()); err == nil {
			stats["storage"] = storageStats
		}
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// Detection Handlers

// processDetectionHandler runs the full response pipeline for a detector payload
func (s *HTTPServer) processDetectionHandler(w http.ResponseWriter, r *http.Request) {
	var detection models.DetectionResult

	if err := json.NewDecoder(r.Body).Decode(&detection); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if detection.OrganizationID == "" {
		detection.OrganizationID = s.config.OrganizationID
	}

	start := time.Now()
	alerts := s.coordinator.ProcessDetection(r.Context(), &detection)

	if s.metricsManager != nil {
		prom := s.metricsManager.GetPrometheusMetrics()
		prom.RecordDetectionEvaluated(time.Since(start))
		for _, alert := range alerts {
			prom.RecordAlertCreated(string(alert.Type), string(alert.Severity))
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts_created": len(alerts),
		"alerts":         alerts,
	})
}

// Alert Handlers

// listAlertsHandler lists active alerts for an organization
func (s *HTTPServer) listAlertsHandler(w http.ResponseWriter, r *http.Request) {
	orgID := s.organizationID(r)
	filter := parseAlertFilter(r)

	alerts := s.coordinator.Engine().GetActiveAlerts(orgID, filter)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"total":  len(alerts),
	})
}

// alertHistoryHandler lists persisted alerts, terminal ones included
func (s *HTTPServer) alertHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Persistent storage is not configured", nil)
		return
	}

	filter := parseAlertFilter(r)
	filter.OrganizationID = s.organizationID(r)
	if filter.Limit == 0 {
		filter.Limit = 50
	}

	alerts, err := s.store.GetAlerts(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve alerts", err)
		return
	}

	total, err := s.store.GetAlertCount(r.Context(), models.AlertFilter{OrganizationID: filter.OrganizationID})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to count alerts", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"limit":  filter.Limit,
		"offset": filter.Offset,
		"total":  total,
	})
}

// createAlertHandler creates a manually reported alert
func (s *HTTPServer) createAlertHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Type           string                 `json:"type"`
		Severity       string                 `json:"severity"`
		Title          string                 `json:"title"`
		Description    string                 `json:"description"`
		OrganizationID string                 `json:"organization_id"`
		Source         string                 `json:"source"`
		CameraID       string                 `json:"camera_id"`
		SiteID         string                 `json:"site_id"`
		Zone           string                 `json:"zone"`
		Confidence     float64                `json:"confidence"`
		Evidence       []string               `json:"evidence"`
		Metadata       map[string]interface{} `json:"metadata"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if request.Type == "" || request.Title == "" {
		s.writeError(w, http.StatusBadRequest, "Alert type and title are required", nil)
		return
	}
	if request.Severity == "" {
		request.Severity = string(models.SeverityMedium)
	}
	if request.OrganizationID == "" {
		request.OrganizationID = s.config.OrganizationID
	}
	if request.Source == "" {
		request.Source = "manual_report"
	}

	alert := s.coordinator.CreateAlert(r.Context(), engine.CreateAlertInput{
		Type:           models.AlertType(request.Type),
		Severity:       models.AlertSeverity(request.Severity),
		Title:          request.Title,
		Description:    request.Description,
		OrganizationID: request.OrganizationID,
		Source:         request.Source,
		CameraID:       request.CameraID,
		SiteID:         request.SiteID,
		Zone:           request.Zone,
		Confidence:     request.Confidence,
		Evidence:       request.Evidence,
		Metadata:       request.Metadata,
	})

	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().RecordAlertCreated(string(alert.Type), string(alert.Severity))
	}

	s.writeJSON(w, http.StatusCreated, alert)
}

// getAlertHandler gets a specific alert by id
func (s *HTTPServer) getAlertHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	alert, err := s.coordinator.Engine().GetAlert(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Alert not found", err)
		return
	}

	s.writeJSON(w, http.StatusOK, alert)
}

// acknowledgeAlertHandler acknowledges an alert
func (s *HTTPServer) acknowledgeAlertHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	var request struct {
		UserID string `json:"user_id"`
		Notes  string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if request.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "User id is required", nil)
		return
	}

	if err := s.coordinator.AcknowledgeAlert(id, request.UserID, request.Notes); err != nil {
		s.writeError(w, statusFromError(err), "Failed to acknowledge alert", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Alert acknowledged successfully",
		"alert_id": id,
	})
}

// resolveAlertHandler resolves an alert and cancels its escalation
func (s *HTTPServer) resolveAlertHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	var request struct {
		UserID string `json:"user_id"`
		Notes  string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if request.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "User id is required", nil)
		return
	}

	if err := s.coordinator.ResolveAlert(id, request.UserID, request.Notes); err != nil {
		s.writeError(w, statusFromError(err), "Failed to resolve alert", err)
		return
	}

	if s.metricsManager != nil {
		if alert, err := s.coordinator.Engine().GetAlert(id); err == nil && alert.ResolvedAt != nil {
			s.metricsManager.GetPrometheusMetrics().RecordAlertResolved(
				string(alert.Type), string(alert.Severity), alert.ResolvedAt.Sub(alert.CreatedAt))
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Alert resolved successfully",
		"alert_id": id,
	})
}

// dismissAlertHandler dismisses an alert and cancels its escalation
func (s *HTTPServer) dismissAlertHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	var request struct {
		UserID string `json:"user_id"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := s.coordinator.DismissAlert(id, request.UserID, request.Reason); err != nil {
		s.writeError(w, statusFromError(err), "Failed to dismiss alert", err)
		return
	}

	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().RecordAlertDismissed()
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Alert dismissed successfully",
		"alert_id": id,
	})
}

// alertActionsHandler lists the autonomous actions recorded for an alert
func (s *HTTPServer) alertActionsHandler(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Persistent storage is not configured", nil)
		return
	}

	vars := mux.Vars(r)
	actions, err := s.store.GetActions(r.Context(), vars["id"])
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve actions", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"actions": actions,
		"total":   len(actions),
	})
}

// alertNotificationsHandler lists the notifications recorded for an alert
func (s *HTTPServer) alertNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Persistent storage is not configured", nil)
		return
	}

	vars := mux.Vars(r)
	notifications, err := s.store.GetNotifications(r.Context(), vars["id"])
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve notifications", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"total":         len(notifications),
	})
}

// Rule Handlers

// listRulesHandler lists alert rules for an organization
func (s *HTTPServer) listRulesHandler(w http.ResponseWriter, r *http.Request) {
	rules := s.coordinator.Engine().GetRules(s.organizationID(r))
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"total": len(rules),
	})
}

// addRuleHandler adds a new alert rule
func (s *HTTPServer) addRuleHandler(w http.ResponseWriter, r *http.Request) {
	var rule models.AlertRule

	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if rule.ID == "" {
		rule.ID = utils.NewRuleID()
	}
	if rule.OrganizationID == "" {
		rule.OrganizationID = s.config.OrganizationID
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}

	if err := s.coordinator.Engine().AddRule(&rule); err != nil {
		s.writeError(w, statusFromError(err), "Failed to add rule", err)
		return
	}
	s.persistAlertRule(r.Context(), &rule)

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Rule added successfully",
		"rule_id": rule.ID,
	})
}

// getRuleHandler gets a specific alert rule
func (s *HTTPServer) getRuleHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ruleID := vars["id"]

	rules := s.coordinator.Engine().GetRules(s.organizationID(r))
	for _, rule := range rules {
		if rule.ID == ruleID {
			s.writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	s.writeError(w, http.StatusNotFound, "Rule not found", nil)
}

// updateRuleHandler updates an alert rule
func (s *HTTPServer) updateRuleHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ruleID := vars["id"]

	var rule models.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rule.ID = ruleID
	if rule.OrganizationID == "" {
		rule.OrganizationID = s.config.OrganizationID
	}

	if err := s.coordinator.Engine().UpdateRule(&rule); err != nil {
		s.writeError(w, statusFromError(err), "Failed to update rule", err)
		return
	}
	s.persistAlertRule(r.Context(), &rule)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Rule updated successfully",
		"rule_id": ruleID,
	})
}

// removeRuleHandler removes an alert rule
func (s *HTTPServer) removeRuleHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ruleID := vars["id"]

	if err := s.coordinator.Engine().RemoveRule(ruleID); err != nil {
		s.writeError(w, statusFromError(err), "Failed to remove rule", err)
		return
	}

	if s.store != nil {
		if err := s.store.DeleteAlertRule(r.Context(), ruleID); err != nil {
			s.logger.WithFields(logrus.Fields{"rule_id": ruleID, "error": err.Error()}).Warn("Failed to delete persisted rule")
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Rule removed successfully",
		"rule_id": ruleID,
	})
}

// Escalation Rule Handlers

// listEscalationRulesHandler lists escalation rules for an organization
func (s *HTTPServer) listEscalationRulesHandler(w http.ResponseWriter, r *http.Request) {
	esc := s.coordinator.Escalation()
	if esc == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Escalation is not enabled", nil)
		return
	}

	rules := esc.GetRules(s.organizationID(r))
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"total": len(rules),
	})
}

// addEscalationRuleHandler adds a new escalation rule
func (s *HTTPServer) addEscalationRuleHandler(w http.ResponseWriter, r *http.Request) {
	esc := s.coordinator.Escalation()
	if esc == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Escalation is not enabled", nil)
		return
	}

	var rule models.EscalationRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if rule.ID == "" {
		rule.ID = utils.NewEscalationRuleID()
	}
	if rule.OrganizationID == "" {
		rule.OrganizationID = s.config.OrganizationID
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}

	if err := esc.AddRule(&rule); err != nil {
		s.writeError(w, statusFromError(err), "Failed to add escalation rule", err)
		return
	}

	if s.store != nil {
		if err := s.store.SaveEscalationRule(r.Context(), &rule); err != nil {
			s.logger.WithFields(logrus.Fields{"rule_id": rule.ID, "error": err.Error()}).Warn("Failed to persist escalation rule")
		}
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Escalation rule added successfully",
		"rule_id": rule.ID,
	})
}

// removeEscalationRuleHandler removes an escalation rule
func (s *HTTPServer) removeEscalationRuleHandler(w http.ResponseWriter, r *http.Request) {
	esc := s.coordinator.Escalation()
	if esc == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Escalation is not enabled", nil)
		return
	}

	vars := mux.Vars(r)
	ruleID := vars["id"]

	if err := esc.RemoveRule(ruleID); err != nil {
		s.writeError(w, statusFromError(err), "Failed to remove escalation rule", err)
		return
	}

	if s.store != nil {
		if err := s.store.DeleteEscalationRule(r.Context(), ruleID); err != nil {
			s.logger.WithFields(logrus.Fields{"rule_id": ruleID, "error": err.Error()}).Warn("Failed to delete persisted escalation rule")
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Escalation rule removed successfully",
		"rule_id": ruleID,
	})
}

// Notification Handlers

// listChannelsHandler lists registered notification channels
func (s *HTTPServer) listChannelsHandler(w http.ResponseWriter, r *http.Request) {
	dispatcher := s.coordinator.Dispatcher()
	if dispatcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Notifications are not enabled", nil)
		return
	}

	channels := dispatcher.Channels()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"channels": channels,
		"total":    len(channels),
	})
}

// testNotificationHandler sends a test message on one channel
func (s *HTTPServer) testNotificationHandler(w http.ResponseWriter, r *http.Request) {
	dispatcher := s.coordinator.Dispatcher()
	if dispatcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Notifications are not enabled", nil)
		return
	}

	var request struct {
		Channel string `json:"channel"`
		Contact string `json:"contact"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if request.Channel == "" || request.Contact == "" {
		s.writeError(w, http.StatusBadRequest, "Channel and contact are required", nil)
		return
	}

	if err := dispatcher.SendTestNotification(r.Context(), models.ChannelType(request.Channel), request.Contact); err != nil {
		s.writeError(w, statusFromError(err), "Failed to send test notification", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Test notification sent successfully",
		"channel": request.Channel,
	})
}

// Utility Methods

func (s *HTTPServer) organizationID(r *http.Request) string {
	if org := r.URL.Query().Get("organization_id"); org != "" {
		return org
	}
	return s.config.OrganizationID
}

func (s *HTTPServer) persistAlertRule(ctx context.Context, rule *models.AlertRule) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveAlertRule(ctx, rule); err != nil {
		s.logger.WithFields(logrus.Fields{"rule_id": rule.ID, "error": err.Error()}).Warn("Failed to persist rule")
	}
}

// parseAlertFilter builds an AlertFilter from query parameters
func parseAlertFilter(r *http.Request) models.AlertFilter {
	filter := models.AlertFilter{
		SiteID:   r.URL.Query().Get("site_id"),
		CameraID: r.URL.Query().Get("camera_id"),
	}

	if severity := r.URL.Query().Get("severity"); severity != "" {
		s := models.AlertSeverity(severity)
		filter.Severity = &s
	}
	if alertType := r.URL.Query().Get("type"); alertType != "" {
		t := models.AlertType(alertType)
		filter.Type = &t
	}
	if status := r.URL.Query().Get("status"); status != "" {
		st := models.AlertStatus(status)
		filter.Status = &st
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	return filter
}

// statusFromError maps application error codes to HTTP status codes
func statusFromError(err error) int {
	switch {
	case utils.IsCode(err, utils.ErrCodeNotFound):
		return http.StatusNotFound
	case utils.IsCode(err, utils.ErrCodeInvalidTransition):
		return http.StatusConflict
	case utils.IsCode(err, utils.ErrCodeValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithField("error", err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
			"error":   err,
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}
