package http

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"atlas-server/pkg/version"

	"github.com/sirupsen/logrus"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version"`
	Checks    map[string]CheckResult `json:"checks"`
	System    SystemInfo             `json:"system"`
}

// CheckResult represents an individual health check result
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemInfo contains system resource information
type SystemInfo struct {
	GoRoutines int    `json:"goroutines"`
	MemoryMB   uint64 `json:"memory_mb"`
	CPUCount   int    `json:"cpu_count"`
}

// HealthHandler handles health check requests
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Version:   version.Version,
		Checks:    make(map[string]CheckResult),
	}

	// Check telephony client
	if s.telephony != nil {
		health.Checks["telephony"] = CheckResult{
			Status:  "healthy",
			Message: "Telephony client configured",
		}
	} else {
		health.Checks["telephony"] = CheckResult{
			Status:  "degraded",
			Message: "Telephony client not configured",
		}
	}

	// Check database connectivity if configured
	if s.dbHealth != nil {
		if err := s.dbHealth.Health(); err != nil {
			health.Checks["database"] = CheckResult{
				Status:  "degraded",
				Message: fmt.Sprintf("Database unhealthy: %v", err),
			}
		} else {
			health.Checks["database"] = CheckResult{
				Status:  "healthy",
				Message: "Database operational",
			}
		}
	}

	// Check AMQP if configured
	if s.amqpClient != nil {
		if s.amqpClient.IsConnected() {
			health.Checks["amqp"] = CheckResult{
				Status:  "healthy",
				Message: "AMQP connected",
			}
		} else {
			health.Checks["amqp"] = CheckResult{
				Status:  "degraded",
				Message: "AMQP disconnected",
			}
		}
	}

	// Check WebSocket hub
	if s.hub != nil && s.hub.IsRunning() {
		health.Checks["websocket"] = CheckResult{
			Status:  "healthy",
			Message: "WebSocket hub is running",
		}
	} else {
		health.Checks["websocket"] = CheckResult{
			Status:  "degraded",
			Message: "WebSocket hub not running",
		}
	}

	// Check detection pipeline
	if s.analysis != nil && s.detector != nil {
		health.Checks["detection"] = CheckResult{
			Status:  "healthy",
			Message: "Detection pipeline operational",
		}
	} else {
		health.Checks["detection"] = CheckResult{
			Status:  "unhealthy",
			Message: "Detection pipeline not initialized",
		}
		health.Status = "unhealthy"
	}

	// System information
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	health.System.GoRoutines = runtime.NumGoroutine()
	health.System.MemoryMB = m.Alloc / 1024 / 1024
	health.System.CPUCount = runtime.NumCPU()

	if r.URL.Query().Get("detailed") == "true" {
		s.logger.WithFields(logrus.Fields{
			"status":   health.Status,
			"checks":   health.Checks,
			"duration": time.Since(startTime),
		}).Debug("Health check performed")
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, statusCode, health)
}

// LivenessHandler handles kubernetes liveness probe
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ReadinessHandler handles kubernetes readiness probe
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	// The detector is the one component the service cannot run without
	if s.analysis == nil || s.detector == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
