// Package http exposes the REST API, Twilio webhook endpoints, health
// checks, and the realtime event WebSocket for the Atlas call server.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"atlas-server/pkg/analysis"
	"atlas-server/pkg/database"
	"atlas-server/pkg/detector"
	"atlas-server/pkg/errors"
	"atlas-server/pkg/metrics"
	"atlas-server/pkg/scheduler"
	"atlas-server/pkg/telephony"
	"atlas-server/pkg/transcript"
	"atlas-server/pkg/version"

	"github.com/sirupsen/logrus"
)

// CallPlacer places and terminates outbound calls
type CallPlacer interface {
	PlaceCall(ctx context.Context, toNumber string, callID string) (*telephony.CallResult, error)
	HangupCall(ctx context.Context, callSID string) error
}

// HealthChecker reports liveness of a backing service
type HealthChecker interface {
	Health() error
}

// ConnectionChecker reports connectivity of the message broker
type ConnectionChecker interface {
	IsConnected() bool
}

// Server represents the HTTP server for the call API and webhooks
type Server struct {
	config     *Config
	logger     *logrus.Logger
	httpServer *http.Server
	mux        *http.ServeMux
	startTime  time.Time

	telephony   CallPlacer
	repo        *database.Repository
	dbHealth    HealthChecker
	amqpClient  ConnectionChecker
	analysis    *analysis.Service
	transcripts *transcript.Service
	detector    *detector.Detector
	retries     *scheduler.Scheduler
	hub         *EventHub
	twiml       telephony.TwiMLOptions

	retryMu       sync.Mutex
	retryAttempts map[string]int
}

// NewServer creates a new HTTP server instance
func NewServer(logger *logrus.Logger, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	server := &Server{
		config:        config,
		logger:        logger,
		startTime:     time.Now(),
		retryAttempts: make(map[string]int),
	}

	mux := http.NewServeMux()
	server.mux = mux

	// Wrap handlers with middleware that adds Server header
	addServerHeader := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", version.ServerHeader())
			next(w, r)
		}
	}

	mux.HandleFunc("GET /health", addServerHeader(server.HealthHandler))
	mux.HandleFunc("GET /health/live", addServerHeader(server.LivenessHandler))
	mux.HandleFunc("GET /health/ready", addServerHeader(server.ReadinessHandler))
	mux.HandleFunc("GET /status", addServerHeader(server.statusHandler))

	if config.EnableMetrics {
		metrics.RegisterHandler(mux)
		logger.Info("Prometheus metrics endpoint enabled at /metrics")
	} else {
		logger.Info("Metrics endpoint disabled")
	}

	mux.HandleFunc("POST /api/calls", addServerHeader(server.placeCallHandler))
	mux.HandleFunc("GET /api/calls/{call_sid}", addServerHeader(server.getCallHandler))
	mux.HandleFunc("POST /api/calls/{call_sid}/hangup", addServerHeader(server.hangupCallHandler))
	mux.HandleFunc("POST /api/calls/{call_sid}/analyze", addServerHeader(server.analyzeCallHandler))
	mux.HandleFunc("POST /api/calls/{call_sid}/transcripts", addServerHeader(server.ingestTranscriptHandler))
	mux.HandleFunc("GET /api/calls/{call_sid}/detection", addServerHeader(server.getDetectionHandler))
	mux.HandleFunc("GET /api/detection/statistics", addServerHeader(server.detectionStatsHandler))
	mux.HandleFunc("POST /api/detection/statistics/reset", addServerHeader(server.resetDetectionStatsHandler))

	mux.HandleFunc("POST /webhooks/twilio/voice", addServerHeader(server.voiceWebhookHandler))
	mux.HandleFunc("POST /webhooks/twilio/status", addServerHeader(server.statusWebhookHandler))
	mux.HandleFunc("POST /webhooks/twilio/recording", addServerHeader(server.recordingWebhookHandler))

	mux.HandleFunc("GET /ws/transcriptions", server.eventsWebSocketHandler)

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server
}

// SetTelephonyClient sets the outbound call client
func (s *Server) SetTelephonyClient(client CallPlacer) {
	s.telephony = client
}

// SetRepository sets the database repository for call persistence
func (s *Server) SetRepository(repo *database.Repository) {
	s.repo = repo
}

// SetDatabaseHealth sets the database health checker
func (s *Server) SetDatabaseHealth(health HealthChecker) {
	s.dbHealth = health
}

// SetAMQPClient sets the AMQP client reference for health checks
func (s *Server) SetAMQPClient(client ConnectionChecker) {
	s.amqpClient = client
}

// SetAnalysisService sets the detection pipeline used on call completion
func (s *Server) SetAnalysisService(service *analysis.Service) {
	s.analysis = service
}

// SetTranscriptService sets the transcript accumulator
func (s *Server) SetTranscriptService(service *transcript.Service) {
	s.transcripts = service
}

// SetDetector sets the detector used for the stats endpoint
func (s *Server) SetDetector(det *detector.Detector) {
	s.detector = det
}

// SetScheduler sets the retry scheduler
func (s *Server) SetScheduler(sched *scheduler.Scheduler) {
	s.retries = sched
}

// SetEventHub sets the WebSocket hub for realtime event broadcasts
func (s *Server) SetEventHub(hub *EventHub) {
	s.hub = hub
}

// SetTwiMLOptions sets the options used to answer Twilio voice webhooks
func (s *Server) SetTwiMLOptions(opts telephony.TwiMLOptions) {
	s.twiml = opts
}

// NoteRetryAttempt records which retry attempt a newly placed call
// represents, so its own failure can be judged against the retry budget
func (s *Server) NoteRetryAttempt(callSID string, attempt int) {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()

	s.retryAttempts[callSID] = attempt
}

func (s *Server) retryAttempt(callSID string) int {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()

	return s.retryAttempts[callSID]
}

// Start starts the HTTP server in a goroutine
func (s *Server) Start() {
	s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")

	go func() {
		s.logger.Infof("HTTP server listening on port %d", s.config.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server failed")
		}
	}()

	// Verify that we can actually bind to the port
	go func() {
		time.Sleep(500 * time.Millisecond)

		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", s.config.Port), 2*time.Second)
		if err != nil {
			s.logger.WithError(err).Error("Could not connect to HTTP server")
		} else {
			s.logger.Info("HTTP server is running correctly")
			conn.Close()
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the server's root handler, used in tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// statusHandler handles the /status endpoint
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).String(),
		"version":    version.Version,
		"started_at": s.startTime.Format(time.RFC3339),
	}

	if s.retries != nil {
		status["pending_retries"] = s.retries.PendingCount()
	}
	if s.hub != nil {
		status["websocket_clients"] = s.hub.ClientCount()
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// ErrorResponse sends a standardized error response
func (s *Server) ErrorResponse(w http.ResponseWriter, err error) {
	errors.WriteError(w, err)
	s.logger.WithError(err).Warn("HTTP error response sent")
}
