package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"atlas-server/pkg/analysis"
	"atlas-server/pkg/config"
	"atlas-server/pkg/database"
	"atlas-server/pkg/detector"
	"atlas-server/pkg/errors"
	http_server "atlas-server/pkg/http"
	"atlas-server/pkg/messaging"
	"atlas-server/pkg/metrics"
	"atlas-server/pkg/scheduler"
	"atlas-server/pkg/telephony"
	"atlas-server/pkg/transcript"
)

var (
	logger     = logrus.New()
	appConfig  *config.Config
	amqpClient *messaging.AMQPClient
	httpServer *http_server.Server

	// Context for graceful shutdown
	rootCtx    context.Context
	rootCancel context.CancelFunc

	dbConn *database.MySQLDatabase
	dbRepo *database.Repository

	telephonyClient *telephony.Client
	voicemailDet    *detector.Detector
	transcriptSvc   *transcript.Service
	analysisSvc     *analysis.Service
	retryScheduler  *scheduler.Scheduler
	wsHub           *http_server.EventHub
)

func main() {
	// Set up logger with basic configuration (will be updated after config is loaded)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)

	rootCtx, rootCancel = context.WithCancel(context.Background())
	defer rootCancel()

	if err := initialize(); err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}

	httpServer.Start()
	logger.Info("HTTP server started")

	// Graceful shutdown handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("Received shutdown signal, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Cancel the root context to signal shutdown to all goroutines
	rootCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Error shutting down HTTP server")
		} else {
			logger.Info("HTTP server shut down successfully")
		}
	}

	if retryScheduler != nil {
		retryScheduler.Stop()
		logger.Info("Retry scheduler stopped")
	}

	if amqpClient != nil {
		amqpClient.Disconnect()
		logger.Info("AMQP client disconnected")
	}

	if wsHub != nil {
		// The hub shuts down through context cancellation; give
		// connections a moment to close
		time.Sleep(500 * time.Millisecond)
		logger.Info("WebSocket hub shut down")
	}

	if dbConn != nil {
		if err := dbConn.Close(); err != nil {
			logger.WithError(err).Error("Error closing database connection")
		} else {
			logger.Info("Database connection closed")
		}
	}

	logger.Info("Application shut down gracefully")
}

// initialize loads configuration and initializes all components
func initialize() error {
	var err error

	appConfig, err = config.Load(logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := appConfig.ApplyLogging(logger); err != nil {
		return fmt.Errorf("failed to apply logging configuration: %w", err)
	}
	logger.WithField("level", logger.GetLevel().String()).Info("Log level set")

	metrics.StartMetrics(logger, appConfig.HTTP.EnableMetrics)

	if appConfig.Database.Enabled {
		dbConn, err = database.NewMySQLDatabase(database.MySQLConfig{
			Host:            appConfig.Database.Host,
			Port:            appConfig.Database.Port,
			Database:        appConfig.Database.Database,
			Username:        appConfig.Database.Username,
			Password:        appConfig.Database.Password,
			MaxOpenConns:    appConfig.Database.MaxOpenConns,
			MaxIdleConns:    appConfig.Database.MaxIdleConns,
			ConnMaxLifetime: appConfig.Database.ConnMaxLifetime,
			QueryTimeout:    appConfig.Database.QueryTimeout,
		}, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to database, continuing without persistence")
			dbConn = nil
		} else {
			if err := dbConn.Migrate(); err != nil {
				return fmt.Errorf("failed to run database migrations: %w", err)
			}
			dbRepo = database.NewRepository(dbConn, logger)
			logger.Info("Database connection established")
		}
	} else {
		logger.Debug("Database persistence disabled by configuration")
	}

	initializeAMQP()

	// Core detection pipeline
	voicemailDet = detector.New(logger, detector.Config{
		AMDConfidenceThreshold:     appConfig.Detection.AMDConfidenceThreshold,
		KeywordConfidenceThreshold: appConfig.Detection.KeywordConfidenceThreshold,
		MinSignalsRequired:         appConfig.Detection.MinSignalsRequired,
		EnableAggressiveDetection:  appConfig.Detection.EnableAggressiveDetection,
	}, nil)

	transcriptSvc = transcript.NewService(logger)

	var detectionStore analysis.DetectionStore
	var transcriptStore analysis.TranscriptStore
	if dbRepo != nil {
		detectionStore = dbRepo
		transcriptStore = dbRepo
	}

	var detectionPublisher analysis.EventPublisher
	var transcriptPublisher analysis.TranscriptPublisher
	if amqpClient != nil {
		detectionPublisher = amqpClient
		transcriptPublisher = amqpClient
	}

	analysisSvc = analysis.NewService(logger, voicemailDet, transcriptSvc, detectionStore, detectionPublisher)
	if dbRepo != nil {
		analysisSvc.SetTranscriptLoader(dbRepo)
	}
	transcriptSvc.AddListener(analysis.NewTranscriptBridge(logger, transcriptStore, transcriptPublisher))

	// Telephony client is optional so the service can run in analysis-only
	// mode without provider credentials
	if appConfig.Twilio.AccountSID != "" {
		telephonyClient, err = telephony.NewClient(logger, telephony.ClientConfig{
			AccountSID:  appConfig.Twilio.AccountSID,
			AuthToken:   appConfig.Twilio.AuthToken,
			FromNumber:  appConfig.Twilio.FromNumber,
			CallbackURL: appConfig.Twilio.CallbackURL,
			CallTimeout: appConfig.Twilio.CallTimeout,
			RecordCalls: appConfig.Twilio.RecordCalls,
		})
		if err != nil {
			return fmt.Errorf("failed to create telephony client: %w", err)
		}
		logger.Info("Telephony client initialized")
	} else {
		logger.Warn("Twilio credentials not configured, outbound calling disabled")
	}

	// Initialize HTTP server
	httpServer = http_server.NewServer(logger, &http_server.Config{
		Port:          appConfig.HTTP.Port,
		EnableMetrics: appConfig.HTTP.EnableMetrics,
		ReadTimeout:   appConfig.HTTP.ReadTimeout,
		WriteTimeout:  appConfig.HTTP.WriteTimeout,
	})

	if appConfig.Retry.Enabled {
		retryScheduler = scheduler.New(logger, scheduler.Config{
			MaxRetries: appConfig.Retry.MaxRetries,
			Delays:     appConfig.Retry.RetryDelays,
		}, placeRetryCall)
		httpServer.SetScheduler(retryScheduler)
		logger.WithFields(logrus.Fields{
			"max_retries": appConfig.Retry.MaxRetries,
			"delays":      appConfig.Retry.RetryDelays,
		}).Info("Retry scheduler initialized")
	} else {
		logger.Debug("Call retries disabled by configuration")
	}

	wsHub = http_server.NewEventHub(logger)
	go wsHub.Run(rootCtx)
	transcriptSvc.AddListener(wsHub)

	if telephonyClient != nil {
		httpServer.SetTelephonyClient(telephonyClient)
	}
	if dbRepo != nil {
		httpServer.SetRepository(dbRepo)
	}
	if dbConn != nil {
		httpServer.SetDatabaseHealth(dbConn)
	}
	if amqpClient != nil {
		httpServer.SetAMQPClient(amqpClient)
	}
	httpServer.SetDetector(voicemailDet)
	httpServer.SetTranscriptService(transcriptSvc)
	httpServer.SetAnalysisService(analysisSvc)
	httpServer.SetEventHub(wsHub)
	httpServer.SetTwiMLOptions(telephony.TwiMLOptions{
		RecordCall:  appConfig.Twilio.RecordCalls,
		CallbackURL: appConfig.Twilio.CallbackURL,
	})

	return nil
}

// initializeAMQP connects the AMQP client in a goroutine with a timeout
// so broker issues do not block server startup
func initializeAMQP() {
	if appConfig.Messaging.AMQPUrl == "" || appConfig.Messaging.AMQPQueueName == "" {
		logger.Warn("AMQP not configured, detection events will not be sent to message queue")
		return
	}

	logger.Info("Initializing AMQP client")

	connectChan := make(chan error, 1)
	client := messaging.NewAMQPClient(logger, messaging.AMQPConfig{
		URL:       appConfig.Messaging.AMQPUrl,
		QueueName: appConfig.Messaging.AMQPQueueName,
	})

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.WithField("recover", r).Error("Recovered from panic in AMQP initialization")
				connectChan <- fmt.Errorf("panic during AMQP initialization: %v", r)
			}
		}()
		connectChan <- client.Connect()
	}()

	select {
	case err := <-connectChan:
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to AMQP server, continuing without AMQP")
		} else {
			amqpClient = client
			logger.Info("AMQP client initialized successfully")
		}
	case <-time.After(5 * time.Second):
		logger.Warn("AMQP initialization timed out after 5 seconds, continuing without AMQP")
	}
}

// placeRetryCall re-dials a number when the retry scheduler fires
func placeRetryCall(toNumber, parentCallSID string, attempt int) error {
	if telephonyClient == nil {
		return errors.Wrap(errors.ErrUnavailable, "telephony client not configured")
	}

	ctx, cancel := context.WithTimeout(rootCtx, 30*time.Second)
	defer cancel()

	callID := fmt.Sprintf("retry-%s-%d", parentCallSID, attempt)
	result, err := telephonyClient.PlaceCall(ctx, toNumber, callID)
	if err != nil {
		metrics.CallsPlaced.WithLabelValues("failure").Inc()
		return err
	}

	metrics.CallsPlaced.WithLabelValues("success").Inc()
	metrics.ActiveCalls.Inc()

	// Let the webhook handler judge this call against the retry budget
	httpServer.NoteRetryAttempt(result.CallSID, attempt)

	if dbRepo != nil {
		call := &database.Call{
			ID:         callID,
			CallSID:    result.CallSID,
			ToNumber:   result.To,
			FromNumber: result.From,
			Status:     result.Status,
			RetryCount: attempt,
		}
		call.ParentCallSID.String = parentCallSID
		call.ParentCallSID.Valid = true
		if err := dbRepo.CreateCall(call); err != nil {
			logger.WithError(err).WithField("call_sid", result.CallSID).Error("Failed to persist retry call record")
		}
	}

	logger.WithFields(logrus.Fields{
		"call_sid":        result.CallSID,
		"parent_call_sid": parentCallSID,
		"attempt":         attempt,
		"to":              toNumber,
	}).Info("Retry call placed")

	return nil
}
