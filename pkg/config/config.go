// Package config loads the Atlas server configuration from the
// environment, supplemented by an optional .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"atlas-server/pkg/errors"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the complete application configuration
type Config struct {
	HTTP      HTTPConfig      `json:"http"`
	Logging   LoggingConfig   `json:"logging"`
	Database  DatabaseConfig  `json:"database"`
	Messaging MessagingConfig `json:"messaging"`
	Twilio    TwilioConfig    `json:"twilio"`
	Detection DetectionConfig `json:"detection"`
	Retry     RetryConfig     `json:"retry"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port          int           `json:"port"`
	EnableMetrics bool          `json:"enable_metrics"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	OutputFile string `json:"output_file"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Enabled         bool          `json:"enabled"`
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Username        string        `json:"username"`
	Password        string        `json:"-"`
	Database        string        `json:"database"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	QueryTimeout    time.Duration `json:"query_timeout"`
}

// MessagingConfig holds AMQP messaging configuration
type MessagingConfig struct {
	AMQPUrl       string `json:"amqp_url"`
	AMQPQueueName string `json:"amqp_queue_name"`
}

// TwilioConfig holds the Twilio REST API credentials and call settings
type TwilioConfig struct {
	AccountSID  string        `json:"account_sid"`
	AuthToken   string        `json:"-"`
	FromNumber  string        `json:"from_number"`
	CallbackURL string        `json:"callback_url"`
	CallTimeout time.Duration `json:"call_timeout"`
	RecordCalls bool          `json:"record_calls"`
}

// DetectionConfig holds voicemail detection tuning parameters
type DetectionConfig struct {
	AMDConfidenceThreshold     float64 `json:"amd_confidence_threshold"`
	KeywordConfidenceThreshold float64 `json:"keyword_confidence_threshold"`
	MinSignalsRequired         int     `json:"min_signals_required"`
	EnableAggressiveDetection  bool    `json:"enable_aggressive_detection"`
}

// RetryConfig holds the no-answer retry schedule
type RetryConfig struct {
	Enabled         bool            `json:"enabled"`
	MaxRetries      int             `json:"max_retries"`
	RetryDelays     []time.Duration `json:"retry_delays"`
	NoAnswerTimeout time.Duration   `json:"no_answer_timeout"`
}

// Load loads the configuration from environment variables and .env files
func Load(logger *logrus.Logger) (*Config, error) {
	// Get current working directory
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	// Define possible locations for .env file
	possibleEnvFiles := []string{
		".env",                    // Current directory
		"../.env",                 // Parent directory
		filepath.Join(wd, ".env"), // Absolute path
	}

	// Try loading .env file from each possible location
	var loadedFrom string
	var loadErr error

	for _, envFile := range possibleEnvFiles {
		if _, statErr := os.Stat(envFile); statErr == nil {
			absPath, _ := filepath.Abs(envFile)
			logger.WithField("path", absPath).Debug("Attempting to load .env file")

			if loadErr = godotenv.Load(envFile); loadErr == nil {
				loadedFrom = absPath
				break
			}
		}
	}

	// If all attempts failed, try default Load() which uses working directory
	if loadedFrom == "" {
		if loadErr = godotenv.Load(); loadErr == nil {
			if _, statErr := os.Stat(".env"); statErr == nil {
				loadedFrom, _ = filepath.Abs(".env")
			}
		}
	}

	// Report results
	if loadedFrom != "" {
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        loadedFrom,
		}).Info("Successfully loaded .env file")
	} else {
		logger.WithField("working_dir", wd).Warn("No .env file found, using environment variables only")
	}

	config := &Config{}

	if err := loadHTTPConfig(logger, &config.HTTP); err != nil {
		return nil, errors.Wrap(err, "failed to load HTTP configuration")
	}

	if err := loadLoggingConfig(logger, &config.Logging); err != nil {
		return nil, errors.Wrap(err, "failed to load logging configuration")
	}

	if err := loadDatabaseConfig(logger, &config.Database); err != nil {
		return nil, errors.Wrap(err, "failed to load database configuration")
	}

	if err := loadMessagingConfig(logger, &config.Messaging); err != nil {
		return nil, errors.Wrap(err, "failed to load messaging configuration")
	}

	if err := loadTwilioConfig(logger, &config.Twilio); err != nil {
		return nil, errors.Wrap(err, "failed to load Twilio configuration")
	}

	if err := loadDetectionConfig(logger, &config.Detection); err != nil {
		return nil, errors.Wrap(err, "failed to load detection configuration")
	}

	if err := loadRetryConfig(logger, &config.Retry); err != nil {
		return nil, errors.Wrap(err, "failed to load retry configuration")
	}

	if err := validateConfig(logger, config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	logStartupConfig(logger, config)

	return config, nil
}

func loadHTTPConfig(logger *logrus.Logger, config *HTTPConfig) error {
	// Load HTTP port
	httpPortStr := getEnv("HTTP_PORT", "8080")
	httpPort, err := strconv.Atoi(httpPortStr)
	if err != nil || httpPort < 1 || httpPort > 65535 {
		logger.Warn("Invalid HTTP_PORT value, using default: 8080")
		config.Port = 8080
	} else {
		config.Port = httpPort
	}

	config.EnableMetrics = getEnvBool("HTTP_ENABLE_METRICS", true)
	config.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	config.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)

	return nil
}

func loadLoggingConfig(logger *logrus.Logger, config *LoggingConfig) error {
	config.Level = getEnv("LOG_LEVEL", "info")
	config.Format = getEnv("LOG_FORMAT", "json")
	config.OutputFile = getEnv("LOG_OUTPUT_FILE", "")

	return nil
}

func loadDatabaseConfig(logger *logrus.Logger, config *DatabaseConfig) error {
	config.Enabled = getEnvBool("DATABASE_ENABLED", false)
	config.Host = getEnv("DATABASE_HOST", "localhost")
	config.Port = getEnvInt("DATABASE_PORT", 3306)
	config.Username = getEnv("DATABASE_USERNAME", "atlas")
	config.Password = getEnv("DATABASE_PASSWORD", "")
	config.Database = getEnv("DATABASE_NAME", "atlas")
	config.MaxOpenConns = getEnvInt("DATABASE_MAX_OPEN_CONNS", 25)
	config.MaxIdleConns = getEnvInt("DATABASE_MAX_IDLE_CONNS", 5)
	config.ConnMaxLifetime = getEnvDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute)
	config.QueryTimeout = getEnvDuration("DATABASE_QUERY_TIMEOUT", 5*time.Second)

	if config.Enabled {
		logger.Info("Database persistence enabled")
	} else {
		logger.Debug("Database persistence disabled")
	}

	return nil
}

func loadMessagingConfig(logger *logrus.Logger, config *MessagingConfig) error {
	config.AMQPUrl = getEnv("AMQP_URL", "")
	config.AMQPQueueName = getEnv("AMQP_QUEUE_NAME", "atlas_detections")

	if config.AMQPUrl == "" {
		logger.Debug("AMQP_URL not set, detection event publishing disabled")
	}

	return nil
}

func loadTwilioConfig(logger *logrus.Logger, config *TwilioConfig) error {
	config.AccountSID = getEnv("TWILIO_ACCOUNT_SID", "")
	config.AuthToken = getEnv("TWILIO_AUTH_TOKEN", "")
	config.FromNumber = getEnv("TWILIO_FROM_NUMBER", "")
	config.CallbackURL = getEnv("TWILIO_CALLBACK_URL", "")
	config.CallTimeout = getEnvDuration("TWILIO_CALL_TIMEOUT", 30*time.Second)
	config.RecordCalls = getEnvBool("TWILIO_RECORD_CALLS", true)

	if config.AccountSID == "" {
		logger.Debug("TWILIO_ACCOUNT_SID not set, outbound calling disabled")
	}

	return nil
}

func loadDetectionConfig(logger *logrus.Logger, config *DetectionConfig) error {
	config.AMDConfidenceThreshold = getEnvFloat("DETECTION_AMD_CONFIDENCE_THRESHOLD", 0.85)
	config.KeywordConfidenceThreshold = getEnvFloat("DETECTION_KEYWORD_CONFIDENCE_THRESHOLD", 0.75)
	config.MinSignalsRequired = getEnvInt("DETECTION_MIN_SIGNALS_REQUIRED", 1)
	config.EnableAggressiveDetection = getEnvBool("DETECTION_ENABLE_AGGRESSIVE", false)

	return nil
}

func loadRetryConfig(logger *logrus.Logger, config *RetryConfig) error {
	config.Enabled = getEnvBool("RETRY_ENABLED", true)
	config.MaxRetries = getEnvInt("RETRY_MAX_RETRIES", 3)
	config.NoAnswerTimeout = getEnvDuration("RETRY_NO_ANSWER_TIMEOUT", 30*time.Second)

	delaysStr := getEnv("RETRY_DELAYS", "2m,5m,10m")
	delays, err := parseDurations(delaysStr, "RETRY_DELAYS")
	if err != nil {
		logger.WithError(err).Warn("Invalid RETRY_DELAYS value, using default: 2m,5m,10m")
		delays = []time.Duration{2 * time.Minute, 5 * time.Minute, 10 * time.Minute}
	}
	config.RetryDelays = delays

	return nil
}

func validateConfig(logger *logrus.Logger, config *Config) error {
	// Detection thresholds must be probabilities
	if config.Detection.AMDConfidenceThreshold < 0 || config.Detection.AMDConfidenceThreshold > 1 {
		return errors.New(fmt.Sprintf("invalid DETECTION_AMD_CONFIDENCE_THRESHOLD: %.2f is not in [0,1]", config.Detection.AMDConfidenceThreshold))
	}

	if config.Detection.KeywordConfidenceThreshold < 0 || config.Detection.KeywordConfidenceThreshold > 1 {
		return errors.New(fmt.Sprintf("invalid DETECTION_KEYWORD_CONFIDENCE_THRESHOLD: %.2f is not in [0,1]", config.Detection.KeywordConfidenceThreshold))
	}

	if config.Detection.MinSignalsRequired < 1 {
		return errors.New("invalid DETECTION_MIN_SIGNALS_REQUIRED: must be at least 1")
	}

	if config.Retry.MaxRetries < 0 {
		return errors.New("invalid RETRY_MAX_RETRIES: must not be negative")
	}

	if config.Retry.Enabled && len(config.Retry.RetryDelays) < config.Retry.MaxRetries {
		logger.WithFields(logrus.Fields{
			"max_retries": config.Retry.MaxRetries,
			"delays":      len(config.Retry.RetryDelays),
		}).Warn("Fewer retry delays than max retries, last delay will be reused")
	}

	// Validate database configuration if enabled
	if config.Database.Enabled {
		if config.Database.Host == "" {
			return errors.New("database enabled but DATABASE_HOST is empty")
		}
		if config.Database.Username == "" {
			return errors.New("database enabled but DATABASE_USERNAME is empty")
		}
	}

	// Validate Twilio configuration when credentials are provided
	if config.Twilio.AccountSID != "" {
		if config.Twilio.AuthToken == "" {
			return errors.New("TWILIO_ACCOUNT_SID set but TWILIO_AUTH_TOKEN is empty")
		}
		if config.Twilio.FromNumber == "" {
			return errors.New("TWILIO_ACCOUNT_SID set but TWILIO_FROM_NUMBER is empty")
		}
	}

	// Validate logging configuration
	if config.Logging.OutputFile != "" {
		f, err := os.OpenFile(config.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("cannot write to log file: %s", config.Logging.OutputFile))
		}
		f.Close()
	}

	return nil
}

// ApplyLogging applies the configuration to the logger
func (c *Config) ApplyLogging(logger *logrus.Logger) error {
	// Set log level
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}
	logger.SetLevel(level)

	// Set log format
	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	// Set log output
	if c.Logging.OutputFile != "" {
		f, err := os.OpenFile(c.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to open log file: %s", c.Logging.OutputFile))
		}
		logger.SetOutput(f)
	} else {
		logger.SetOutput(os.Stdout)
	}

	return nil
}

// logStartupConfig logs the effective configuration at startup
func logStartupConfig(logger *logrus.Logger, config *Config) {
	logger.WithFields(logrus.Fields{
		"http_port":        config.HTTP.Port,
		"metrics_enabled":  config.HTTP.EnableMetrics,
		"database_enabled": config.Database.Enabled,
		"amqp_configured":  config.Messaging.AMQPUrl != "",
		"twilio_enabled":   config.Twilio.AccountSID != "",
		"retry_enabled":    config.Retry.Enabled,
	}).Info("Configuration loaded")

	logger.WithFields(logrus.Fields{
		"amd_threshold":        config.Detection.AMDConfidenceThreshold,
		"keyword_threshold":    config.Detection.KeywordConfidenceThreshold,
		"min_signals_required": config.Detection.MinSignalsRequired,
		"aggressive_detection": config.Detection.EnableAggressiveDetection,
	}).Info("Detection configuration")
}

// DSN builds the MySQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

// Helper function to parse a comma-separated duration list
func parseDurations(durationsStr, envName string) ([]time.Duration, error) {
	durationsStr = strings.TrimSpace(durationsStr)
	if durationsStr == "" {
		return nil, nil
	}

	parts := strings.Split(durationsStr, ",")
	var durations []time.Duration

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("invalid duration in %s: %s", envName, part))
		}

		if d <= 0 {
			return nil, errors.New(fmt.Sprintf("duration out of range in %s: %s", envName, part))
		}

		durations = append(durations, d)
	}

	return durations, nil
}

// Helper function to get an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Helper function to get a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

// Helper function to get an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// Helper function to get a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

// getEnvFloat retrieves an environment variable and converts it to float64
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatValue
}
