// Package database provides MySQL persistence for calls, recordings,
// transcripts, and detection results.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

// MySQLConfig holds MySQL connection configuration
type MySQLConfig struct {
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// MySQLDatabase represents a MySQL database connection
type MySQLDatabase struct {
	db           *sql.DB
	config       MySQLConfig
	logger       *logrus.Logger
	queryTimeout time.Duration
}

// NewMySQLDatabase creates a new MySQL database connection
func NewMySQLDatabase(config MySQLConfig, logger *logrus.Logger) (*MySQLDatabase, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	timeout := config.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	mysql := &MySQLDatabase{
		db:           db,
		config:       config,
		logger:       logger,
		queryTimeout: timeout,
	}

	logger.WithFields(logrus.Fields{
		"host":     config.Host,
		"port":     config.Port,
		"database": config.Database,
	}).Info("Connected to MySQL database")

	return mysql, nil
}

// Close closes the database connection
func (m *MySQLDatabase) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Health checks database health
func (m *MySQLDatabase) Health() error {
	ctx, cancel := m.getContext()
	defer cancel()

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// Migrate runs database migrations
func (m *MySQLDatabase) Migrate() error {
	migrations := []string{
		createCallsTable,
		createRecordingsTable,
		createTranscriptsTable,
		createDetectionsTable,
	}

	for i, migration := range migrations {
		m.logger.WithField("migration", i+1).Debug("Running migration")

		if _, err := m.db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	m.logger.Info("Database migrations completed successfully")
	return nil
}

// getContext returns a context with the configured query timeout
func (m *MySQLDatabase) getContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.queryTimeout)
}

// Database schema definitions
const createCallsTable = `
CREATE TABLE IF NOT EXISTS calls (
    id VARCHAR(36) PRIMARY KEY,
    call_sid VARCHAR(64) UNIQUE NOT NULL,
    to_number VARCHAR(32) NOT NULL,
    from_number VARCHAR(32) NOT NULL,
    status VARCHAR(32) NOT NULL DEFAULT 'initiated',
    answered_by VARCHAR(32) NULL,
    duration INT NULL,
    retry_count INT NOT NULL DEFAULT 0,
    parent_call_sid VARCHAR(64) NULL,
    started_at TIMESTAMP NULL,
    ended_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    INDEX idx_call_sid (call_sid),
    INDEX idx_status (status),
    INDEX idx_to_number (to_number),
    INDEX idx_created_at (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

const createRecordingsTable = `
CREATE TABLE IF NOT EXISTS recordings (
    id VARCHAR(36) PRIMARY KEY,
    recording_sid VARCHAR(64) UNIQUE NOT NULL,
    call_sid VARCHAR(64) NOT NULL,
    url VARCHAR(512) NOT NULL,
    status VARCHAR(32) NOT NULL,
    duration INT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_call_sid (call_sid),
    INDEX idx_recording_sid (recording_sid)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

const createTranscriptsTable = `
CREATE TABLE IF NOT EXISTS transcripts (
    id VARCHAR(36) PRIMARY KEY,
    call_sid VARCHAR(64) NOT NULL,
    speaker VARCHAR(64) NULL,
    text TEXT NOT NULL,
    confidence DECIMAL(4,3) NULL,
    start_offset DECIMAL(8,3) NOT NULL DEFAULT 0,
    is_final BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_call_sid (call_sid),
    INDEX idx_start_offset (start_offset),
    FULLTEXT(text)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

const createDetectionsTable = `
CREATE TABLE IF NOT EXISTS detections (
    id VARCHAR(36) PRIMARY KEY,
    call_sid VARCHAR(64) UNIQUE NOT NULL,
    is_voicemail BOOLEAN NOT NULL,
    confidence DECIMAL(4,3) NOT NULL,
    detection_method VARCHAR(32) NOT NULL,
    signal_count INT NOT NULL DEFAULT 0,
    signals JSON NULL,
    metadata JSON NULL,
    detected_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_call_sid (call_sid),
    INDEX idx_is_voicemail (is_voicemail),
    INDEX idx_detection_method (detection_method)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`
