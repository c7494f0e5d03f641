package database

import (
	"database/sql"
	"fmt"
	"time"

	"atlas-server/pkg/errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Repository provides database operations
type Repository struct {
	db     *MySQLDatabase
	logger *logrus.Logger
}

// NewRepository creates a new repository
func NewRepository(db *MySQLDatabase, logger *logrus.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Call operations

// CreateCall creates a new call record
func (r *Repository) CreateCall(call *Call) error {
	ctx, cancel := r.db.getContext()
	defer cancel()

	call.ID = uuid.New().String()
	call.CreatedAt = time.Now()
	call.UpdatedAt = time.Now()

	query := `
		INSERT INTO calls (
			id, call_sid, to_number, from_number, status, answered_by,
			duration, retry_count, parent_call_sid, started_at, ended_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.db.ExecContext(ctx, query,
		call.ID, call.CallSID, call.ToNumber, call.FromNumber, call.Status,
		call.AnsweredBy, call.Duration, call.RetryCount, call.ParentCallSID,
		call.StartedAt, call.EndedAt, call.CreatedAt, call.UpdatedAt,
	)

	if err != nil {
		r.logger.WithError(err).Error("Failed to create call")
		return fmt.Errorf("failed to create call: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"call_sid": call.CallSID,
		"to":       call.ToNumber,
		"status":   call.Status,
	}).Info("Call record created")

	return nil
}

// GetCallBySID retrieves a call by its provider SID
func (r *Repository) GetCallBySID(callSID string) (*Call, error) {
	ctx, cancel := r.db.getContext()
	defer cancel()

	query := `
		SELECT id, call_sid, to_number, from_number, status, answered_by,
			   duration, retry_count, parent_call_sid, started_at, ended_at,
			   created_at, updated_at
		FROM calls WHERE call_sid = ?
	`

	call := &Call{}
	err := r.db.db.QueryRowContext(ctx, query, callSID).Scan(
		&call.ID, &call.CallSID, &call.ToNumber, &call.FromNumber,
		&call.Status, &call.AnsweredBy, &call.Duration, &call.RetryCount,
		&call.ParentCallSID, &call.StartedAt, &call.EndedAt,
		&call.CreatedAt, &call.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewCallNotFound(callSID)
		}
		r.logger.WithError(err).WithField("call_sid", callSID).Error("Failed to get call")
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	return call, nil
}

// UpdateCallStatus updates a call's status and optional AMD verdict
func (r *Repository) UpdateCallStatus(callSID, status, answeredBy string, duration int) error {
	ctx, cancel := r.db.getContext()
	defer cancel()

	query := `
		UPDATE calls SET
			status = ?,
			answered_by = COALESCE(NULLIF(?, ''), answered_by),
			duration = COALESCE(NULLIF(?, 0), duration),
			updated_at = ?
		WHERE call_sid = ?
	`

	result, err := r.db.db.ExecContext(ctx, query, status, answeredBy, duration, time.Now(), callSID)
	if err != nil {
		r.logger.WithError(err).WithField("call_sid", callSID).Error("Failed to update call status")
		return fmt.Errorf("failed to update call status: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NewCallNotFound(callSID)
	}

	return nil
}

// MarkCallStarted records the answer time of a call
func (r *Repository) MarkCallStarted(callSID string, startedAt time.Time) error {
	ctx, cancel := r.db.getContext()
	defer cancel()

	query := `UPDATE calls SET started_at = ?, updated_at = ? WHERE call_sid = ?`

	_, err := r.db.db.ExecContext(ctx, query, startedAt, time.Now(), callSID)
	if err != nil {
		return fmt.Errorf("failed to mark call started: %w", err)
	}

	return nil
}

// MarkCallEnded records the end time of a call
func (r *Repository) MarkCallEnded(callSID string, endedAt time.Time) error {
	ctx, cancel := r.db.getContext()
	defer cancel()

	query := `UPDATE calls SET ended_at = ?, updated_at = ? WHERE call_sid = ?`

	_, err := r.db.db.ExecContext(ctx, query, endedAt, time.Now(), callSID)
	if err != nil {
		return fmt.Errorf("failed to mark call ended: %w", err)
	}

	return nil
}

// IncrementRetryCount bumps the retry counter and returns the new value
func (r *Repository) IncrementRetryCount(callSID string) (int, error) {
	ctx, cancel := r.db.getContext()
	defer cancel()

	query := `UPDATE calls SET retry_count = retry_count + 1, updated_at = ? WHERE call_sid = ?`

	result, err := r.db.db.ExecContext(ctx, query, time.Now(), callSID)
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry count: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return 0, errors.NewCallNotFound(callSID)
	}

	var count int
	err = r.db.db.QueryRowContext(ctx, `SELECT retry_count FROM calls WHERE call_sid = ?`, callSID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to read retry count: %w", err)
	}

	return count, nil
}

// Recording operations

// SaveRecording persists a recording reference
func (r *Repository) SaveRecording(recording *Recording) error {
	ctx, cancel := r.db.getContext()
	defer cancel()

	recording.ID = uuid.New().String()
	recording.CreatedAt = time.Now()

	query := `
		INSERT INTO recordings (id, recording_sid, call_sid, url, status, duration, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), url = VALUES(url), duration = VALUES(duration)
	`

	_, err := r.db.db.ExecContext(ctx, query,
		recording.ID, recording.RecordingSID, recording.CallSID,
		recording.URL, recording.Status, recording.Duration, recording.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).WithField("call_sid", recording.CallSID).Error("Failed to save recording")
		return fmt.Errorf("failed to save recording: %w", err)
	}

	return nil
}

// Transcript operations

// SaveTranscript persists one transcript utterance
func (r *Repository) SaveTranscript(transcript *Transcript) error {
	ctx, cancel := r.db.getContext()
	defer cancel()

	transcript.ID = uuid.New().String()
	transcript.CreatedAt = time.Now()

	query := `
		INSERT INTO transcripts (id, call_sid, speaker, text, confidence, start_offset, is_final, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.db.ExecContext(ctx, query,
		transcript.ID, transcript.CallSID, transcript.Speaker, transcript.Text,
		transcript.Confidence, transcript.StartOffset, transcript.IsFinal,
		transcript.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).WithField("call_sid", transcript.CallSID).Error("Failed to save transcript")
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	return nil
}

// ListTranscripts returns all utterances for a call ordered by start offset
func (r *Repository) ListTranscripts(callSID string) ([]*Transcript, error) {
	ctx, cancel := r.db.getContext()
	defer cancel()

	query := `
		SELECT id, call_sid, speaker, text, confidence, start_offset, is_final, created_at
		FROM transcripts WHERE call_sid = ?
		ORDER BY start_offset ASC
	`

	rows, err := r.db.db.QueryContext(ctx, query, callSID)
	if err != nil {
		r.logger.WithError(err).WithField("call_sid", callSID).Error("Failed to list transcripts")
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer rows.Close()

	var transcripts []*Transcript
	for rows.Next() {
		t := &Transcript{}
		if err := rows.Scan(
			&t.ID, &t.CallSID, &t.Speaker, &t.Text, &t.Confidence,
			&t.StartOffset, &t.IsFinal, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}
		transcripts = append(transcripts, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcripts: %w", err)
	}

	return transcripts, nil
}

// Detection operations

// SaveDetection persists a detection result, replacing any earlier result
// for the same call
func (r *Repository) SaveDetection(detection *Detection) error {
	ctx, cancel := r.db.getContext()
	defer cancel()

	detection.ID = uuid.New().String()
	detection.CreatedAt = time.Now()

	query := `
		INSERT INTO detections (
			id, call_sid, is_voicemail, confidence, detection_method,
			signal_count, signals, metadata, detected_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			is_voicemail = VALUES(is_voicemail),
			confidence = VALUES(confidence),
			detection_method = VALUES(detection_method),
			signal_count = VALUES(signal_count),
			signals = VALUES(signals),
			metadata = VALUES(metadata),
			detected_at = VALUES(detected_at)
	`

	_, err := r.db.db.ExecContext(ctx, query,
		detection.ID, detection.CallSID, detection.IsVoicemail,
		detection.Confidence, detection.DetectionMethod, detection.SignalCount,
		nullableJSON(detection.Signals), nullableJSON(detection.Metadata),
		detection.DetectedAt, detection.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).WithField("call_sid", detection.CallSID).Error("Failed to save detection")
		return fmt.Errorf("failed to save detection: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"call_sid":     detection.CallSID,
		"is_voicemail": detection.IsVoicemail,
		"confidence":   detection.Confidence,
	}).Debug("Detection result saved")

	return nil
}

// GetDetection retrieves the detection result for a call
func (r *Repository) GetDetection(callSID string) (*Detection, error) {
	ctx, cancel := r.db.getContext()
	defer cancel()

	query := `
		SELECT id, call_sid, is_voicemail, confidence, detection_method,
			   signal_count, COALESCE(signals, ''), COALESCE(metadata, ''),
			   detected_at, created_at
		FROM detections WHERE call_sid = ?
	`

	detection := &Detection{}
	err := r.db.db.QueryRowContext(ctx, query, callSID).Scan(
		&detection.ID, &detection.CallSID, &detection.IsVoicemail,
		&detection.Confidence, &detection.DetectionMethod,
		&detection.SignalCount, &detection.Signals, &detection.Metadata,
		&detection.DetectedAt, &detection.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrap(errors.ErrDetectionNotFound, "no detection for call").WithField("call_sid", callSID)
		}
		return nil, fmt.Errorf("failed to get detection: %w", err)
	}

	return detection, nil
}

// nullableJSON maps an empty string to NULL for JSON columns
func nullableJSON(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
