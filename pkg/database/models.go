package database

import (
	"database/sql"
	"time"
)

// Call represents an outbound call record
type Call struct {
	ID            string         `json:"id"`
	CallSID       string         `json:"call_sid"`
	ToNumber      string         `json:"to_number"`
	FromNumber    string         `json:"from_number"`
	Status        string         `json:"status"`
	AnsweredBy    sql.NullString `json:"answered_by,omitempty"`
	Duration      sql.NullInt64  `json:"duration,omitempty"`
	RetryCount    int            `json:"retry_count"`
	ParentCallSID sql.NullString `json:"parent_call_sid,omitempty"`
	StartedAt     sql.NullTime   `json:"started_at,omitempty"`
	EndedAt       sql.NullTime   `json:"ended_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Recording represents a call recording record
type Recording struct {
	ID           string        `json:"id"`
	RecordingSID string        `json:"recording_sid"`
	CallSID      string        `json:"call_sid"`
	URL          string        `json:"url"`
	Status       string        `json:"status"`
	Duration     sql.NullInt64 `json:"duration,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Transcript represents one transcript utterance for a call
type Transcript struct {
	ID          string    `json:"id"`
	CallSID     string    `json:"call_sid"`
	Speaker     string    `json:"speaker"`
	Text        string    `json:"text"`
	Confidence  float64   `json:"confidence"`
	StartOffset float64   `json:"start_offset"`
	IsFinal     bool      `json:"is_final"`
	CreatedAt   time.Time `json:"created_at"`
}

// Detection represents a stored voicemail detection result
type Detection struct {
	ID              string    `json:"id"`
	CallSID         string    `json:"call_sid"`
	IsVoicemail     bool      `json:"is_voicemail"`
	Confidence      float64   `json:"confidence"`
	DetectionMethod string    `json:"detection_method"`
	SignalCount     int       `json:"signal_count"`
	Signals         string    `json:"signals,omitempty"`
	Metadata        string    `json:"metadata,omitempty"`
	DetectedAt      time.Time `json:"detected_at"`
	CreatedAt       time.Time `json:"created_at"`
}
