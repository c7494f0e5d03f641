package telephony

import (
	"net/http"
	"strconv"

	"atlas-server/pkg/errors"
)

// Call status values as stored and reported by this server
const (
	StatusInitiated  = "initiated"
	StatusRinging    = "ringing"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusNoAnswer   = "no-answer"
	StatusBusy       = "busy"
)

// statusMap normalizes Twilio call status values to ours. Twilio reports
// "queued" before dialing starts, which we surface as initiated.
var statusMap = map[string]string{
	"queued":      StatusInitiated,
	"initiated":   StatusInitiated,
	"ringing":     StatusRinging,
	"in-progress": StatusInProgress,
	"completed":   StatusCompleted,
	"failed":      StatusFailed,
	"no-answer":   StatusNoAnswer,
	"busy":        StatusBusy,
}

// NormalizeStatus maps a Twilio call status to the internal status value.
// Unknown values pass through unchanged.
func NormalizeStatus(twilioStatus string) string {
	if mapped, ok := statusMap[twilioStatus]; ok {
		return mapped
	}
	return twilioStatus
}

// IsFinalStatus reports whether a call status is terminal
func IsFinalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusNoAnswer, StatusBusy:
		return true
	}
	return false
}

// StatusWebhook is a parsed Twilio call status callback
type StatusWebhook struct {
	CallSID      string
	CallStatus   string
	To           string
	From         string
	Direction    string
	AnsweredBy   string
	CallDuration int
}

// RecordingWebhook is a parsed Twilio recording status callback
type RecordingWebhook struct {
	RecordingSID      string
	RecordingURL      string
	RecordingStatus   string
	RecordingDuration int
	CallSID           string
}

// ParseStatusWebhook parses a Twilio call status callback form
func ParseStatusWebhook(r *http.Request) (*StatusWebhook, error) {
	if err := r.ParseForm(); err != nil {
		return nil, errors.NewInvalidWebhook("malformed webhook form")
	}

	callSID := r.PostFormValue("CallSid")
	if callSID == "" {
		return nil, errors.NewInvalidWebhook("missing CallSid")
	}

	callStatus := r.PostFormValue("CallStatus")
	if callStatus == "" {
		return nil, errors.NewInvalidWebhook("missing CallStatus")
	}

	duration := 0
	if v := r.PostFormValue("CallDuration"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			duration = parsed
		}
	}

	return &StatusWebhook{
		CallSID:      callSID,
		CallStatus:   NormalizeStatus(callStatus),
		To:           r.PostFormValue("To"),
		From:         r.PostFormValue("From"),
		Direction:    r.PostFormValue("Direction"),
		AnsweredBy:   r.PostFormValue("AnsweredBy"),
		CallDuration: duration,
	}, nil
}

// ParseRecordingWebhook parses a Twilio recording status callback form
func ParseRecordingWebhook(r *http.Request) (*RecordingWebhook, error) {
	if err := r.ParseForm(); err != nil {
		return nil, errors.NewInvalidWebhook("malformed webhook form")
	}

	recordingSID := r.PostFormValue("RecordingSid")
	if recordingSID == "" {
		return nil, errors.NewInvalidWebhook("missing RecordingSid")
	}

	callSID := r.PostFormValue("CallSid")
	if callSID == "" {
		return nil, errors.NewInvalidWebhook("missing CallSid")
	}

	duration := 0
	if v := r.PostFormValue("RecordingDuration"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			duration = parsed
		}
	}

	status := r.PostFormValue("RecordingStatus")
	if status == "" {
		status = "completed"
	}

	return &RecordingWebhook{
		RecordingSID:      recordingSID,
		RecordingURL:      r.PostFormValue("RecordingUrl"),
		RecordingStatus:   status,
		RecordingDuration: duration,
		CallSID:           callSID,
	}, nil
}
