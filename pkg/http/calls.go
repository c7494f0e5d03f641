package http

import (
	"encoding/json"
	"net/http"
	"regexp"

	"atlas-server/pkg/database"
	"atlas-server/pkg/detector"
	"atlas-server/pkg/errors"
	"atlas-server/pkg/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// phoneNumberPattern accepts E.164 numbers, optionally without the plus
var phoneNumberPattern = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)

// PlaceCallRequest is the body for POST /calls
type PlaceCallRequest struct {
	ToNumber string                 `json:"to_number"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// PlaceCallResponse is returned when a call is placed
type PlaceCallResponse struct {
	CallSID string `json:"call_sid"`
	Status  string `json:"status"`
	To      string `json:"to"`
	From    string `json:"from"`
}

// placeCallHandler places an outbound call through the telephony provider
func (s *Server) placeCallHandler(w http.ResponseWriter, r *http.Request) {
	if s.telephony == nil {
		s.ErrorResponse(w, errors.Wrap(errors.ErrUnavailable, "telephony client not configured"))
		return
	}

	var req PlaceCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.ErrorResponse(w, errors.NewInvalidInput("invalid request body"))
		return
	}

	if !phoneNumberPattern.MatchString(req.ToNumber) {
		s.ErrorResponse(w, errors.Wrap(errors.ErrInvalidPhoneNumber, "destination number must be in E.164 format").
			WithField("to_number", req.ToNumber).
			WithCode("INVALID_PHONE_NUMBER"))
		return
	}

	callID := uuid.New().String()
	result, err := s.telephony.PlaceCall(r.Context(), req.ToNumber, callID)
	if err != nil {
		metrics.CallsPlaced.WithLabelValues("failure").Inc()
		s.ErrorResponse(w, err)
		return
	}

	metrics.CallsPlaced.WithLabelValues("success").Inc()
	metrics.ActiveCalls.Inc()

	if s.repo != nil {
		call := &database.Call{
			ID:         callID,
			CallSID:    result.CallSID,
			ToNumber:   result.To,
			FromNumber: result.From,
			Status:     result.Status,
		}
		if err := s.repo.CreateCall(call); err != nil {
			s.logger.WithError(err).WithField("call_sid", result.CallSID).Error("Failed to persist call record")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"call_sid": result.CallSID,
		"to":       result.To,
		"status":   result.Status,
	}).Info("Outbound call placed")

	s.writeJSON(w, http.StatusCreated, PlaceCallResponse{
		CallSID: result.CallSID,
		Status:  result.Status,
		To:      result.To,
		From:    result.From,
	})
}

// getCallHandler returns the stored record for a call
func (s *Server) getCallHandler(w http.ResponseWriter, r *http.Request) {
	callSID := r.PathValue("call_sid")

	if s.repo == nil {
		s.ErrorResponse(w, errors.Wrap(errors.ErrUnavailable, "call storage not configured"))
		return
	}

	call, err := s.repo.GetCallBySID(callSID)
	if err != nil {
		s.ErrorResponse(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, call)
}

// hangupCallHandler terminates an in-progress call
func (s *Server) hangupCallHandler(w http.ResponseWriter, r *http.Request) {
	callSID := r.PathValue("call_sid")

	if s.telephony == nil {
		s.ErrorResponse(w, errors.Wrap(errors.ErrUnavailable, "telephony client not configured"))
		return
	}

	if err := s.telephony.HangupCall(r.Context(), callSID); err != nil {
		s.ErrorResponse(w, err)
		return
	}

	s.logger.WithField("call_sid", callSID).Info("Call hangup requested")
	s.writeJSON(w, http.StatusOK, map[string]string{
		"call_sid": callSID,
		"status":   "completed",
	})
}

// getDetectionHandler returns the detection result for a call, preferring
// the in-memory result and falling back to storage
func (s *Server) getDetectionHandler(w http.ResponseWriter, r *http.Request) {
	callSID := r.PathValue("call_sid")

	if s.analysis != nil {
		if result, ok := s.analysis.Result(callSID); ok {
			s.writeJSON(w, http.StatusOK, result)
			return
		}
	}

	if s.repo != nil {
		detection, err := s.repo.GetDetection(callSID)
		if err != nil {
			s.ErrorResponse(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, detection)
		return
	}

	s.ErrorResponse(w, errors.Wrap(errors.ErrDetectionNotFound, "no detection result for call").
		WithField("call_sid", callSID).
		WithCode("DETECTION_NOT_FOUND"))
}

// detectionStatsHandler returns aggregate detection statistics
func (s *Server) detectionStatsHandler(w http.ResponseWriter, r *http.Request) {
	if s.detector == nil {
		s.ErrorResponse(w, errors.Wrap(errors.ErrUnavailable, "detector not configured"))
		return
	}

	s.writeJSON(w, http.StatusOK, s.detector.Stats().Snapshot())
}

// resetDetectionStatsHandler clears the aggregate detection counters
func (s *Server) resetDetectionStatsHandler(w http.ResponseWriter, r *http.Request) {
	if s.detector == nil {
		s.ErrorResponse(w, errors.Wrap(errors.ErrUnavailable, "detector not configured"))
		return
	}

	s.detector.Stats().Reset()
	s.logger.Info("Detection statistics reset")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// analyzeCallHandler runs (or reruns) voicemail detection for a call on
// demand, using whatever is known about it
func (s *Server) analyzeCallHandler(w http.ResponseWriter, r *http.Request) {
	callSID := r.PathValue("call_sid")

	if s.analysis == nil {
		s.ErrorResponse(w, errors.Wrap(errors.ErrUnavailable, "analysis service not configured"))
		return
	}

	answeredBy := ""
	callDuration := 0
	if s.repo != nil {
		call, err := s.repo.GetCallBySID(callSID)
		if err != nil {
			s.ErrorResponse(w, err)
			return
		}
		if call.AnsweredBy.Valid {
			answeredBy = call.AnsweredBy.String
		}
		if call.Duration.Valid {
			callDuration = int(call.Duration.Int64)
		}
	}

	result := s.analysis.AnalyzeCall(callSID, answeredBy, callDuration, nil, nil)
	if s.hub != nil {
		s.hub.BroadcastDetection(result)
	}

	s.writeJSON(w, http.StatusOK, result)
}

// IngestTranscriptRequest is the body for POST /api/calls/{call_sid}/transcripts
type IngestTranscriptRequest struct {
	Speaker     string  `json:"speaker"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	StartOffset float64 `json:"start_offset"`
	IsFinal     bool    `json:"is_final"`
}

// ingestTranscriptHandler accepts an utterance from an external
// transcription source and feeds it into the transcript pipeline
func (s *Server) ingestTranscriptHandler(w http.ResponseWriter, r *http.Request) {
	callSID := r.PathValue("call_sid")

	if s.transcripts == nil {
		s.ErrorResponse(w, errors.Wrap(errors.ErrUnavailable, "transcript service not configured"))
		return
	}

	var req IngestTranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.ErrorResponse(w, errors.NewInvalidInput("invalid request body"))
		return
	}
	if req.Text == "" {
		s.ErrorResponse(w, errors.NewInvalidInput("utterance text is required"))
		return
	}

	metrics.TranscriptsIngested.WithLabelValues("api").Inc()

	s.transcripts.Publish(callSID, detector.Utterance{
		Text:        req.Text,
		Speaker:     req.Speaker,
		StartOffset: req.StartOffset,
		Confidence:  req.Confidence,
	}, req.IsFinal)

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"call_sid": callSID,
		"status":   "accepted",
	})
}
