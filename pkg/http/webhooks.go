package http

import (
	"net/http"
	"time"

	"atlas-server/pkg/database"
	"atlas-server/pkg/metrics"
	"atlas-server/pkg/telephony"

	"github.com/sirupsen/logrus"
)

// voiceWebhookHandler answers Twilio's voice webhook with TwiML that
// plays the call script and optionally records the call
func (s *Server) voiceWebhookHandler(w http.ResponseWriter, r *http.Request) {
	metrics.WebhooksReceived.WithLabelValues("voice").Inc()

	twiml, err := telephony.GenerateTwiML(s.twiml)
	if err != nil {
		s.logger.WithError(err).Error("Failed to generate TwiML response")
		s.ErrorResponse(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(twiml))
}

// statusWebhookHandler processes Twilio call status callbacks. Processing
// failures are logged but still answered with 200 so Twilio does not
// retry the delivery.
func (s *Server) statusWebhookHandler(w http.ResponseWriter, r *http.Request) {
	webhook, err := telephony.ParseStatusWebhook(r)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues("invalid").Inc()
		s.ErrorResponse(w, err)
		return
	}

	metrics.WebhooksReceived.WithLabelValues("status").Inc()

	status := telephony.NormalizeStatus(webhook.CallStatus)
	metrics.CallStatusChanges.WithLabelValues(status).Inc()

	s.logger.WithFields(logrus.Fields{
		"call_sid":    webhook.CallSID,
		"status":      status,
		"answered_by": webhook.AnsweredBy,
	}).Info("Call status update received")

	if s.repo != nil {
		if err := s.repo.UpdateCallStatus(webhook.CallSID, status, webhook.AnsweredBy, webhook.CallDuration); err != nil {
			s.logger.WithError(err).WithField("call_sid", webhook.CallSID).Warn("Failed to update call status")
		}
		if status == telephony.StatusInProgress {
			if err := s.repo.MarkCallStarted(webhook.CallSID, time.Now().UTC()); err != nil {
				s.logger.WithError(err).WithField("call_sid", webhook.CallSID).Warn("Failed to mark call started")
			}
		}
	}

	if telephony.IsFinalStatus(status) {
		s.handleFinalStatus(webhook, status)
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleFinalStatus runs detection for answered calls and schedules
// retries for unanswered ones
func (s *Server) handleFinalStatus(webhook *telephony.StatusWebhook, status string) {
	metrics.ActiveCalls.Dec()
	metrics.CallDuration.WithLabelValues(status).Observe(float64(webhook.CallDuration))

	if s.repo != nil {
		if err := s.repo.MarkCallEnded(webhook.CallSID, time.Now().UTC()); err != nil {
			s.logger.WithError(err).WithField("call_sid", webhook.CallSID).Warn("Failed to mark call ended")
		}
	}

	if status == telephony.StatusCompleted {
		s.runDetection(webhook)
		return
	}

	s.maybeScheduleRetry(webhook, status)
}

func (s *Server) runDetection(webhook *telephony.StatusWebhook) {
	if s.analysis == nil {
		return
	}

	result := s.analysis.AnalyzeCall(webhook.CallSID, webhook.AnsweredBy, webhook.CallDuration, nil, nil)

	if s.hub != nil {
		s.hub.BroadcastDetection(result)
	}
	if s.transcripts != nil {
		s.transcripts.Forget(webhook.CallSID)
	}
}

func (s *Server) maybeScheduleRetry(webhook *telephony.StatusWebhook, status string) {
	if s.retries == nil {
		return
	}

	attempt := s.retryAttempt(webhook.CallSID)
	if !s.retries.ShouldRetry(status, attempt) {
		if attempt > 0 {
			s.logger.WithFields(logrus.Fields{
				"call_sid": webhook.CallSID,
				"attempts": attempt,
				"status":   status,
			}).Info("Retry budget exhausted for call")
		}
		return
	}

	if s.repo != nil {
		if _, err := s.repo.IncrementRetryCount(webhook.CallSID); err != nil {
			s.logger.WithError(err).WithField("call_sid", webhook.CallSID).Warn("Failed to record retry attempt")
		}
	}

	s.retries.Schedule(webhook.CallSID, webhook.To, status, attempt+1)
}

// recordingWebhookHandler stores recording metadata reported by Twilio
func (s *Server) recordingWebhookHandler(w http.ResponseWriter, r *http.Request) {
	webhook, err := telephony.ParseRecordingWebhook(r)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues("invalid").Inc()
		s.ErrorResponse(w, err)
		return
	}

	metrics.WebhooksReceived.WithLabelValues("recording").Inc()

	s.logger.WithFields(logrus.Fields{
		"call_sid":      webhook.CallSID,
		"recording_sid": webhook.RecordingSID,
		"status":        webhook.RecordingStatus,
	}).Info("Recording status update received")

	if s.repo != nil {
		recording := &database.Recording{
			RecordingSID: webhook.RecordingSID,
			CallSID:      webhook.CallSID,
			URL:          webhook.RecordingURL,
			Status:       webhook.RecordingStatus,
		}
		if webhook.RecordingDuration > 0 {
			recording.Duration.Int64 = int64(webhook.RecordingDuration)
			recording.Duration.Valid = true
		}
		if err := s.repo.SaveRecording(recording); err != nil {
			s.logger.WithError(err).WithField("call_sid", webhook.CallSID).Warn("Failed to persist recording")
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
