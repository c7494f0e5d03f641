// Package analysis orchestrates voicemail detection for completed calls:
// it gathers the call's transcript, runs the detector, persists the
// result, and publishes a detection event.
package analysis

import (
	"encoding/json"
	"sync"
	"time"

	"atlas-server/pkg/database"
	"atlas-server/pkg/detector"
	"atlas-server/pkg/messaging"
	"atlas-server/pkg/metrics"
	"atlas-server/pkg/transcript"

	"github.com/sirupsen/logrus"
)

// EventPublisher publishes detection events to downstream consumers
type EventPublisher interface {
	PublishDetection(event messaging.DetectionEvent) error
	IsConnected() bool
}

// DetectionStore persists detection results
type DetectionStore interface {
	SaveDetection(detection *database.Detection) error
}

// TranscriptLoader fetches stored utterances when the in-memory
// accumulator has none, such as after a restart
type TranscriptLoader interface {
	ListTranscripts(callSID string) ([]*database.Transcript, error)
}

// Service runs the detection pipeline for a call
type Service struct {
	logger      *logrus.Logger
	detector    *detector.Detector
	transcripts *transcript.Service
	store       DetectionStore
	loader      TranscriptLoader
	publisher   EventPublisher

	mu      sync.RWMutex
	results map[string]*detector.Result
}

// SetTranscriptLoader attaches a storage fallback for transcripts
func (s *Service) SetTranscriptLoader(loader TranscriptLoader) {
	s.loader = loader
}

// NewService creates an analysis service. The store and publisher are
// optional; when nil the corresponding step is skipped.
func NewService(
	logger *logrus.Logger,
	det *detector.Detector,
	transcripts *transcript.Service,
	store DetectionStore,
	publisher EventPublisher,
) *Service {
	return &Service{
		logger:      logger,
		detector:    det,
		transcripts: transcripts,
		store:       store,
		publisher:   publisher,
		results:     make(map[string]*detector.Result),
	}
}

// Result returns the most recent detection result for a call, if any
func (s *Service) Result(callSID string) (*detector.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[callSID]
	return result, ok
}

// AnalyzeCall runs detection over everything known about a call and
// fans the result out to storage and messaging
func (s *Service) AnalyzeCall(
	callSID string,
	answeredBy string,
	callDuration int,
	audio *detector.AudioMetrics,
	metadata map[string]interface{},
) *detector.Result {
	start := time.Now()

	var utterances []detector.Utterance
	if s.transcripts != nil {
		utterances = s.transcripts.Collect(callSID)
	}
	if len(utterances) == 0 && s.loader != nil {
		utterances = s.loadStoredUtterances(callSID)
	}

	result := s.detector.AnalyzeCall(detector.AnalysisInput{
		CallSID:      callSID,
		AnsweredBy:   answeredBy,
		Utterances:   utterances,
		Audio:        audio,
		CallDuration: callDuration,
		Metadata:     metadata,
	})

	outcome := "human"
	if result.IsVoicemail {
		outcome = "voicemail"
	} else if result.Confidence < 0.3 {
		outcome = "uncertain"
	}

	metrics.CallsAnalyzed.WithLabelValues(outcome).Inc()
	metrics.DetectionConfidence.WithLabelValues(result.DetectionMethod).Observe(result.Confidence)
	metrics.DetectionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	for _, signal := range result.Signals {
		metrics.SignalUsage.WithLabelValues(string(signal.Type)).Inc()
	}

	s.mu.Lock()
	s.results[callSID] = result
	s.mu.Unlock()

	s.persist(result)
	s.publish(result)

	return result
}

func (s *Service) loadStoredUtterances(callSID string) []detector.Utterance {
	stored, err := s.loader.ListTranscripts(callSID)
	if err != nil {
		s.logger.WithError(err).WithField("call_sid", callSID).Warn("Failed to load stored transcripts")
		return nil
	}

	utterances := make([]detector.Utterance, 0, len(stored))
	for _, t := range stored {
		if !t.IsFinal {
			continue
		}
		utterances = append(utterances, detector.Utterance{
			Text:        t.Text,
			Speaker:     t.Speaker,
			StartOffset: t.StartOffset,
			Confidence:  t.Confidence,
		})
	}
	return utterances
}

func (s *Service) persist(result *detector.Result) {
	if s.store == nil {
		return
	}

	signalsJSON, err := json.Marshal(result.Signals)
	if err != nil {
		s.logger.WithError(err).WithField("call_sid", result.CallSID).Error("Failed to serialize detection signals")
		signalsJSON = nil
	}

	metadataJSON, err := json.Marshal(result.Metadata)
	if err != nil {
		s.logger.WithError(err).WithField("call_sid", result.CallSID).Error("Failed to serialize detection metadata")
		metadataJSON = nil
	}

	detection := &database.Detection{
		CallSID:         result.CallSID,
		IsVoicemail:     result.IsVoicemail,
		Confidence:      result.Confidence,
		DetectionMethod: result.DetectionMethod,
		SignalCount:     len(result.Signals),
		Signals:         string(signalsJSON),
		Metadata:        string(metadataJSON),
		DetectedAt:      result.DetectedAt,
	}

	if err := s.store.SaveDetection(detection); err != nil {
		s.logger.WithError(err).WithField("call_sid", result.CallSID).Error("Failed to persist detection result")
	}
}

func (s *Service) publish(result *detector.Result) {
	if s.publisher == nil || !s.publisher.IsConnected() {
		return
	}

	event := messaging.DetectionEvent{
		CallSID:         result.CallSID,
		IsVoicemail:     result.IsVoicemail,
		Confidence:      result.Confidence,
		DetectionMethod: result.DetectionMethod,
		SignalCount:     len(result.Signals),
		Timestamp:       result.DetectedAt,
		Metadata:        result.Metadata,
	}

	if err := s.publisher.PublishDetection(event); err != nil {
		s.logger.WithError(err).WithField("call_sid", result.CallSID).Warn("Failed to publish detection event")
	}
}
