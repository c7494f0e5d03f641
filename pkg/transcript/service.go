// Package transcript collects streaming transcript utterances per call
// and fans them out to registered listeners.
package transcript

import (
	"sort"
	"sync"

	"atlas-server/pkg/detector"
	"atlas-server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// Listener represents something that can listen for transcript updates
type Listener interface {
	// OnUtterance is called when a new transcript utterance is available
	OnUtterance(callSID string, utterance detector.Utterance, isFinal bool)
}

// Service accumulates utterances per call and notifies listeners
type Service struct {
	logger    *logrus.Logger
	listeners []Listener
	calls     map[string][]detector.Utterance
	mutex     sync.RWMutex
}

// NewService creates a new transcript service
func NewService(logger *logrus.Logger) *Service {
	return &Service{
		logger:    logger,
		listeners: make([]Listener, 0),
		calls:     make(map[string][]detector.Utterance),
	}
}

// AddListener registers a new transcript listener
func (s *Service) AddListener(listener Listener) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.listeners = append(s.listeners, listener)
	s.logger.Info("Added new transcript listener")
}

// RemoveListener removes a transcript listener
func (s *Service) RemoveListener(listener Listener) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, l := range s.listeners {
		if l == listener {
			// Remove listener by replacing with last element and truncating
			s.listeners[i] = s.listeners[len(s.listeners)-1]
			s.listeners = s.listeners[:len(s.listeners)-1]
			s.logger.Info("Removed transcript listener")
			return
		}
	}
}

// Publish records a final utterance for the call and notifies all
// listeners. Interim utterances are forwarded to listeners but not
// stored, since only final text should feed detection.
func (s *Service) Publish(callSID string, utterance detector.Utterance, isFinal bool) {
	if utterance.Text == "" {
		return // Don't publish empty utterances
	}

	speaker := utterance.Speaker
	if speaker == "" {
		speaker = "unknown"
	}

	s.mutex.Lock()
	if isFinal {
		s.calls[callSID] = append(s.calls[callSID], utterance)
	}
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mutex.Unlock()

	metrics.TranscriptUtterances.WithLabelValues(speaker).Inc()

	s.logger.WithFields(logrus.Fields{
		"call_sid":       callSID,
		"is_final":       isFinal,
		"start_offset":   utterance.StartOffset,
		"listener_count": len(listeners),
	}).Debug("Publishing transcript utterance to listeners")

	for _, listener := range listeners {
		listener.OnUtterance(callSID, utterance, isFinal)
	}
}

// Collect returns the accumulated final utterances for a call in
// chronological order
func (s *Service) Collect(callSID string) []detector.Utterance {
	s.mutex.RLock()
	stored := s.calls[callSID]
	utterances := make([]detector.Utterance, len(stored))
	copy(utterances, stored)
	s.mutex.RUnlock()

	sort.SliceStable(utterances, func(i, j int) bool {
		return utterances[i].StartOffset < utterances[j].StartOffset
	})

	return utterances
}

// Forget drops the accumulated utterances for a completed call
func (s *Service) Forget(callSID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.calls, callSID)
}
