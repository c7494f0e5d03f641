// Package scheduler retries outbound calls that went unanswered, on a
// fixed backoff ladder.
package scheduler

import (
	"sync"
	"time"

	"atlas-server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// RetryableStatuses are call outcomes that qualify for a retry attempt
var RetryableStatuses = map[string]bool{
	"no-answer": true,
	"busy":      true,
}

// PlaceFunc places a retry call. It receives the destination number, the
// call SID of the original attempt, and the attempt number (1-based).
type PlaceFunc func(toNumber, parentCallSID string, attempt int) error

// Config holds the retry schedule
type Config struct {
	MaxRetries int
	Delays     []time.Duration
}

// Scheduler schedules delayed retry attempts for failed calls
type Scheduler struct {
	logger  *logrus.Logger
	config  Config
	place   PlaceFunc
	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

// New creates a retry scheduler
func New(logger *logrus.Logger, config Config, place PlaceFunc) *Scheduler {
	return &Scheduler{
		logger:  logger,
		config:  config,
		place:   place,
		pending: make(map[string]*time.Timer),
	}
}

// ShouldRetry reports whether another attempt is allowed for the given
// status and attempt count
func (s *Scheduler) ShouldRetry(status string, retryCount int) bool {
	return RetryableStatuses[status] && retryCount < s.config.MaxRetries
}

// Delay returns the wait before the given attempt (1-based). Attempts
// beyond the configured ladder reuse the last delay.
func (s *Scheduler) Delay(attempt int) time.Duration {
	if len(s.config.Delays) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(s.config.Delays) {
		return s.config.Delays[len(s.config.Delays)-1]
	}
	return s.config.Delays[attempt-1]
}

// Schedule queues a retry attempt for a call. A second schedule for the
// same call replaces the first.
func (s *Scheduler) Schedule(callSID, toNumber, status string, attempt int) {
	delay := s.Delay(attempt)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if timer, ok := s.pending[callSID]; ok {
		timer.Stop()
	}

	s.logger.WithFields(logrus.Fields{
		"call_sid": callSID,
		"to":       toNumber,
		"attempt":  attempt,
		"delay":    delay,
		"reason":   status,
	}).Info("Retry scheduled")

	metrics.RetriesScheduled.WithLabelValues(status).Inc()

	s.pending[callSID] = time.AfterFunc(delay, func() {
		s.fire(callSID, toNumber, attempt)
	})
}

// Cancel drops a pending retry, if any
func (s *Scheduler) Cancel(callSID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.pending[callSID]; ok {
		timer.Stop()
		delete(s.pending, callSID)
		s.logger.WithField("call_sid", callSID).Debug("Pending retry canceled")
	}
}

// PendingCount returns the number of queued retries
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels all pending retries
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for callSID, timer := range s.pending {
		timer.Stop()
		delete(s.pending, callSID)
	}

	s.logger.Info("Retry scheduler stopped")
}

func (s *Scheduler) fire(callSID, toNumber string, attempt int) {
	s.mu.Lock()
	delete(s.pending, callSID)
	stopped := s.stopped
	s.mu.Unlock()

	if stopped {
		return
	}

	if err := s.place(toNumber, callSID, attempt); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"call_sid": callSID,
			"attempt":  attempt,
		}).Error("Retry call placement failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"call_sid": callSID,
		"attempt":  attempt,
	}).Info("Retry call placed")
}
