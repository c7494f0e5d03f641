package scheduler

import (
	"sync"
	"testing"
	"time"

	"atlas-server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testConfig() Config {
	return Config{
		MaxRetries: 3,
		Delays:     []time.Duration{2 * time.Minute, 5 * time.Minute, 10 * time.Minute},
	}
}

func TestShouldRetry(t *testing.T) {
	metrics.Init(newTestLogger())
	s := New(newTestLogger(), testConfig(), nil)

	tests := []struct {
		name       string
		status     string
		retryCount int
		want       bool
	}{
		{"no answer first attempt", "no-answer", 0, true},
		{"busy second attempt", "busy", 1, true},
		{"no answer exhausted", "no-answer", 3, false},
		{"completed call", "completed", 0, false},
		{"failed call", "failed", 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.ShouldRetry(tc.status, tc.retryCount); got != tc.want {
				t.Errorf("ShouldRetry(%q, %d) = %v, want %v", tc.status, tc.retryCount, got, tc.want)
			}
		})
	}
}

func TestDelayLadder(t *testing.T) {
	metrics.Init(newTestLogger())
	s := New(newTestLogger(), testConfig(), nil)

	if got := s.Delay(1); got != 2*time.Minute {
		t.Errorf("first delay = %v, want 2m", got)
	}
	if got := s.Delay(2); got != 5*time.Minute {
		t.Errorf("second delay = %v, want 5m", got)
	}
	if got := s.Delay(3); got != 10*time.Minute {
		t.Errorf("third delay = %v, want 10m", got)
	}
	// Past the ladder the last delay is reused
	if got := s.Delay(4); got != 10*time.Minute {
		t.Errorf("fourth delay = %v, want 10m", got)
	}
}

func TestScheduleFires(t *testing.T) {
	metrics.Init(newTestLogger())

	var mu sync.Mutex
	var placed []string
	done := make(chan struct{})

	place := func(toNumber, parentCallSID string, attempt int) error {
		mu.Lock()
		placed = append(placed, parentCallSID)
		mu.Unlock()
		close(done)
		return nil
	}

	s := New(newTestLogger(), Config{
		MaxRetries: 3,
		Delays:     []time.Duration{10 * time.Millisecond},
	}, place)
	defer s.Stop()

	s.Schedule("CA1", "+15552223333", "no-answer", 1)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not fire")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(placed) != 1 || placed[0] != "CA1" {
		t.Errorf("unexpected placements: %v", placed)
	}
	if s.PendingCount() != 0 {
		t.Errorf("pending count should be 0 after firing, got %d", s.PendingCount())
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	metrics.Init(newTestLogger())

	var fired bool
	var mu sync.Mutex

	place := func(toNumber, parentCallSID string, attempt int) error {
		mu.Lock()
		fired = true
		mu.Unlock()
		return nil
	}

	s := New(newTestLogger(), Config{
		MaxRetries: 3,
		Delays:     []time.Duration{20 * time.Millisecond},
	}, place)
	defer s.Stop()

	s.Schedule("CA1", "+15552223333", "busy", 1)
	s.Cancel("CA1")

	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired {
		t.Error("canceled retry should not fire")
	}
	if s.PendingCount() != 0 {
		t.Errorf("pending count should be 0 after cancel, got %d", s.PendingCount())
	}
}

func TestStopCancelsAll(t *testing.T) {
	metrics.Init(newTestLogger())

	place := func(toNumber, parentCallSID string, attempt int) error {
		t.Error("retry should not fire after Stop")
		return nil
	}

	s := New(newTestLogger(), Config{
		MaxRetries: 3,
		Delays:     []time.Duration{20 * time.Millisecond},
	}, place)

	s.Schedule("CA1", "+15552223333", "no-answer", 1)
	s.Schedule("CA2", "+15554445555", "busy", 1)
	s.Stop()

	if s.PendingCount() != 0 {
		t.Errorf("pending count should be 0 after Stop, got %d", s.PendingCount())
	}

	time.Sleep(60 * time.Millisecond)

	// Schedule after Stop is a no-op
	s.Schedule("CA3", "+15556667777", "no-answer", 1)
	if s.PendingCount() != 0 {
		t.Error("scheduler should not accept work after Stop")
	}
}
