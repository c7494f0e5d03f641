package detector

import "sync"

// Stats tracks detection outcomes for accuracy monitoring. All methods
// are safe for concurrent use.
type Stats struct {
	mu                sync.Mutex
	totalAnalyzed     int64
	voicemailDetected int64
	humanDetected     int64
	uncertain         int64
	methodsUsed       map[SignalType]int64
}

// NewStats creates an empty statistics tracker
func NewStats() *Stats {
	return &Stats{
		methodsUsed: emptyMethodCounts(),
	}
}

func emptyMethodCounts() map[SignalType]int64 {
	return map[SignalType]int64{
		SignalAMD:        0,
		SignalKeyword:    0,
		SignalAudio:      0,
		SignalTranscript: 0,
	}
}

// record updates all counters for one analyzed call in a single step
func (s *Stats) record(result *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalAnalyzed++

	if result.IsVoicemail {
		s.voicemailDetected++
	} else if result.Confidence < 0.3 {
		s.uncertain++
	} else {
		s.humanDetected++
	}

	for _, signal := range result.Signals {
		s.methodsUsed[signal.Type]++
	}
}

// Snapshot returns the current statistics as a map suitable for JSON
// serialization
func (s *Stats) Snapshot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.totalAnalyzed == 0 {
		return map[string]interface{}{
			"total_analyzed":   int64(0),
			"accuracy_metrics": "insufficient_data",
		}
	}

	total := float64(s.totalAnalyzed)

	methodsUsed := make(map[string]int64, len(s.methodsUsed))
	var primaryMethod SignalType
	var primaryCount int64
	anyUsed := false

	for method, count := range s.methodsUsed {
		methodsUsed[string(method)] = count
		if count > 0 {
			anyUsed = true
		}
		if count > primaryCount || (count == primaryCount && primaryMethod == "") {
			primaryMethod = method
			primaryCount = count
		}
	}

	primary := "none"
	if anyUsed {
		primary = string(primaryMethod)
	}

	return map[string]interface{}{
		"total_analyzed":     s.totalAnalyzed,
		"voicemail_detected": s.voicemailDetected,
		"human_detected":     s.humanDetected,
		"uncertain":          s.uncertain,
		"voicemail_rate":     float64(s.voicemailDetected) / total,
		"human_rate":         float64(s.humanDetected) / total,
		"uncertain_rate":     float64(s.uncertain) / total,
		"methods_used":       methodsUsed,
		"primary_method":     primary,
	}
}

// Reset clears all counters
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalAnalyzed = 0
	s.voicemailDetected = 0
	s.humanDetected = 0
	s.uncertain = 0
	s.methodsUsed = emptyMethodCounts()
}
