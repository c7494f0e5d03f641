// Package detector implements multi-signal voicemail detection for
// outbound calls. It fuses provider answering machine detection, transcript
// keyword matching, transcript timing analysis, and audio heuristics into
// a single weighted classification.
package detector

import "time"

// SignalType identifies the detection method that produced a signal
type SignalType string

const (
	// SignalAMD is the telephony provider's answering machine detection
	SignalAMD SignalType = "amd"

	// SignalKeyword is transcript keyword and phrase matching
	SignalKeyword SignalType = "keyword"

	// SignalTranscript is transcript timing and confidence analysis
	SignalTranscript SignalType = "transcript_analysis"

	// SignalAudio is audio pattern heuristics
	SignalAudio SignalType = "audio_pattern"
)

// Signal is a single piece of voicemail evidence from one detection method
type Signal struct {
	Type       SignalType             `json:"signal_type"`
	Confidence float64                `json:"confidence"`
	DetectedAt time.Time              `json:"detected_at"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Utterance is one segment of a call transcript
type Utterance struct {
	Text        string  `json:"text"`
	Speaker     string  `json:"speaker"`
	StartOffset float64 `json:"start_offset"`
	Confidence  float64 `json:"confidence"`
}

// AudioMetrics holds audio heuristics extracted from call media
type AudioMetrics struct {
	BeepDetected            bool    `json:"beep_detected"`
	TrailingSilenceDuration float64 `json:"trailing_silence_duration"`
	OneWayAudio             bool    `json:"one_way_audio"`
}

// AnalysisInput carries everything known about a call at analysis time.
// Any field may be absent; each detection method runs only when its
// inputs are present.
type AnalysisInput struct {
	CallSID      string
	AnsweredBy   string
	Utterances   []Utterance
	Audio        *AudioMetrics
	CallDuration int
	Metadata     map[string]interface{}
}

// Result is the outcome of analyzing a single call
type Result struct {
	CallSID         string                 `json:"call_sid"`
	IsVoicemail     bool                   `json:"is_voicemail"`
	Confidence      float64                `json:"confidence"`
	Signals         []Signal               `json:"signals"`
	DetectionMethod string                 `json:"detection_method"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	DetectedAt      time.Time              `json:"detected_at"`
}
