package detector

import (
	"github.com/sirupsen/logrus"
)

// Detector combines multiple detection methods into a single voicemail
// classification:
//   - Provider AMD (answeredBy parameter)
//   - Transcript keyword matching
//   - Transcript timing and confidence analysis
//   - Audio pattern heuristics
type Detector struct {
	logger *logrus.Logger
	config Config
	stats  *Stats
}

// New creates a voicemail detector with the given thresholds. The stats
// tracker is shared so callers can expose it independently of the
// detector itself.
func New(logger *logrus.Logger, config Config, stats *Stats) *Detector {
	if stats == nil {
		stats = NewStats()
	}

	return &Detector{
		logger: logger,
		config: config,
		stats:  stats,
	}
}

// Stats returns the detector's statistics tracker
func (d *Detector) Stats() *Stats {
	return d.stats
}

// AnalyzeCall runs every applicable detection method over the call data
// and fuses the resulting signals into a verdict. Detection methods whose
// inputs are absent are skipped.
func (d *Detector) AnalyzeCall(input AnalysisInput) *Result {
	var signals []Signal

	// Signal 1: Provider AMD (answeredBy parameter)
	if input.AnsweredBy != "" {
		if signal := d.analyzeAMD(input.AnsweredBy); signal != nil {
			signals = append(signals, *signal)
		}
	}

	// Signals 2 and 3: Transcript keyword and pattern analysis
	if len(input.Utterances) > 0 {
		if signal := d.analyzeTranscriptKeywords(input.Utterances); signal != nil {
			signals = append(signals, *signal)
		}

		if signal := d.analyzeTranscriptPatterns(input.Utterances); signal != nil {
			signals = append(signals, *signal)
		}
	}

	// Signal 4: Audio pattern heuristics
	if input.Audio != nil {
		if signal := d.analyzeAudioPatterns(input.Audio, input.CallDuration); signal != nil {
			signals = append(signals, *signal)
		}
	}

	result := d.combineSignals(input.CallSID, signals, input.Metadata)

	d.stats.record(result)

	d.logger.WithFields(logrus.Fields{
		"call_sid":     input.CallSID,
		"is_voicemail": result.IsVoicemail,
		"confidence":   result.Confidence,
		"method":       result.DetectionMethod,
		"signals":      len(signals),
	}).Info("Voicemail detection completed")

	return result
}
