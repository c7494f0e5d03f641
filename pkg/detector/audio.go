package detector

import "time"

// analyzeAudioPatterns applies audio heuristics: beep detection, trailing
// silence after the greeting, one-way audio, and short call duration.
func (d *Detector) analyzeAudioPatterns(audio *AudioMetrics, callDuration int) *Signal {
	var patternsDetected []string
	audioConfidence := 0.0

	if audio.BeepDetected {
		patternsDetected = append(patternsDetected, "beep_detected")
		audioConfidence += 0.4
	}

	// Silence after the greeting while the machine waits for a message
	if audio.TrailingSilenceDuration > 3 {
		patternsDetected = append(patternsDetected, "trailing_silence")
		audioConfidence += 0.3
	}

	// No input from the caller side
	if audio.OneWayAudio {
		patternsDetected = append(patternsDetected, "one_way_audio")
		audioConfidence += 0.2
	}

	// Short call duration (< 60 seconds often indicates voicemail)
	if callDuration > 0 && callDuration < 60 {
		patternsDetected = append(patternsDetected, "short_duration")
		audioConfidence += 0.15
	}

	if len(patternsDetected) == 0 {
		return nil
	}

	if audioConfidence >= 0.3 {
		confidence := audioConfidence
		if confidence > 0.9 {
			confidence = 0.9
		}

		return &Signal{
			Type:       SignalAudio,
			Confidence: confidence,
			DetectedAt: time.Now().UTC(),
			Details: map[string]interface{}{
				"patterns_detected": patternsDetected,
				"beep_detected":     audio.BeepDetected,
				"silence_duration":  audio.TrailingSilenceDuration,
				"call_duration":     callDuration,
			},
		}
	}

	return nil
}
