package detector

import "time"

// analyzeTranscriptPatterns looks at transcript timing and confidence
// for the shape of a pre-recorded greeting.
//
// Voicemail characteristics:
//   - Usually starts immediately (0-2 seconds)
//   - Monologue (single speaker, no back-and-forth)
//   - Consistent high confidence (pre-recorded)
//   - Fixed duration (typically 15-45 seconds)
func (d *Detector) analyzeTranscriptPatterns(utterances []Utterance) *Signal {
	if len(utterances) < 3 {
		return nil // Not enough data
	}

	speakers := make(map[string]struct{})
	var firstSpeakerTime *float64
	speakerChanges := 0
	lastSpeaker := ""

	var confidences []float64
	var startTimes []float64

	for _, u := range utterances {
		speaker := u.Speaker
		if speaker == "" {
			speaker = "unknown"
		}

		speakers[speaker] = struct{}{}
		confidences = append(confidences, u.Confidence)
		startTimes = append(startTimes, u.StartOffset)

		if firstSpeakerTime == nil {
			t := u.StartOffset
			firstSpeakerTime = &t
		}

		if lastSpeaker != "" && lastSpeaker != speaker {
			speakerChanges++
		}
		lastSpeaker = speaker
	}

	var patternsMatched []string
	patternConfidence := 0.0

	// Pattern 1: Single speaker (monologue)
	if len(speakers) == 1 && speakerChanges == 0 {
		patternsMatched = append(patternsMatched, "monologue")
		patternConfidence += 0.3
	}

	// Pattern 2: Starts very quickly (< 2 seconds)
	if firstSpeakerTime != nil && *firstSpeakerTime < 2.0 {
		patternsMatched = append(patternsMatched, "immediate_start")
		patternConfidence += 0.2
	}

	// Pattern 3: High average confidence (pre-recorded = clearer)
	avgConfidence := 0.0
	for _, c := range confidences {
		avgConfidence += c
	}
	avgConfidence /= float64(len(confidences))
	if avgConfidence > 0.95 {
		patternsMatched = append(patternsMatched, "high_confidence")
		patternConfidence += 0.2
	}

	// Pattern 4: Consistent confidence (low variance)
	if len(confidences) > 1 {
		variance := 0.0
		for _, c := range confidences {
			diff := c - avgConfidence
			variance += diff * diff
		}
		variance /= float64(len(confidences))
		if variance < 0.01 {
			patternsMatched = append(patternsMatched, "consistent_confidence")
			patternConfidence += 0.15
		}
	}

	// Pattern 5: Short duration (typical voicemail 15-45 seconds)
	maxTime := 0.0
	for _, t := range startTimes {
		if t > maxTime {
			maxTime = t
		}
	}
	if maxTime >= 15 && maxTime <= 45 {
		patternsMatched = append(patternsMatched, "typical_duration")
		patternConfidence += 0.15
	}

	if len(patternsMatched) == 0 {
		return nil
	}

	if patternConfidence >= 0.4 { // At least 2-3 patterns matched
		confidence := patternConfidence
		if confidence > 0.95 {
			confidence = 0.95
		}

		return &Signal{
			Type:       SignalTranscript,
			Confidence: confidence,
			DetectedAt: time.Now().UTC(),
			Details: map[string]interface{}{
				"patterns_matched": patternsMatched,
				"speaker_count":    len(speakers),
				"speaker_changes":  speakerChanges,
				"avg_confidence":   avgConfidence,
				"duration":         maxTime,
			},
		}
	}

	return nil
}
