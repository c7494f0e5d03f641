package detector

import "time"

// signalWeights rank detection methods by reliability. Provider AMD is
// the most trustworthy, audio heuristics the least.
var signalWeights = map[SignalType]float64{
	SignalAMD:        1.0,
	SignalKeyword:    0.8,
	SignalTranscript: 0.6,
	SignalAudio:      0.5,
}

// combineSignals fuses the collected signals into a final verdict using
// weighted confidence aggregation.
func (d *Detector) combineSignals(callSID string, signals []Signal, metadata map[string]interface{}) *Result {
	if len(signals) == 0 {
		return &Result{
			CallSID:         callSID,
			IsVoicemail:     false,
			Confidence:      0.0,
			Signals:         []Signal{},
			DetectionMethod: "none",
			Metadata: map[string]interface{}{
				"call_sid": callSID,
				"reason":   "no_signals",
			},
			DetectedAt: time.Now().UTC(),
		}
	}

	totalWeight := 0.0
	weightedConfidence := 0.0

	for _, signal := range signals {
		weight, ok := signalWeights[signal.Type]
		if !ok {
			weight = 0.5
		}
		totalWeight += weight
		weightedConfidence += signal.Confidence * weight
	}

	overallConfidence := 0.0
	if totalWeight > 0 {
		overallConfidence = weightedConfidence / totalWeight
	}

	// Primary detection method is the highest confidence signal,
	// first wins on ties
	primarySignal := signals[0]
	for _, signal := range signals[1:] {
		if signal.Confidence > primarySignal.Confidence {
			primarySignal = signal
		}
	}
	detectionMethod := string(primarySignal.Type)

	isVoicemail := false

	if d.config.EnableAggressiveDetection {
		// Aggressive mode: any single strong signal triggers detection
		isVoicemail = overallConfidence >= 0.6
		if !isVoicemail {
			for _, signal := range signals {
				if signal.Confidence >= 0.85 {
					isVoicemail = true
					break
				}
			}
		}
	} else {
		// Conservative mode: require either high overall confidence or
		// multiple agreeing signals
		switch {
		case overallConfidence >= 0.75:
			isVoicemail = true
		case len(signals) >= d.config.MinSignalsRequired && overallConfidence >= 0.6:
			isVoicemail = true
		default:
			// AMD with very high confidence is sufficient on its own
			for _, signal := range signals {
				if signal.Type == SignalAMD && signal.Confidence >= 0.9 {
					isVoicemail = true
					break
				}
			}
		}
	}

	signalTypes := make([]string, 0, len(signals))
	for _, signal := range signals {
		signalTypes = append(signalTypes, string(signal.Type))
	}

	resultMetadata := map[string]interface{}{
		"call_sid":            callSID,
		"signal_count":        len(signals),
		"signal_types":        signalTypes,
		"weighted_confidence": overallConfidence,
		"primary_method":      detectionMethod,
	}
	for k, v := range metadata {
		resultMetadata[k] = v
	}

	return &Result{
		CallSID:         callSID,
		IsVoicemail:     isVoicemail,
		Confidence:      overallConfidence,
		Signals:         signals,
		DetectionMethod: detectionMethod,
		Metadata:        resultMetadata,
		DetectedAt:      time.Now().UTC(),
	}
}
