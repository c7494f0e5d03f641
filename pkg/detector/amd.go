package detector

import (
	"strings"
	"time"
)

// analyzeAMD interprets the telephony provider's answering machine
// detection verdict.
//
// Twilio AMD can return:
//   - "human" - A human answered
//   - "machine_start" - Answering machine detected (beginning of greeting)
//   - "machine_end_beep" - Answering machine detected (beep detected)
//   - "machine_end_silence" - Answering machine detected (silence after greeting)
//   - "machine_end_other" - Answering machine detected (other pattern)
//   - "fax" - Fax machine detected
//   - "unknown" - Could not determine
func (d *Detector) analyzeAMD(answeredBy string) *Signal {
	answeredByLower := strings.ToLower(answeredBy)

	if answeredByLower == "human" {
		return nil
	}

	if strings.Contains(answeredByLower, "machine") {
		// Confidence depends on how far into the greeting AMD got
		confidence := 0.95

		switch answeredByLower {
		case "machine_end_beep":
			confidence = 0.98
		case "machine_start":
			confidence = 0.90
		case "machine_end_silence":
			confidence = 0.92
		case "machine_end_other":
			confidence = 0.85
		}

		if confidence >= d.config.AMDConfidenceThreshold {
			return &Signal{
				Type:       SignalAMD,
				Confidence: confidence,
				DetectedAt: time.Now().UTC(),
				Details: map[string]interface{}{
					"answered_by":    answeredBy,
					"detection_type": answeredByLower,
				},
			}
		}
	} else if answeredByLower == "fax" {
		// Fax machine, treat as machine but lower confidence for voicemail
		return &Signal{
			Type:       SignalAMD,
			Confidence: 0.70,
			DetectedAt: time.Now().UTC(),
			Details: map[string]interface{}{
				"answered_by":    answeredBy,
				"detection_type": "fax",
			},
		}
	}

	return nil
}
