package detector

// Config holds the detection thresholds and decision mode
type Config struct {
	// AMDConfidenceThreshold is the minimum confidence for a machine
	// AMD verdict to be emitted as a signal
	AMDConfidenceThreshold float64

	// KeywordConfidenceThreshold is the minimum adjusted confidence for
	// a keyword signal to be emitted
	KeywordConfidenceThreshold float64

	// MinSignalsRequired is the number of signals needed to confirm a
	// voicemail at moderate confidence in conservative mode
	MinSignalsRequired int

	// EnableAggressiveDetection trades false positives for recall: any
	// single strong signal confirms a voicemail
	EnableAggressiveDetection bool
}

// DefaultConfig returns the production detection thresholds
func DefaultConfig() Config {
	return Config{
		AMDConfidenceThreshold:     0.85,
		KeywordConfidenceThreshold: 0.75,
		MinSignalsRequired:         1,
		EnableAggressiveDetection:  false,
	}
}
