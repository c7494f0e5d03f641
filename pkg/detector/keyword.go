package detector

import (
	"strings"
	"time"
)

// analyzeTranscriptKeywords scans the transcript for voicemail phrasing.
// Matches in the first 60 seconds of the call carry double weight since
// voicemail greetings play at the start of a call, and live human phrases
// in that window reduce the score.
func (d *Detector) analyzeTranscriptKeywords(utterances []Utterance) *Signal {
	if len(utterances) == 0 {
		return nil
	}

	var first60Sec []string
	var allText []string

	for _, u := range utterances {
		text := strings.ToLower(u.Text)

		allText = append(allText, text)
		if u.StartOffset <= 60 {
			first60Sec = append(first60Sec, text)
		}
	}

	combinedText := strings.Join(allText, " ")
	earlyText := strings.Join(first60Sec, " ")

	var matchedKeywords []string
	var humanMatches []string
	voicemailScore := 0.0

	for _, keyword := range voicemailKeywords {
		if strings.Contains(earlyText, keyword) {
			matchedKeywords = append(matchedKeywords, keyword)
			voicemailScore += 2.0
		} else if strings.Contains(combinedText, keyword) {
			matchedKeywords = append(matchedKeywords, keyword)
			voicemailScore += 1.0
		}
	}

	for _, pattern := range voicemailPatterns {
		if pattern.MatchString(earlyText) {
			matchedKeywords = append(matchedKeywords, pattern.String())
			voicemailScore += 2.0
		} else if pattern.MatchString(combinedText) {
			matchedKeywords = append(matchedKeywords, pattern.String())
			voicemailScore += 1.0
		}
	}

	// Human phrases only count against the score when heard early
	for _, indicator := range humanIndicators {
		if strings.Contains(earlyText, indicator) {
			humanMatches = append(humanMatches, indicator)
		}
	}

	if len(matchedKeywords) == 0 {
		return nil
	}

	humanPenalty := float64(len(humanMatches)) * 0.5

	// Normalize to 0-1 scale
	rawConfidence := voicemailScore / 5.0
	if rawConfidence > 1.0 {
		rawConfidence = 1.0
	}

	adjustedConfidence := rawConfidence - humanPenalty*0.1
	if adjustedConfidence < 0 {
		adjustedConfidence = 0
	}

	if adjustedConfidence >= d.config.KeywordConfidenceThreshold {
		return &Signal{
			Type:       SignalKeyword,
			Confidence: adjustedConfidence,
			DetectedAt: time.Now().UTC(),
			Details: map[string]interface{}{
				"matched_keywords": matchedKeywords,
				"keyword_count":    len(matchedKeywords),
				"human_indicators": humanMatches,
				"voicemail_score":  voicemailScore,
				"human_penalty":    humanPenalty,
			},
		}
	}

	return nil
}
