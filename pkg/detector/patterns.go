package detector

import "regexp"

// voicemailKeywords are greeting phrases commonly heard on answering
// machines and carrier voicemail systems. Matching is done on lowercased
// transcript text.
var voicemailKeywords = []string{
	// Standard greetings
	"leave a message",
	"leave your message",
	"at the beep",
	"after the beep",
	"after the tone",
	"at the tone",
	"please record your message",
	"record your message",
	"unable to answer",
	"can't come to the phone",
	"cannot come to the phone",
	"not available",
	"away from my phone",
	"away from the phone",
	"can't take your call",
	"cannot take your call",
	"you have reached the voicemail",
	"you've reached the voicemail",
	"you have reached",
	"you've reached",

	// Carrier/system messages
	"the person you are calling",
	"the person you have called",
	"the subscriber you have dialed",
	"the number you have dialed",
	"the customer you are calling",
	"mailbox is full",
	"voicemail box",
	"voice mailbox",
	"to leave a callback number",
	"if you'd like to leave a message",
	"if you would like to leave a message",

	// Professional voicemail
	"out of the office",
	"out of office",
	"business hours",
	"office hours",
	"press pound",
	"press star",
	"press 1",
	"press 2",
}

// humanIndicators are phrases that suggest a live person answered
var humanIndicators = []string{
	"hello",
	"hi there",
	"good morning",
	"good afternoon",
	"good evening",
	"how can i help",
	"how may i help",
	"speaking",
	"this is",
	"yes",
	"yeah",
}

// voicemailPatterns are compiled regex patterns for voicemail phrasing
// that keyword matching alone would miss
var voicemailPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)leave\s+(?:a\s+|your\s+)?message`),
	regexp.MustCompile(`(?i)after\s+the\s+(?:beep|tone)`),
	regexp.MustCompile(`(?i)at\s+the\s+(?:beep|tone)`),
	regexp.MustCompile(`(?i)(?:un)?able\s+to\s+(?:answer|take)`),
	regexp.MustCompile(`(?i)not\s+available`),
	regexp.MustCompile(`(?i)can'?t\s+(?:come\s+to|take)`),
	regexp.MustCompile(`(?i)you'?ve?\s+reached`),
	regexp.MustCompile(`(?i)voice\s*mail`),
	regexp.MustCompile(`(?i)mailbox`),
	regexp.MustCompile(`(?i)out\s+of\s+(?:the\s+)?office`),
	regexp.MustCompile(`(?i)business\s+hours`),
	regexp.MustCompile(`(?i)press\s+\d+`),
}
