package telephony

import (
	"encoding/xml"
	"fmt"
)

// TwiML documents returned to Twilio's voice webhook. Only the verbs
// this server emits are modeled.

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Says    []twimlSay   `xml:"Say"`
	Record  *twimlRecord `xml:"Record,omitempty"`
	Hangup  *struct{}    `xml:"Hangup,omitempty"`
}

type twimlSay struct {
	Voice string `xml:"voice,attr"`
	Text  string `xml:",chardata"`
}

type twimlRecord struct {
	MaxLength                     int    `xml:"maxLength,attr"`
	Timeout                       int    `xml:"timeout,attr"`
	Trim                          string `xml:"trim,attr"`
	RecordingStatusCallback       string `xml:"recordingStatusCallback,attr"`
	RecordingStatusCallbackMethod string `xml:"recordingStatusCallbackMethod,attr"`
}

const consentMessage = "This call may be recorded for quality assurance and training purposes. " +
	"By remaining on the line, you consent to this recording. " +
	"If you do not consent, please hang up now."

const defaultScript = "Thank you for answering. Please leave a message after the beep."

// TwiMLOptions controls the generated voice response
type TwiMLOptions struct {
	Script      string
	RecordCall  bool
	CallbackURL string
}

// GenerateTwiML builds the voice response document for an answered call
func GenerateTwiML(opts TwiMLOptions) (string, error) {
	response := twimlResponse{}

	response.Says = append(response.Says, twimlSay{Voice: "alice", Text: consentMessage})

	script := opts.Script
	if script == "" {
		script = defaultScript
	}
	response.Says = append(response.Says, twimlSay{Voice: "alice", Text: script})

	if opts.RecordCall {
		response.Record = &twimlRecord{
			MaxLength:                     3600,
			Timeout:                       5,
			Trim:                          "trim-silence",
			RecordingStatusCallback:       opts.CallbackURL + "/webhooks/twilio/recording",
			RecordingStatusCallbackMethod: "POST",
		}
	}

	response.Hangup = &struct{}{}

	body, err := xml.MarshalIndent(response, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal TwiML: %w", err)
	}

	return xml.Header + string(body), nil
}
