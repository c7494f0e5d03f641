// Package telephony wraps the Twilio REST API for placing outbound
// calls with answering machine detection, and parses the webhooks Twilio
// sends back.
package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"atlas-server/pkg/errors"
	"atlas-server/pkg/version"

	"github.com/sirupsen/logrus"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// ClientConfig holds Twilio credentials and call defaults
type ClientConfig struct {
	AccountSID  string
	AuthToken   string
	FromNumber  string
	CallbackURL string
	CallTimeout time.Duration
	RecordCalls bool
}

// Client is a Twilio REST API client for outbound voice calls
type Client struct {
	logger     *logrus.Logger
	config     ClientConfig
	httpClient *http.Client
	apiBase    string
}

// CallResult holds the provider's response to a call placement request
type CallResult struct {
	CallSID string `json:"sid"`
	Status  string `json:"status"`
	To      string `json:"to"`
	From    string `json:"from"`
}

// twilioAPIError is the JSON error body Twilio returns on failures
type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

// NewClient creates a Twilio client
func NewClient(logger *logrus.Logger, config ClientConfig) (*Client, error) {
	if config.AccountSID == "" || config.AuthToken == "" || config.FromNumber == "" {
		return nil, errors.New("missing Twilio configuration: account SID, auth token, and from number are required")
	}

	timeout := config.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		logger: logger,
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		apiBase: twilioAPIBase,
	}, nil
}

// PlaceCall initiates an outbound call with answering machine detection
// enabled. The voice and status callback URLs point back at this server.
func (c *Client) PlaceCall(ctx context.Context, toNumber, callID string) (*CallResult, error) {
	form := url.Values{}
	form.Set("To", toNumber)
	form.Set("From", c.config.FromNumber)

	voiceURL := fmt.Sprintf("%s/webhooks/twilio/voice?call_id=%s", c.config.CallbackURL, url.QueryEscape(callID))
	if c.config.RecordCalls {
		voiceURL += "&recording=true"
	}
	form.Set("Url", voiceURL)

	form.Set("StatusCallback", c.config.CallbackURL+"/webhooks/twilio/status")
	for _, event := range []string{"initiated", "ringing", "answered", "completed"} {
		form.Add("StatusCallbackEvent", event)
	}
	form.Set("StatusCallbackMethod", "POST")

	// Answering machine detection, tuned to wait for the full greeting
	form.Set("MachineDetection", "DetectMessageEnd")
	form.Set("MachineDetectionTimeout", "30")
	form.Set("MachineDetectionSpeechThreshold", "2400")
	form.Set("MachineDetectionSpeechEndThreshold", "1200")
	form.Set("MachineDetectionSilenceTimeout", "5000")

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", c.apiBase, c.config.AccountSID)

	body, err := c.post(ctx, endpoint, form)
	if err != nil {
		return nil, err
	}

	result := &CallResult{}
	if err := json.Unmarshal(body, result); err != nil {
		return nil, errors.Wrap(err, "failed to decode Twilio call response")
	}

	c.logger.WithFields(logrus.Fields{
		"call_sid": result.CallSID,
		"to":       toNumber,
		"status":   result.Status,
	}).Info("Outbound call initiated")

	return result, nil
}

// HangupCall terminates an active call
func (c *Client) HangupCall(ctx context.Context, callSID string) error {
	form := url.Values{}
	form.Set("Status", "completed")

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", c.apiBase, c.config.AccountSID, callSID)

	if _, err := c.post(ctx, endpoint, form); err != nil {
		return err
	}

	c.logger.WithField("call_sid", callSID).Info("Call terminated")
	return nil
}

// post sends a form-encoded request with basic auth and maps error
// responses to structured errors
func (c *Client) post(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build Twilio request")
	}

	req.SetBasicAuth(c.config.AccountSID, c.config.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrProviderFailure, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read Twilio response")
	}

	if resp.StatusCode >= 400 {
		return nil, c.mapAPIError(resp.StatusCode, body)
	}

	return body, nil
}

// Twilio error codes, see https://www.twilio.com/docs/api/errors
var validationErrorCodes = map[int]bool{
	21211: true, // Invalid 'To' Phone Number
	21217: true, // Phone number not verified (trial account)
	21401: true, // Invalid Phone Number
	21402: true, // Invalid URL
	21421: true, // PhoneNumber Requires a Local Address
	21422: true, // Invalid StatusCallback URL
	21603: true, // Cannot create Call without a valid phone number
	21604: true, // Not a valid SMS-capable inbound phone number
	14101: true, // Invalid 'To' Phone Number
	14102: true, // Invalid 'From' Phone Number
}

var resourceErrorCodes = map[int]bool{
	20404: true, // Resource not found
	21220: true, // Invalid call SID
}

// mapAPIError converts a Twilio error response to a structured error
func (c *Client) mapAPIError(statusCode int, body []byte) error {
	apiErr := &twilioAPIError{}
	if err := json.Unmarshal(body, apiErr); err != nil {
		return errors.NewProviderFailure(fmt.Sprintf("Twilio API error: HTTP %d", statusCode))
	}

	fields := map[string]interface{}{
		"twilio_code": apiErr.Code,
		"http_status": statusCode,
	}

	switch {
	case validationErrorCodes[apiErr.Code]:
		return errors.Wrap(errors.ErrInvalidPhoneNumber, apiErr.Message).
			WithFields(fields).WithCode("TWILIO_VALIDATION")
	case apiErr.Code == 20429 || statusCode == http.StatusTooManyRequests:
		return errors.Wrap(errors.ErrResourceExhausted, apiErr.Message).
			WithFields(fields).WithCode("TWILIO_RATE_LIMIT")
	case statusCode == http.StatusUnauthorized:
		return errors.Wrap(errors.ErrUnauthenticated, apiErr.Message).
			WithFields(fields).WithCode("TWILIO_AUTH")
	case resourceErrorCodes[apiErr.Code] || statusCode == http.StatusNotFound:
		return errors.Wrap(errors.ErrNotFound, apiErr.Message).
			WithFields(fields).WithCode("TWILIO_NOT_FOUND")
	default:
		return errors.Wrap(errors.ErrCallPlacementFailed, apiErr.Message).
			WithFields(fields).WithCode("TWILIO_ERROR_" + strconv.Itoa(apiErr.Code))
	}
}
