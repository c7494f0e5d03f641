package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"atlas-server/pkg/errors"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestClient(t *testing.T, apiBase string) *Client {
	t.Helper()

	client, err := NewClient(newTestLogger(), ClientConfig{
		AccountSID:  "AC0000000000000000000000000000000",
		AuthToken:   "token",
		FromNumber:  "+15550001111",
		CallbackURL: "https://atlas.example.com",
		RecordCalls: true,
	})
	require.NoError(t, err)

	if apiBase != "" {
		client.apiBase = apiBase
	}
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(newTestLogger(), ClientConfig{AccountSID: "AC123"})
	assert.Error(t, err)
}

func TestPlaceCall(t *testing.T) {
	var gotForm url.Values

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm

		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC0000000000000000000000000000000", user)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid": "CA123", "status": "queued", "to": "+15552223333", "from": "+15550001111"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	result, err := client.PlaceCall(context.Background(), "+15552223333", "call-1")
	require.NoError(t, err)

	assert.Equal(t, "CA123", result.CallSID)
	assert.Equal(t, "queued", result.Status)

	assert.Equal(t, "+15552223333", gotForm.Get("To"))
	assert.Equal(t, "+15550001111", gotForm.Get("From"))
	assert.Equal(t, "DetectMessageEnd", gotForm.Get("MachineDetection"))
	assert.Equal(t, "30", gotForm.Get("MachineDetectionTimeout"))
	assert.Contains(t, gotForm.Get("Url"), "call_id=call-1")
	assert.Contains(t, gotForm.Get("Url"), "recording=true")
	assert.Equal(t, "https://atlas.example.com/webhooks/twilio/status", gotForm.Get("StatusCallback"))
	assert.Len(t, gotForm["StatusCallbackEvent"], 4)
}

func TestPlaceCallValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": 21211, "message": "Invalid 'To' Phone Number", "status": 400}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.PlaceCall(context.Background(), "bogus", "call-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidPhoneNumber))
}

func TestPlaceCallRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code": 20429, "message": "Too Many Requests", "status": 429}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.PlaceCall(context.Background(), "+15552223333", "call-3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrResourceExhausted))
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		twilio string
		want   string
	}{
		{"queued", StatusInitiated},
		{"ringing", StatusRinging},
		{"in-progress", StatusInProgress},
		{"completed", StatusCompleted},
		{"no-answer", StatusNoAnswer},
		{"busy", StatusBusy},
		{"canceled", "canceled"},
	}

	for _, tc := range tests {
		t.Run(tc.twilio, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeStatus(tc.twilio))
		})
	}
}

func TestIsFinalStatus(t *testing.T) {
	assert.True(t, IsFinalStatus(StatusCompleted))
	assert.True(t, IsFinalStatus(StatusNoAnswer))
	assert.True(t, IsFinalStatus(StatusBusy))
	assert.True(t, IsFinalStatus(StatusFailed))
	assert.False(t, IsFinalStatus(StatusRinging))
	assert.False(t, IsFinalStatus(StatusInProgress))
}

func TestParseStatusWebhook(t *testing.T) {
	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("CallStatus", "completed")
	form.Set("To", "+15552223333")
	form.Set("From", "+15550001111")
	form.Set("Direction", "outbound-api")
	form.Set("AnsweredBy", "machine_end_beep")
	form.Set("CallDuration", "42")

	r := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/status", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	webhook, err := ParseStatusWebhook(r)
	require.NoError(t, err)

	assert.Equal(t, "CA123", webhook.CallSID)
	assert.Equal(t, StatusCompleted, webhook.CallStatus)
	assert.Equal(t, "machine_end_beep", webhook.AnsweredBy)
	assert.Equal(t, 42, webhook.CallDuration)
}

func TestParseStatusWebhookMissingSID(t *testing.T) {
	form := url.Values{}
	form.Set("CallStatus", "ringing")

	r := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/status", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err := ParseStatusWebhook(r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidWebhook))
}

func TestParseRecordingWebhook(t *testing.T) {
	form := url.Values{}
	form.Set("RecordingSid", "RE123")
	form.Set("RecordingUrl", "https://api.twilio.com/recording/RE123")
	form.Set("RecordingStatus", "completed")
	form.Set("RecordingDuration", "31")
	form.Set("CallSid", "CA123")

	r := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/recording", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	webhook, err := ParseRecordingWebhook(r)
	require.NoError(t, err)

	assert.Equal(t, "RE123", webhook.RecordingSID)
	assert.Equal(t, "CA123", webhook.CallSID)
	assert.Equal(t, 31, webhook.RecordingDuration)
}

func TestGenerateTwiML(t *testing.T) {
	twiml, err := GenerateTwiML(TwiMLOptions{
		RecordCall:  true,
		CallbackURL: "https://atlas.example.com",
	})
	require.NoError(t, err)

	assert.Contains(t, twiml, "<Response>")
	assert.Contains(t, twiml, "may be recorded")
	assert.Contains(t, twiml, "leave a message after the beep")
	assert.Contains(t, twiml, `recordingStatusCallback="https://atlas.example.com/webhooks/twilio/recording"`)
	assert.Contains(t, twiml, "<Hangup>")
}

func TestGenerateTwiMLCustomScriptNoRecording(t *testing.T) {
	twiml, err := GenerateTwiML(TwiMLOptions{
		Script:     "Hi, this is a reminder about your appointment.",
		RecordCall: false,
	})
	require.NoError(t, err)

	assert.Contains(t, twiml, "reminder about your appointment")
	assert.NotContains(t, twiml, "<Record")
}
