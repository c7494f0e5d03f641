package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"atlas-server/pkg/detector"
	"atlas-server/pkg/metrics"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stdlibHandler(hub *EventHub) http.Handler {
	return http.HandlerFunc(hub.ServeWs)
}

func dialHub(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	url := strings.Replace(server.URL, "http", "ws", 1) + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *EventHub, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d clients", want)
}

func readEvent(t *testing.T, conn *websocket.Conn) EventMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event EventMessage
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestEventHubBroadcastsDetection(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	metrics.Init(logger)

	hub := NewEventHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	defer cancel()

	server := httptest.NewServer(stdlibHandler(hub))
	defer server.Close()

	conn := dialHub(t, server, "")
	waitForClients(t, hub, 1)

	hub.BroadcastDetection(&detector.Result{
		CallSID:         "CA100",
		IsVoicemail:     true,
		Confidence:      0.95,
		DetectionMethod: "amd",
		DetectedAt:      time.Now().UTC(),
	})

	event := readEvent(t, conn)
	assert.Equal(t, EventTypeDetection, event.Type)
	assert.Equal(t, "CA100", event.CallSID)
}

func TestEventHubCallSubscriptionFiltering(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	metrics.Init(logger)

	hub := NewEventHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	defer cancel()

	server := httptest.NewServer(stdlibHandler(hub))
	defer server.Close()

	subscribed := dialHub(t, server, "?call_sid=CA200")
	waitForClients(t, hub, 1)

	// An event for a different call must not reach the subscriber
	hub.OnUtterance("CA999", detector.Utterance{Text: "other call", Speaker: "callee"}, true)
	hub.OnUtterance("CA200", detector.Utterance{Text: "hello", Speaker: "callee", StartOffset: 0.4}, true)

	event := readEvent(t, subscribed)
	assert.Equal(t, EventTypeTranscript, event.Type)
	assert.Equal(t, "CA200", event.CallSID)

	payload, err := json.Marshal(event.Payload)
	require.NoError(t, err)

	var utterance TranscriptPayload
	require.NoError(t, json.Unmarshal(payload, &utterance))
	assert.Equal(t, "hello", utterance.Text)
	assert.True(t, utterance.IsFinal)
}

func TestEventHubDropsWhenStopped(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	metrics.Init(logger)

	hub := NewEventHub(logger)
	assert.False(t, hub.IsRunning())

	// Must not block when the hub is not running
	hub.BroadcastDetection(&detector.Result{CallSID: "CA300"})
}
