package messaging

import (
	"testing"

	"atlas-server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestAMQPClientCreation(t *testing.T) {
	logger := newTestLogger()
	metrics.Init(logger)

	client := NewAMQPClient(logger, AMQPConfig{
		URL:       "amqp://localhost:5672",
		QueueName: "atlas_detections",
	})

	if client == nil {
		t.Fatal("AMQP client should not be nil")
	}

	if client.IsConnected() {
		t.Error("client should not report connected before Connect")
	}

	if client.config.RoutingKey != "atlas_detections" {
		t.Errorf("routing key should default to queue name, got %s", client.config.RoutingKey)
	}

	if !client.config.Durable {
		t.Error("queues should default to durable")
	}
}

func TestConnectRequiresConfiguration(t *testing.T) {
	logger := newTestLogger()
	metrics.Init(logger)

	client := NewAMQPClient(logger, AMQPConfig{})
	if err := client.Connect(); err == nil {
		t.Error("Connect should fail without URL and queue name")
	}
}

func TestPublishWhenDisconnected(t *testing.T) {
	logger := newTestLogger()
	metrics.Init(logger)

	client := NewAMQPClient(logger, AMQPConfig{
		URL:       "amqp://localhost:5672",
		QueueName: "atlas_detections",
	})

	err := client.PublishDetection(DetectionEvent{
		CallSID:         "CA123",
		IsVoicemail:     true,
		Confidence:      0.95,
		DetectionMethod: "amd",
		SignalCount:     1,
	})
	if err == nil {
		t.Error("publish should fail when not connected")
	}

	err = client.PublishTranscript(TranscriptEvent{
		CallSID: "CA123",
		Text:    "please leave a message",
	})
	if err == nil {
		t.Error("transcript publish should fail when not connected")
	}
}

func TestDisconnectWithoutConnect(t *testing.T) {
	logger := newTestLogger()
	metrics.Init(logger)

	client := NewAMQPClient(logger, AMQPConfig{
		URL:       "amqp://localhost:5672",
		QueueName: "atlas_detections",
	})

	// Should be a no-op, not a panic
	client.Disconnect()
}
