// Package messaging publishes detection and transcript events to AMQP
// for downstream consumers.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"atlas-server/pkg/metrics"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// DetectionEvent is published when a call's voicemail analysis completes
type DetectionEvent struct {
	CallSID         string                 `json:"call_sid"`
	IsVoicemail     bool                   `json:"is_voicemail"`
	Confidence      float64                `json:"confidence"`
	DetectionMethod string                 `json:"detection_method"`
	SignalCount     int                    `json:"signal_count"`
	Timestamp       time.Time              `json:"timestamp"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// TranscriptEvent is published when a final transcript utterance arrives
type TranscriptEvent struct {
	CallSID     string    `json:"call_sid"`
	Speaker     string    `json:"speaker"`
	Text        string    `json:"text"`
	Confidence  float64   `json:"confidence"`
	StartOffset float64   `json:"start_offset"`
	Timestamp   time.Time `json:"timestamp"`
}

// AMQPConfig holds AMQP client configuration
type AMQPConfig struct {
	URL          string
	QueueName    string
	ExchangeName string
	RoutingKey   string
	Durable      bool
	AutoDelete   bool
}

// AMQPClient handles AMQP connections and message publishing
type AMQPClient struct {
	logger    *logrus.Logger
	config    AMQPConfig
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
	connMutex sync.RWMutex
	stopChan  chan struct{}
}

// NewAMQPClient creates a new AMQP client
func NewAMQPClient(logger *logrus.Logger, config AMQPConfig) *AMQPClient {
	if config.RoutingKey == "" {
		config.RoutingKey = config.QueueName
	}
	config.Durable = true     // Default to durable queues
	config.AutoDelete = false // Default to persistent queues

	return &AMQPClient{
		logger:   logger,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Connect establishes a connection to the AMQP server
func (c *AMQPClient) Connect() error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	// Check if already connected
	if c.connected {
		return nil
	}

	if c.config.URL == "" || c.config.QueueName == "" {
		c.logger.Warn("AMQP_URL or AMQP_QUEUE_NAME not set, AMQP functionality will be disabled")
		return fmt.Errorf("AMQP URL or queue name not configured")
	}

	// Create a connection timeout context
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Use a separate goroutine with the timeout context
	connChan := make(chan struct {
		conn *amqp.Connection
		err  error
	}, 1)

	go func() {
		conn, err := amqp.Dial(c.config.URL)
		select {
		case <-ctx.Done():
			// Context already timed out, clean up and return
			if conn != nil {
				conn.Close()
			}
			return
		case connChan <- struct {
			conn *amqp.Connection
			err  error
		}{conn, err}:
		}
	}()

	// Wait for connection with timeout
	var conn *amqp.Connection
	var err error
	select {
	case result := <-connChan:
		conn = result.conn
		err = result.err
	case <-ctx.Done():
		metrics.AMQPConnectionErrors.WithLabelValues("timeout").Inc()
		return fmt.Errorf("connection to AMQP server timed out after 5 seconds")
	}

	if err != nil {
		metrics.AMQPConnectionErrors.WithLabelValues("dial").Inc()
		return fmt.Errorf("failed to connect to AMQP server: %w", err)
	}

	c.conn = conn

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		metrics.AMQPConnectionErrors.WithLabelValues("channel").Inc()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	c.channel = channel

	_, err = channel.QueueDeclare(
		c.config.QueueName,
		c.config.Durable,
		c.config.AutoDelete,
		false, // Exclusive
		false, // No-wait
		nil,   // Arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		metrics.AMQPConnectionErrors.WithLabelValues("queue_declare").Inc()
		return fmt.Errorf("failed to declare AMQP queue: %w", err)
	}

	// Set up channel Qos to prevent overloading the server
	err = channel.Qos(
		10,    // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to set QoS on AMQP channel, continuing anyway")
	}

	c.connected = true
	metrics.AMQPConnectionStatus.Set(1)
	c.logger.WithFields(logrus.Fields{
		"queue": c.config.QueueName,
	}).Info("Connected to AMQP server")

	// Create a new stop channel (in case this is a reconnect)
	c.stopChan = make(chan struct{})

	// Start monitoring for connection closing
	go c.monitorConnection()

	return nil
}

// Disconnect closes the AMQP connection
func (c *AMQPClient) Disconnect() {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if !c.connected {
		return
	}

	// Signal connection monitor to stop
	close(c.stopChan)

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}

	c.connected = false
	metrics.AMQPConnectionStatus.Set(0)
	c.logger.Info("Disconnected from AMQP server")
}

// IsConnected returns the connection status
func (c *AMQPClient) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.connected
}

// PublishDetection publishes a detection event to the AMQP queue
func (c *AMQPClient) PublishDetection(event DetectionEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return c.publish(event, event.CallSID)
}

// PublishTranscript publishes a transcript event to the AMQP queue
func (c *AMQPClient) PublishTranscript(event TranscriptEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return c.publish(event, event.CallSID)
}

// publish serializes and publishes one event with a hard deadline so a
// stalled broker never blocks call processing
func (c *AMQPClient) publish(payload interface{}, callSID string) error {
	// Recover from any panics to prevent AMQP issues from crashing the server
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logrus.Fields{
				"call_sid": callSID,
				"recover":  r,
			}).Error("Recovered from panic in AMQP publish")
		}
	}()

	if !c.IsConnected() {
		return fmt.Errorf("not connected to AMQP server")
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event to JSON: %w", err)
	}

	// Create a timeout context for publishing
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	publishChan := make(chan error, 1)
	go func() {
		c.connMutex.RLock()
		defer c.connMutex.RUnlock()

		// Check if still connected after acquiring the lock
		if !c.connected || c.channel == nil {
			select {
			case <-ctx.Done():
				return
			case publishChan <- fmt.Errorf("lost AMQP connection before publishing"):
			}
			return
		}

		err := c.channel.Publish(
			c.config.ExchangeName,
			c.config.RoutingKey,
			false, // Mandatory
			false, // Immediate
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         bodyBytes,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
				// Expire stale messages to prevent queue buildup when
				// consumers are down
				Expiration: "43200000", // 12 hours in milliseconds
			},
		)

		select {
		case <-ctx.Done():
			return
		case publishChan <- err:
		}
	}()

	// Wait for publish with timeout
	select {
	case err := <-publishChan:
		if err != nil {
			return fmt.Errorf("failed to publish event to AMQP: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("publishing to AMQP timed out after 200ms")
	}

	metrics.AMQPPublishedMessages.WithLabelValues(c.config.QueueName).Inc()
	c.logger.WithField("call_sid", callSID).Debug("Successfully published event to AMQP")
	return nil
}

// monitorConnection monitors the AMQP connection and attempts to reconnect if it closes
func (c *AMQPClient) monitorConnection() {
	closeChan := make(chan *amqp.Error)

	c.connMutex.RLock()
	if c.conn != nil {
		c.conn.NotifyClose(closeChan)
	}
	c.connMutex.RUnlock()

	for {
		select {
		case <-c.stopChan:
			return
		case closeErr := <-closeChan:
			c.connMutex.Lock()
			c.connected = false
			c.connMutex.Unlock()
			metrics.AMQPConnectionStatus.Set(0)

			c.logger.WithError(closeErr).Warn("AMQP connection closed, attempting to reconnect")

			// Attempt to reconnect with backoff
			for attempt := 1; attempt <= 10; attempt++ {
				c.logger.WithField("attempt", attempt).Info("Reconnecting to AMQP server")

				err := c.Connect()
				if err == nil {
					metrics.AMQPReconnectAttempts.WithLabelValues("success").Inc()
					c.logger.Info("Successfully reconnected to AMQP server")
					break
				}

				metrics.AMQPReconnectAttempts.WithLabelValues("failure").Inc()
				c.logger.WithError(err).WithField("attempt", attempt).Error("Failed to reconnect to AMQP server")

				// Exponential backoff with max delay of 30 seconds
				backoff := time.Duration(1<<uint(attempt-1)) * time.Second
				if backoff > 30*time.Second {
					backoff = 30 * time.Second
				}

				time.Sleep(backoff)
			}
		}
	}
}
