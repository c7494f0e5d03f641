package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"atlas-server/pkg/detector"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Event types pushed over the WebSocket
const (
	EventTypeTranscript = "transcript"
	EventTypeDetection  = "detection"
)

// EventMessage is the envelope for realtime events pushed to clients
type EventMessage struct {
	Type      string      `json:"type"`
	CallSID   string      `json:"call_sid"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TranscriptPayload carries one utterance over the WebSocket
type TranscriptPayload struct {
	Speaker     string  `json:"speaker"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	StartOffset float64 `json:"start_offset"`
	IsFinal     bool    `json:"is_final"`
}

// Client represents a connected WebSocket client
type Client struct {
	hub     *EventHub
	conn    *websocket.Conn
	send    chan []byte
	logger  *logrus.Logger
	callSID string // Set when the client subscribes to a single call
}

// EventHub manages WebSocket clients and broadcasts call events.
// It implements transcript.Listener so it can be attached directly to
// the transcript service.
type EventHub struct {
	logger          *logrus.Logger
	clients         map[*Client]bool
	callSubscribers map[string]map[*Client]bool
	broadcast       chan *EventMessage
	register        chan *Client
	unregister      chan *Client
	mutex           sync.RWMutex
	running         atomic.Bool
}

// WebSocketUpgrader configures the WebSocket connection
var WebSocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all connections
		return true
	},
}

// NewEventHub creates a new event hub
func NewEventHub(logger *logrus.Logger) *EventHub {
	return &EventHub{
		logger:          logger,
		clients:         make(map[*Client]bool),
		callSubscribers: make(map[string]map[*Client]bool),
		broadcast:       make(chan *EventMessage, 64),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
	}
}

// Run starts the event hub
func (h *EventHub) Run(ctx context.Context) {
	h.logger.Info("Starting WebSocket event hub")
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Shutting down WebSocket event hub")
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true

			if client.callSID != "" {
				if _, exists := h.callSubscribers[client.callSID]; !exists {
					h.callSubscribers[client.callSID] = make(map[*Client]bool)
				}
				h.callSubscribers[client.callSID][client] = true
				h.logger.WithField("call_sid", client.callSID).Info("Client subscribed to specific call")
			}

			h.mutex.Unlock()
			h.logger.Info("Client connected to WebSocket")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)

				if client.callSID != "" {
					if subscribers, exists := h.callSubscribers[client.callSID]; exists {
						delete(subscribers, client)
						if len(subscribers) == 0 {
							delete(h.callSubscribers, client.callSID)
						}
					}
				}

				h.logger.Info("Client disconnected from WebSocket")
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.WithError(err).Error("Failed to marshal event message")
				continue
			}

			h.mutex.Lock()

			// Send to subscribers of this specific call
			if subscribers, exists := h.callSubscribers[message.CallSID]; exists {
				for client := range subscribers {
					select {
					case client.send <- data:
					default:
						close(client.send)
						delete(h.clients, client)
						delete(subscribers, client)
					}
				}
			}

			// Also broadcast to clients that want all events
			for client := range h.clients {
				if client.callSID != "" {
					continue
				}

				select {
				case client.send <- data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}

			h.mutex.Unlock()
		}
	}
}

// BroadcastDetection pushes a detection result to connected clients
func (h *EventHub) BroadcastDetection(result *detector.Result) {
	if result == nil {
		return
	}

	h.enqueue(&EventMessage{
		Type:      EventTypeDetection,
		CallSID:   result.CallSID,
		Timestamp: time.Now().UTC(),
		Payload:   result,
	})
}

// OnUtterance pushes a transcript utterance to connected clients
func (h *EventHub) OnUtterance(callSID string, utterance detector.Utterance, isFinal bool) {
	h.enqueue(&EventMessage{
		Type:      EventTypeTranscript,
		CallSID:   callSID,
		Timestamp: time.Now().UTC(),
		Payload: TranscriptPayload{
			Speaker:     utterance.Speaker,
			Text:        utterance.Text,
			Confidence:  utterance.Confidence,
			StartOffset: utterance.StartOffset,
			IsFinal:     isFinal,
		},
	})
}

func (h *EventHub) enqueue(message *EventMessage) {
	if !h.running.Load() {
		return
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Event hub broadcast queue full, dropping message")
	}
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// IsRunning returns true if the hub is processing events
func (h *EventHub) IsRunning() bool {
	return h.running.Load()
}

// ServeWs handles WebSocket requests from clients
func (h *EventHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := WebSocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade connection to WebSocket")
		return
	}

	// Optional single-call subscription
	callSID := r.URL.Query().Get("call_sid")

	client := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, 256),
		logger:  h.logger,
		callSID: callSID,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// eventsWebSocketHandler exposes the hub on the server mux
func (s *Server) eventsWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "websocket hub not available", http.StatusServiceUnavailable)
		return
	}

	s.hub.ServeWs(w, r)
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(60 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client messages so pings and close frames are handled
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
