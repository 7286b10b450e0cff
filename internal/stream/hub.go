package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/kdimtricp/vtrack/internal/detect"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Messages queued per client before new ones are dropped.
	ClientSendBufferSize = 16
)

// DetectionLookup returns the latest detections of a stream.
type DetectionLookup func(streamID string) ([]detect.TrackedObject, bool)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outgoing struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type detectionsRequest struct {
	StreamID string `json:"stream_id"`
}

type DetectionsMessage struct {
	StreamID   string                 `json:"stream_id"`
	Detections []detect.TrackedObject `json:"detections"`
	Timestamp  float64                `json:"timestamp"`
}

type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type client struct {
	id        int64
	namespace string
	conn      *websocket.Conn
	send      chan []byte
}

// Hub is the push transport: it fans messages out to websocket clients by
// namespace. Publish never blocks; a client whose queue is full misses the
// message.
type Hub struct {
	log      logs.Log
	lookup   DetectionLookup
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	nextID  atomic.Int64
	sent    atomic.Uint64
	dropped atomic.Uint64
}

func NewHub(log logs.Log, lookup DetectionLookup) *Hub {
	return &Hub{
		log:    log,
		lookup: lookup,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*client]struct{}),
	}
}

// HubStats counts delivered and dropped messages over all clients.
type HubStats struct {
	Clients int    `json:"clients"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return HubStats{Clients: n, Sent: h.sent.Load(), Dropped: h.dropped.Load()}
}

func (h *Hub) Publish(namespace, event string, payload any) {
	msg, err := json.Marshal(outgoing{Event: event, Data: payload})
	if err != nil {
		h.log.Errorf("Failed to encode %v message: %v", event, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.namespace != namespace {
			continue
		}
		select {
		case c.send <- msg:
			h.sent.Add(1)
		default:
			h.dropped.Add(1)
		}
	}
}

// Handler upgrades requests to websocket clients of namespace.
func (h *Hub) Handler(namespace string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warnf("WebSocket upgrade failed: %v", err)
			return
		}

		c := &client{
			id:        h.nextID.Add(1),
			namespace: namespace,
			conn:      conn,
			send:      make(chan []byte, ClientSendBufferSize),
		}
		if !h.register(c) {
			conn.Close()
			return
		}
		h.log.Infof("WebSocket client %v connected to %v from %v", c.id, namespace, conn.RemoteAddr())

		go h.writer(c)
		h.reply(c, EventConnect, map[string]any{
			"status":    "connected",
			"timestamp": Timestamp(time.Now()),
		})
		h.reader(c)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// reply queues a message for one client only.
func (h *Hub) reply(c *client, event string, payload any) {
	msg, err := json.Marshal(outgoing{Event: event, Data: payload})
	if err != nil {
		h.log.Errorf("Failed to encode %v reply: %v", event, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hub) reader(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		h.log.Infof("WebSocket client %v disconnected", c.id)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warnf("WebSocket client %v read error: %v", c.id, err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.reply(c, EventError, ErrorMessage{Code: "invalid_message", Message: err.Error()})
			continue
		}

		switch env.Event {
		case "get_detections":
			h.handleGetDetections(c, env.Data)
		default:
			h.reply(c, EventError, ErrorMessage{Code: "unknown_event", Message: fmt.Sprintf("Unknown event: %v", env.Event)})
		}
	}
}

func (h *Hub) handleGetDetections(c *client, data json.RawMessage) {
	var req detectionsRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			h.reply(c, EventError, ErrorMessage{Code: "detection_error", Message: err.Error()})
			return
		}
	}

	var detections []detect.TrackedObject
	ok := false
	if req.StreamID != "" && h.lookup != nil {
		detections, ok = h.lookup(req.StreamID)
	}
	if !ok {
		h.reply(c, EventError, ErrorMessage{
			Code:    "detection_error",
			Message: fmt.Sprintf("Invalid stream ID: %v", req.StreamID),
		})
		return
	}

	h.reply(c, EventDetections, DetectionsMessage{
		StreamID:   req.StreamID,
		Detections: detections,
		Timestamp:  Timestamp(time.Now()),
	})
}

func (h *Hub) writer(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
