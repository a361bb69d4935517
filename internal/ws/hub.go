// Package ws streams processed frames to browser clients over WebSocket.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oskar-77/OskarTrackSystem33/internal/monitoring"
	"github.com/oskar-77/OskarTrackSystem33/internal/pipeline"
)

var logf = monitoring.Component("WS")

const writeWait = 10 * time.Second

// FrameMessage is broadcast for every processed frame.
type FrameMessage struct {
	Type       string            `json:"type"`
	FrameIndex int               `json:"frame_index"`
	Timestamp  time.Time         `json:"timestamp"`
	Analysis   pipeline.Analysis `json:"analysis"`
}

// EchoMessage answers a text message sent by a client.
type EchoMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// client serialises writes to one connection; gorilla connections allow a
// single concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// Hub tracks connected clients and fans messages out to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	now     func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		now:     time.Now,
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	logf("client registered (total: %d)", n)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
		logf("client unregistered")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends data as a text message to every client. Clients that
// fail to receive it are dropped.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(websocket.TextMessage, data); err != nil {
			logf("error sending to client: %v", err)
			h.unregister(c)
		}
	}
}

// BroadcastJSON marshals v and broadcasts it.
func (h *Hub) BroadcastJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logf("error marshaling message: %v", err)
		return
	}
	h.Broadcast(data)
}

func (h *Hub) sendJSON(c *client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logf("error marshaling message: %v", err)
		return
	}
	if err := c.write(websocket.TextMessage, data); err != nil {
		h.unregister(c)
	}
}

// OnFrameResult implements pipeline.ResultSink.
func (h *Hub) OnFrameResult(frameIndex int, res *pipeline.FrameResult) {
	if h.ClientCount() == 0 {
		return
	}
	h.BroadcastJSON(FrameMessage{
		Type:       "frame",
		FrameIndex: frameIndex,
		Timestamp:  h.now().UTC(),
		Analysis:   res.Analysis(),
	})
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	targets := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range targets {
		_ = c.conn.Close()
	}
}
