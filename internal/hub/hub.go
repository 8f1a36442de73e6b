// Package hub tracks connected overlay clients and fans server events out to
// them over websockets.
package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crierhq/crier/internal/observability"
	"github.com/crierhq/crier/internal/protocol"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// Client is one connected overlay page. Created by Register, torn down by
// Unregister; the embedded writer goroutine owns all writes to the socket.
type Client struct {
	conn *websocket.Conn
	send chan any
}

// Hub is the overlay client registry. Slow clients never block the pipeline:
// writes are queued per client and dropped when the queue is full.
type Hub struct {
	metrics *observability.Metrics
	log     *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func New(metrics *observability.Metrics, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		metrics: metrics,
		log:     log.With("component", "hub"),
		clients: make(map[*Client]struct{}),
	}
}

// Register adopts an upgraded connection and starts its writer. The caller
// keeps ownership of the read side and must call Unregister when the
// connection dies.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := &Client{conn: conn, send: make(chan any, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.ConnectedClients.Set(float64(n))
	h.log.Info("overlay client connected", "clients", n)
	go c.writeLoop()
	return c
}

// Unregister removes the client and stops its writer. Safe to call more than
// once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.ConnectedClients.Set(float64(n))
	h.log.Info("overlay client disconnected", "clients", n)
}

// Broadcast queues msg for every connected client.
func (h *Hub) Broadcast(typ protocol.MessageType, msg any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.enqueue(c, typ, msg)
	}
}

// Send queues msg for a single client. A no-op if the client is already gone.
func (h *Hub) Send(c *Client, typ protocol.MessageType, msg any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.enqueue(c, typ, msg)
}

// Count reports the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// enqueue runs under h.mu so a send can never race the channel close in
// Unregister.
func (h *Hub) enqueue(c *Client, typ protocol.MessageType, msg any) {
	select {
	case c.send <- msg:
		h.metrics.WSMessages.WithLabelValues("outbound", string(typ)).Inc()
	default:
		h.metrics.WSMessages.WithLabelValues("dropped", string(typ)).Inc()
		h.log.Warn("overlay send queue full, dropping message", "type", typ)
	}
}

func (c *Client) writeLoop() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			// Closing the socket kicks the read loop, which unregisters the
			// client; draining keeps us alive until the channel closes.
			_ = c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.Close()
}
