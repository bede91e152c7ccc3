package server

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// sendQueueSize bounds the per-client outbound queue. Slow clients drop
// messages rather than stalling the data path.
const sendQueueSize = 64

// Client is one connected WebSocket control client.
type Client struct {
	conn *websocket.Conn
	send chan any
}

// Hub tracks connected clients and broadcasts events to them.
// It is safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Add registers a connection and returns its Client.
func (h *Hub) Add(conn *websocket.Conn) *Client {
	c := &Client{conn: conn, send: make(chan any, sendQueueSize)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	go c.writePump()
	return c
}

// Remove unregisters a client and closes its queue.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast queues a message for every connected client. Messages to
// clients with full queues are dropped.
func (h *Hub) Broadcast(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Send queues a message for one client, dropping it if the queue is full.
func (c *Client) Send(msg any) {
	defer func() {
		// Queue may close concurrently with a send from the data path.
		_ = recover()
	}()
	select {
	case c.send <- msg:
	default:
	}
}

// writePump serializes all writes to the connection.
func (c *Client) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			slog.Debug("websocket write failed", "error", err)
			return
		}
	}
}
