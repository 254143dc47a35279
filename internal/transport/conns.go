// Package transport serves live sessions over WebSocket.
package transport

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Conns tracks the WebSocket connection attached to each session. A session
// has at most one connection; attaching a second replaces the first.
type Conns struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewConns creates an empty registry.
func NewConns() *Conns {
	return &Conns{active: make(map[string]*websocket.Conn)}
}

// Register attaches conn to a session, closing any previous connection.
func (c *Conns) Register(sessionID string, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.active[sessionID]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	c.active[sessionID] = conn
	slog.Info("Session connection registered", "session_id", sessionID)
}

// Unregister detaches conn, unless it has already been replaced.
func (c *Conns) Unregister(sessionID string, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if current, ok := c.active[sessionID]; ok && current == conn {
		delete(c.active, sessionID)
		slog.Info("Session connection unregistered", "session_id", sessionID)
	}
}

// CloseSession closes the connection attached to a session, if any.
func (c *Conns) CloseSession(sessionID string) {
	c.mu.Lock()
	conn, ok := c.active[sessionID]
	delete(c.active, sessionID)
	c.mu.Unlock()

	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	slog.Info("Session connection closed", "session_id", sessionID)
}

// Len returns the number of attached connections.
func (c *Conns) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.active)
}
