// Package collabchannel implements the bidirectional per-document
// editing channel over WebSocket: JSON envelopes for join, awareness
// and leave, raw binary frames for CRDT updates, and a ping/pong
// heartbeat that terminates unresponsive peers.
package collabchannel

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jaakkos/synapse/internal/docsession"
)

const writeWait = 10 * time.Second

// Handler upgrades /collab requests and speaks the editing protocol.
type Handler struct {
	mgr          *docsession.Manager
	logger       *log.Logger
	pingInterval time.Duration
	upgrader     websocket.Upgrader
}

// Option configures the handler.
type Option func(*Handler)

// WithPingInterval overrides the heartbeat period (default 30 s).
func WithPingInterval(d time.Duration) Option {
	return func(h *Handler) { h.pingInterval = d }
}

// NewHandler creates a collab channel handler.
func NewHandler(mgr *docsession.Manager, logger *log.Logger, opts ...Option) *Handler {
	h := &Handler{
		mgr:          mgr,
		logger:       logger,
		pingInterval: 30 * time.Second,
		upgrader: websocket.Upgrader{
			// The hub sits behind a trusted boundary; the outer
			// transport enforces origin policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP upgrades the connection and runs the channel until close.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("Collab: upgrade failed: %v", err)
		return
	}
	c := &channel{ws: ws}
	go h.heartbeat(c)
	h.readLoop(c)
}

// envelope is the JSON text-frame wire format. A single struct covers
// every inbound type; unknown fields are ignored.
type envelope struct {
	Type        string `json:"type"`
	Path        string `json:"path,omitempty"`
	AgentID     string `json:"agentId,omitempty"`
	Name        string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
	Environment string `json:"environment,omitempty"`
	Cursor      *int   `json:"cursor,omitempty"`
	IsTyping    *bool  `json:"isTyping,omitempty"`
}

// syncEnvelope carries the full CRDT state to a joining editor.
type syncEnvelope struct {
	Type     string `json:"type"`
	Snapshot []int  `json:"snapshot"`
}

type errorEnvelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (h *Handler) readLoop(c *channel) {
	defer h.teardown(c)

	refresh := func() {
		_ = c.ws.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	}
	refresh()
	c.ws.SetPongHandler(func(string) error {
		refresh()
		return nil
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		refresh()

		switch kind {
		case websocket.BinaryMessage:
			// CRDT update for the joined session; no-op before join.
			if c.path == "" {
				continue
			}
			if err := h.mgr.ApplyUpdate(c.path, data, c); err != nil {
				h.logger.Printf("Collab: update on %s rejected: %v", c.path, err)
				_ = c.SendJSON(errorEnvelope{Type: "error", Message: err.Error()})
			}

		case websocket.TextMessage:
			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				_ = c.SendJSON(errorEnvelope{Type: "error", Message: "invalid JSON: " + err.Error()})
				continue
			}
			h.dispatch(c, env)
		}
	}
}

func (h *Handler) dispatch(c *channel, env envelope) {
	switch env.Type {
	case "join":
		h.handleJoin(c, env)
	case "awareness":
		if c.path == "" {
			_ = c.SendJSON(errorEnvelope{Type: "error", Message: "not joined"})
			return
		}
		h.mgr.UpdateAwareness(c.path, c.agentID, docsession.AwarenessPatch{
			Cursor:   env.Cursor,
			IsTyping: env.IsTyping,
		}, c)
	case "leave":
		if c.path != "" {
			h.mgr.Leave(c.path, c, c.agentID)
			c.path, c.agentID = "", ""
		}
		_ = c.ws.Close()
	default:
		_ = c.SendJSON(errorEnvelope{
			Type:    "error",
			Message: fmt.Sprintf("Unknown message type: %s", env.Type),
		})
	}
}

func (h *Handler) handleJoin(c *channel, env envelope) {
	if env.Path == "" {
		_ = c.SendJSON(errorEnvelope{Type: "error", Message: "join requires a path"})
		return
	}
	agentID := env.AgentID
	if agentID == "" {
		agentID = fmt.Sprintf("anon-%p", c)
	}
	if !h.mgr.Join(env.Path, c, agentID, env.Name, env.Role, env.Environment) {
		_ = c.SendJSON(errorEnvelope{Type: "error", Message: "no such document: " + env.Path})
		return
	}
	// Rebinding to another doc leaves the old one, so its editor set can
	// empty out and GC.
	if c.path != "" && c.path != env.Path {
		h.mgr.Leave(c.path, c, c.agentID)
	}
	c.path, c.agentID = env.Path, agentID

	snap, _ := h.mgr.Snapshot(env.Path)
	_ = c.SendJSON(syncEnvelope{Type: "sync", Snapshot: toIntSlice(snap)})

	// Roster goes to every channel on the session, the joiner included.
	h.mgr.BroadcastAwareness(env.Path, agentID, nil)
}

// teardown leaves the session on close and notifies peers.
func (h *Handler) teardown(c *channel) {
	c.markClosed()
	_ = c.ws.Close()
	if c.path != "" {
		path, agentID := c.path, c.agentID
		c.path, c.agentID = "", ""
		h.mgr.Leave(path, c, agentID)
	}
}

// heartbeat pings the peer; a peer that misses a pong past the read
// deadline fails the next read and the channel is torn down.
func (h *Handler) heartbeat(c *channel) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for range ticker.C {
		if c.isClosed() {
			return
		}
		c.mu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.ws.WriteMessage(websocket.PingMessage, nil)
		c.mu.Unlock()
		if err != nil {
			return
		}
	}
}

// channel is one WebSocket connection; it implements
// docsession.Channel. Writes after close are dropped silently.
type channel struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	closed  bool
	path    string // joined doc, "" while in NEW state
	agentID string
}

func (c *channel) SendBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *channel) SendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *channel) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func toIntSlice(data []byte) []int {
	out := make([]int, len(data))
	for i, b := range data {
		out[i] = int(b)
	}
	return out
}
