package app

import (
	"sync"
	"time"
)

// SessionRegistry tracks which client session is bound to which agent.
// A session binds on join_workspace; later tool calls resolve their
// caller through it. Multiple transports share one registry (the
// /execute clientId and MCP session IDs live in the same namespace).
type SessionRegistry struct {
	mu           sync.RWMutex
	sessions     map[string]string    // sessionID → agentID
	agents       map[string]string    // agentID → sessionID (reverse lookup)
	lastActivity map[string]time.Time // sessionID → last tool call
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions:     make(map[string]string),
		agents:       make(map[string]string),
		lastActivity: make(map[string]time.Time),
	}
}

// Bind associates a session with an agent ID. A previous binding of the
// same agent to another session is dropped.
func (r *SessionRegistry) Bind(sessionID, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if oldSID, ok := r.agents[agentID]; ok && oldSID != sessionID {
		delete(r.sessions, oldSID)
		delete(r.lastActivity, oldSID)
	}
	r.sessions[sessionID] = agentID
	r.agents[agentID] = sessionID
	r.lastActivity[sessionID] = time.Now()
}

// AgentFor returns the agent ID bound to a session, or "" if unknown.
func (r *SessionRegistry) AgentFor(sessionID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}

// SessionFor returns the session bound to an agent, or "".
func (r *SessionRegistry) SessionFor(agentID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[agentID]
}

// Touch records activity for a session (call on each tool invocation).
func (r *SessionRegistry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; ok {
		r.lastActivity[sessionID] = time.Now()
	}
}

// Remove unregisters a session (e.g. on disconnect).
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agentID, ok := r.sessions[sessionID]; ok {
		delete(r.agents, agentID)
	}
	delete(r.sessions, sessionID)
	delete(r.lastActivity, sessionID)
}

// Count returns the number of bound agents.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
