// Package docsession manages per-file collaborative document sessions:
// an embedded CRDT document, the connected editor channels, per-editor
// awareness, and deferred GC of empty sessions.
package docsession

import (
	"log"
	"sync"
	"time"

	"github.com/jaakkos/synapse/internal/crdt"
)

// Channel is one connected editor transport. The manager never owns a
// channel; it only pushes frames and forgets channels on leave.
// Writes to a closed channel must be dropped by the implementation.
type Channel interface {
	SendBinary(data []byte) error
	SendJSON(v any) error
}

// Awareness is transient per-editor metadata, not part of document content.
type Awareness struct {
	AgentID     string `json:"agentId"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Environment string `json:"environment,omitempty"`
	Color       string `json:"color"`
	Cursor      *int   `json:"cursor,omitempty"`
	IsTyping    bool   `json:"isTyping"`
}

// AwarenessPatch is a partial awareness update (cursor, typing flag).
type AwarenessPatch struct {
	Cursor   *int  `json:"cursor,omitempty"`
	IsTyping *bool `json:"isTyping,omitempty"`
}

// SessionMeta is the listing view of a session.
type SessionMeta struct {
	Path         string    `json:"path"`
	Editors      int       `json:"editors"`
	UpdateCount  int       `json:"updateCount"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// session is one live document. Channels and awareness entries are
// non-owning references; the manager controls the lifetime.
type session struct {
	path         string
	doc          *crdt.Doc
	channels     map[Channel]string // channel → agentID
	awareness    map[string]*Awareness
	createdAt    time.Time
	lastActivity time.Time
	updateCount  int
	gcTimer      *time.Timer
}

// Manager owns all document sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	gcDelay  func() time.Duration
	logger   *log.Logger
}

// NewManager creates a session manager. gcDelay is read per arm so a
// config reload applies to sessions emptied afterwards.
func NewManager(gcDelay func() time.Duration, logger *log.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*session),
		gcDelay:  gcDelay,
		logger:   logger,
	}
}

// Create opens a session for path, inserting initial text into the
// embedded document. Idempotent: an existing session is returned
// unchanged and created=false.
func (m *Manager) Create(path, initial string) (created bool, meta SessionMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[path]; ok {
		return false, s.meta()
	}

	now := time.Now()
	s := &session{
		path:         path,
		doc:          crdt.NewDoc("hub:" + path),
		channels:     make(map[Channel]string),
		awareness:    make(map[string]*Awareness),
		createdAt:    now,
		lastActivity: now,
	}
	if initial != "" {
		s.doc.InsertAt(0, initial)
	}
	m.sessions[path] = s
	m.logger.Printf("Doc session created: %s (%d bytes initial)", path, len(initial))
	return true, s.meta()
}

// Join adds a channel to the session's editor set and installs an
// awareness entry. Returns false if the doc does not exist — callers
// must Create first.
func (m *Manager) Join(path string, ch Channel, agentID, name, role, environment string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[path]
	if !ok {
		return false
	}
	if s.gcTimer != nil {
		s.gcTimer.Stop()
		s.gcTimer = nil
	}
	s.channels[ch] = agentID
	s.awareness[agentID] = &Awareness{
		AgentID:     agentID,
		Name:        name,
		Role:        role,
		Environment: environment,
		Color:       ColorFor(agentID),
	}
	s.lastActivity = time.Now()
	return true
}

// Leave removes a channel and its awareness entry. When the editor set
// empties, a GC timer is armed; the session survives if someone rejoins
// before it fires.
func (m *Manager) Leave(path string, ch Channel, agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[path]
	if !ok {
		return
	}
	if agentID == "" {
		agentID = s.channels[ch]
	}
	delete(s.channels, ch)
	if agentID != "" {
		stillPresent := false
		for _, other := range s.channels {
			if other == agentID {
				stillPresent = true
				break
			}
		}
		if !stillPresent {
			delete(s.awareness, agentID)
		}
	}
	s.lastActivity = time.Now()

	if len(s.channels) == 0 {
		m.armGC(s)
	} else {
		m.broadcastAwarenessLocked(s, agentID, nil)
	}
}

// ApplyUpdate applies CRDT update bytes to the document and broadcasts
// the identical bytes to every editor channel except the sender.
func (m *Manager) ApplyUpdate(path string, data []byte, sender Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[path]
	if !ok {
		return ErrNoSession
	}
	update, err := crdt.DecodeUpdate(data)
	if err != nil {
		return err
	}
	if err := s.doc.Apply(update); err != nil {
		return err
	}
	s.updateCount++
	s.lastActivity = time.Now()

	for ch := range s.channels {
		if ch == sender {
			continue
		}
		_ = ch.SendBinary(data) // closed peers drop the write
	}
	return nil
}

// UpdateAwareness merges a patch into an editor's awareness entry and
// broadcasts the full editor roster to every peer channel.
func (m *Manager) UpdateAwareness(path, agentID string, patch AwarenessPatch, sender Channel) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[path]
	if !ok {
		return false
	}
	a, ok := s.awareness[agentID]
	if !ok {
		return false
	}
	if patch.Cursor != nil {
		a.Cursor = patch.Cursor
	}
	if patch.IsTyping != nil {
		a.IsTyping = *patch.IsTyping
	}
	s.lastActivity = time.Now()
	m.broadcastAwarenessLocked(s, agentID, sender)
	return true
}

// Snapshot returns the full CRDT state of the document as update bytes.
func (m *Manager) Snapshot(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[path]
	if !ok {
		return nil, false
	}
	return s.doc.Snapshot().Encode(), true
}

// TextContent returns the document's logical text.
func (m *Manager) TextContent(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[path]
	if !ok {
		return "", false
	}
	return s.doc.Text(), true
}

// Editors returns the current awareness roster for a session.
func (m *Manager) Editors(path string) []Awareness {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[path]
	if !ok {
		return nil
	}
	return s.editorsLocked()
}

// ListSessions returns metadata for every live session.
func (m *Manager) ListSessions() []SessionMeta {
	m.mu.Lock()
	defer m.mu.Unlock()
	metas := make([]SessionMeta, 0, len(m.sessions))
	for _, s := range m.sessions {
		metas = append(metas, s.meta())
	}
	return metas
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// BroadcastAwareness pushes the roster for path to all peers except sender.
func (m *Manager) BroadcastAwareness(path, updatedBy string, sender Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[path]; ok {
		m.broadcastAwarenessLocked(s, updatedBy, sender)
	}
}

func (m *Manager) armGC(s *session) {
	if s.gcTimer != nil {
		s.gcTimer.Stop()
	}
	path := s.path
	s.gcTimer = time.AfterFunc(m.gcDelay(), func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		cur, ok := m.sessions[path]
		if !ok || len(cur.channels) > 0 {
			return
		}
		delete(m.sessions, path)
		m.logger.Printf("Doc session destroyed after idle grace: %s", path)
	})
}

// awarenessEnvelope is the JSON frame broadcast on roster changes.
type awarenessEnvelope struct {
	Type      string      `json:"type"`
	UpdatedBy string      `json:"updatedBy,omitempty"`
	Editors   []Awareness `json:"editors"`
}

func (m *Manager) broadcastAwarenessLocked(s *session, updatedBy string, sender Channel) {
	env := awarenessEnvelope{Type: "awareness", UpdatedBy: updatedBy, Editors: s.editorsLocked()}
	for ch := range s.channels {
		if ch == sender {
			continue
		}
		_ = ch.SendJSON(env)
	}
}

func (s *session) editorsLocked() []Awareness {
	editors := make([]Awareness, 0, len(s.awareness))
	for _, a := range s.awareness {
		editors = append(editors, *a)
	}
	return editors
}

func (s *session) meta() SessionMeta {
	return SessionMeta{
		Path:         s.path,
		Editors:      len(s.channels),
		UpdateCount:  s.updateCount,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}
