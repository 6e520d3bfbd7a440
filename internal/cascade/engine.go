// Package cascade propagates API contract changes to the frontend
// components bound to them, and provides a coarse merge policy for
// agents editing the same file outside a CRDT session. Every action
// lands in a bounded event log that subscribers consume synchronously.
package cascade

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaakkos/synapse/internal/domain"
)

// Subscriber receives cascade events synchronously, in registration
// order. A panicking subscriber is logged and skipped.
type Subscriber func(domain.CascadeEvent)

// Engine owns the contract registry, frontend bindings, file-session
// rosters and the cascade log.
type Engine struct {
	mu          sync.Mutex
	contracts   map[string]*domain.APIContract
	bindings    map[string]*domain.FrontendBinding
	rosters     map[string]map[string]bool // path → agent set
	pending     map[string][]domain.FileChange
	events      []domain.CascadeEvent
	subscribers []Subscriber
	bump        func()
	logger      *log.Logger
	now         func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a cascade engine. bump is called after every
// observable change; pass a no-op if nothing subscribes.
func NewEngine(bump func(), logger *log.Logger, opts ...Option) *Engine {
	if bump == nil {
		bump = func() {}
	}
	e := &Engine{
		contracts: make(map[string]*domain.APIContract),
		bindings:  make(map[string]*domain.FrontendBinding),
		rosters:   make(map[string]map[string]bool),
		pending:   make(map[string][]domain.FileChange),
		bump:      bump,
		logger:    logger,
		now:       time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Subscribe registers a synchronous event consumer.
func (e *Engine) Subscribe(s Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, s)
}

// emitLocked appends to the log ring and fans out. Callers hold e.mu.
func (e *Engine) emitLocked(eventType, source, target string, details map[string]any) domain.CascadeEvent {
	event := domain.CascadeEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Target:    target,
		Details:   details,
		Timestamp: e.now(),
	}
	e.events = append(e.events, event)
	if len(e.events) > domain.MaxCascadeEvents {
		e.events = e.events[len(e.events)-domain.MaxCascadeEvents:]
	}
	for _, s := range e.subscribers {
		e.deliver(s, event)
	}
	return event
}

func (e *Engine) deliver(s Subscriber, event domain.CascadeEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("Cascade: subscriber panic on %s: %v", event.Type, r)
		}
	}()
	s(event)
}

// RegisterContract declares or updates an API contract. A schema change
// marks every binding on the contract as needing an update.
func (e *Engine) RegisterContract(c domain.APIContract) (*domain.APIContract, error) {
	if c.Method == "" || c.Endpoint == "" {
		return nil, fmt.Errorf("%w: contract requires method and endpoint", domain.ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	key := c.Key()
	existing, ok := e.contracts[key]
	if !ok {
		c.Version = 1
		c.LastUpdated = e.now()
		e.contracts[key] = &c
		e.emitLocked(domain.EventEndpointAdded, key, "", map[string]any{
			"method":   c.Method,
			"endpoint": c.Endpoint,
		})
		e.bump()
		copied := c
		return &copied, nil
	}

	reqDelta := diffSchema(existing.Request, c.Request)
	respDelta := diffSchema(existing.Response, c.Response)
	if reqDelta.empty() && respDelta.empty() {
		copied := *existing
		return &copied, nil // no schema change, no event
	}

	existing.Request = c.Request
	existing.Response = c.Response
	existing.Version++
	existing.LastUpdated = e.now()

	if reqDelta.pointwise() && respDelta.pointwise() {
		for _, name := range append(reqDelta.Modified, respDelta.Modified...) {
			e.emitLocked(domain.EventFieldChanged, key, "", map[string]any{
				"field":   name,
				"version": existing.Version,
			})
		}
	} else {
		e.emitLocked(domain.EventContractChanged, key, "", map[string]any{
			"version":        existing.Version,
			"addedFields":    append(reqDelta.Added, respDelta.Added...),
			"removedFields":  append(reqDelta.Removed, respDelta.Removed...),
			"modifiedFields": append(reqDelta.Modified, respDelta.Modified...),
		})
	}

	for _, b := range e.bindings {
		if b.Endpoint != key {
			continue
		}
		b.NeedsUpdate = true
		e.emitLocked(domain.EventFrontendAdapted, key, b.ComponentID, map[string]any{
			"component": b.ComponentName,
			"version":   existing.Version,
		})
	}

	e.bump()
	copied := *existing
	return &copied, nil
}

// Contract returns a copy of the contract by key.
func (e *Engine) Contract(key string) (*domain.APIContract, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contracts[key]
	if !ok {
		return nil, fmt.Errorf("%w: contract %s", domain.ErrNotFound, key)
	}
	copied := *c
	return &copied, nil
}

// BindFrontend declares a component's dependency on a contract.
func (e *Engine) BindFrontend(b domain.FrontendBinding) (*domain.FrontendBinding, error) {
	if b.ComponentID == "" || b.Endpoint == "" {
		return nil, fmt.Errorf("%w: binding requires componentId and endpoint", domain.ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	b.LastSynced = e.now()
	b.NeedsUpdate = false
	e.bindings[b.ComponentID] = &b
	e.bump()
	copied := b
	return &copied, nil
}

// OutdatedComponents lists bindings whose contract moved under them.
func (e *Engine) OutdatedComponents() []domain.FrontendBinding {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.FrontendBinding, 0)
	for _, b := range e.bindings {
		if b.NeedsUpdate {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ComponentID < out[j].ComponentID })
	return out
}

// MarkBindingSynced records that the component caught up.
func (e *Engine) MarkBindingSynced(componentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.bindings[componentID]
	if !ok {
		return fmt.Errorf("%w: binding %s", domain.ErrNotFound, componentID)
	}
	b.NeedsUpdate = false
	b.LastSynced = e.now()
	e.bump()
	return nil
}

// Events returns the most recent n cascade events, newest last.
func (e *Engine) Events(n int) []domain.CascadeEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	events := e.events
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	out := make([]domain.CascadeEvent, len(events))
	copy(out, events)
	return out
}

// schemaDelta classifies how a field list changed.
type schemaDelta struct {
	Added    []string
	Removed  []string
	Modified []string
}

func (d schemaDelta) empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// pointwise reports whether the change only touched existing fields.
func (d schemaDelta) pointwise() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

func diffSchema(old, new []domain.ContractField) schemaDelta {
	oldByName := make(map[string]domain.ContractField, len(old))
	for _, f := range old {
		oldByName[f.Name] = f
	}
	var d schemaDelta
	seen := make(map[string]bool, len(new))
	for _, f := range new {
		seen[f.Name] = true
		prev, ok := oldByName[f.Name]
		if !ok {
			d.Added = append(d.Added, f.Name)
			continue
		}
		if prev.Type != f.Type || prev.Required != f.Required {
			d.Modified = append(d.Modified, f.Name)
		}
	}
	for _, f := range old {
		if !seen[f.Name] {
			d.Removed = append(d.Removed, f.Name)
		}
	}
	return d
}
