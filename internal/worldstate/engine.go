// Package worldstate implements the convergence engine: a structured
// belief graph of files, endpoints, UI elements, flows and tests, fed
// by agent observations, evaluated against goals, and drained through a
// prioritized work queue. A periodic tick re-evaluates goals and keeps
// the queue healthy so the swarm makes progress without a coordinator.
package worldstate

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaakkos/synapse/internal/domain"
)

// Engine owns the world state. Every mutation happens under one mutex
// and calls the bump hook synchronously before the lock is released, so
// observers never see a version ahead of the state that produced it.
type Engine struct {
	mu      sync.Mutex
	world   *domain.WorldState
	bump    func()
	logger  *log.Logger
	archive *Archive
	now     func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithArchive mirrors observations into a searchable index.
func WithArchive(a *Archive) Option {
	return func(e *Engine) { e.archive = a }
}

// NewEngine creates an engine. bump is called after every observable
// change; pass a no-op if nothing subscribes.
func NewEngine(bump func(), logger *log.Logger, opts ...Option) *Engine {
	if bump == nil {
		bump = func() {}
	}
	e := &Engine{
		world:  domain.NewWorldState(),
		bump:   bump,
		logger: logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// bumpLocked advances the world version and fires the hook. Callers
// hold e.mu.
func (e *Engine) bumpLocked() {
	e.world.Version++
	e.bump()
}

// Patch is a partial update to the entity tables: table name → key →
// fields. A nil field map deletes the entity; otherwise the fields are
// shallow-merged over the existing entity (or fresh defaults).
type Patch map[string]map[string]map[string]any

// ApplyPatch merges the patch into the belief graph. The version is
// bumped once per call regardless of how many entities changed.
func (e *Engine) ApplyPatch(p Patch) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	changed := false
	for table, entries := range p {
		for key, fields := range entries {
			ok, err := e.patchEntity(table, key, fields)
			if err != nil {
				return err
			}
			changed = changed || ok
		}
	}
	if changed {
		e.bumpLocked()
	}
	return nil
}

func (e *Engine) patchEntity(table, key string, fields map[string]any) (bool, error) {
	now := e.now()
	switch table {
	case "files":
		if fields == nil {
			return deleteFrom(e.world.Files, key), nil
		}
		entity := e.world.Files[key]
		if entity == nil {
			entity = &domain.FileEntity{Path: key}
		}
		merged, err := mergeFields(entity, fields)
		if err != nil {
			return false, err
		}
		merged.Path = key
		merged.LastUpdated = now
		e.world.Files[key] = merged
	case "endpoints":
		if fields == nil {
			return deleteFrom(e.world.Endpoints, key), nil
		}
		entity := e.world.Endpoints[key]
		if entity == nil {
			method, route := splitEndpointKey(key)
			entity = &domain.Endpoint{Method: method, Route: route}
		}
		merged, err := mergeFields(entity, fields)
		if err != nil {
			return false, err
		}
		merged.LastUpdated = now
		e.world.Endpoints[key] = merged
	case "ui_elements":
		if fields == nil {
			return deleteFrom(e.world.UIElements, key), nil
		}
		entity := e.world.UIElements[key]
		if entity == nil {
			entity = &domain.UIElement{Name: key}
		}
		merged, err := mergeFields(entity, fields)
		if err != nil {
			return false, err
		}
		merged.Name = key
		merged.LastUpdated = now
		e.world.UIElements[key] = merged
	case "flows":
		if fields == nil {
			return deleteFrom(e.world.Flows, key), nil
		}
		entity := e.world.Flows[key]
		if entity == nil {
			entity = &domain.Flow{Name: key}
		}
		merged, err := mergeFields(entity, fields)
		if err != nil {
			return false, err
		}
		merged.Name = key
		merged.LastUpdated = now
		e.world.Flows[key] = merged
	case "tests":
		if fields == nil {
			return deleteFrom(e.world.Tests, key), nil
		}
		entity := e.world.Tests[key]
		if entity == nil {
			entity = &domain.TestEntity{Name: key}
		}
		merged, err := mergeFields(entity, fields)
		if err != nil {
			return false, err
		}
		merged.Name = key
		merged.LastUpdated = now
		e.world.Tests[key] = merged
	default:
		return false, fmt.Errorf("%w: unknown entity table %q", domain.ErrInvalidInput, table)
	}
	return true, nil
}

// mergeFields shallow-merges the patch fields over the entity through a
// JSON round trip, so patch values use the same wire names and coercion
// rules as the API.
func mergeFields[T any](entity *T, fields map[string]any) (*T, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, err
	}
	var base map[string]any
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, err
	}
	for k, v := range fields {
		base[k] = v
	}
	raw, err = json.Marshal(base)
	if err != nil {
		return nil, err
	}
	merged := new(T)
	if err := json.Unmarshal(raw, merged); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return merged, nil
}

func deleteFrom[T any](m map[string]*T, key string) bool {
	if _, ok := m[key]; !ok {
		return false
	}
	delete(m, key)
	return true
}

func splitEndpointKey(key string) (method, route string) {
	if i := strings.Index(key, ":"); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

// AssertFact appends an observation, scanning the recent history for a
// lexical contradiction first. A contradiction records a conflict and
// enqueues tester work to resolve it.
func (e *Engine) AssertFact(agent, assertion string, confidence float64, source string) (domain.Observation, *domain.WorldConflict, error) {
	if strings.TrimSpace(assertion) == "" {
		return domain.Observation{}, nil, fmt.Errorf("%w: assertion is required", domain.ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	obs := domain.Observation{
		ID:         uuid.NewString(),
		Agent:      agent,
		Assertion:  assertion,
		Confidence: confidence,
		Source:     source,
		Timestamp:  e.now(),
	}

	conflict := e.detectContradiction(obs)
	e.world.AppendObservation(obs)
	if e.archive != nil {
		if err := e.archive.Record(obs); err != nil {
			e.logger.Printf("World: archive index failed for %s: %v", obs.ID, err)
		}
	}
	e.bumpLocked()
	return obs, conflict, nil
}

// negationPairs lists substring pairs treated as lexical contradictions.
// The guard term must be absent from the positive side, so "not working"
// vs "still not working" is not a conflict.
var negationPairs = []struct{ positive, negative, guard string }{
	{"working", "not working", "not"},
	{"passing", "failing", ""},
}

func (e *Engine) detectContradiction(obs domain.Observation) *domain.WorldConflict {
	newText := strings.ToLower(obs.Assertion)
	recent := e.world.Observations
	if len(recent) > 50 {
		recent = recent[len(recent)-50:]
	}
	for i := len(recent) - 1; i >= 0; i-- {
		old := recent[i]
		oldText := strings.ToLower(old.Assertion)
		if !contradicts(newText, oldText) {
			continue
		}
		conflict := &domain.WorldConflict{
			ID:          uuid.NewString(),
			Assertion:   obs.Assertion,
			Contradicts: old.Assertion,
			Agents:      []string{old.Agent, obs.Agent},
			CreatedAt:   e.now(),
		}
		e.world.AppendConflict(conflict)
		e.enqueueLocked(&domain.QueuedWork{
			ID:          uuid.NewString(),
			Description: fmt.Sprintf("Resolve contradiction: %q vs %q", obs.Assertion, old.Assertion),
			Role:        domain.RoleTester,
			Priority:    10,
			Status:      domain.QueueQueued,
			CreatedAt:   e.now(),
		})
		e.logger.Printf("World: contradiction between %s and %s", obs.Agent, old.Agent)
		return conflict
	}
	return nil
}

// contradicts reports whether a and b lexically negate each other on
// any known pair, in either direction.
func contradicts(a, b string) bool {
	for _, p := range negationPairs {
		guardOK := func(s string) bool {
			return p.guard == "" || !strings.Contains(s, p.guard)
		}
		if strings.Contains(a, p.negative) && strings.Contains(b, p.positive) && guardOK(b) {
			return true
		}
		if strings.Contains(b, p.negative) && strings.Contains(a, p.positive) && guardOK(a) {
			return true
		}
	}
	return false
}

// ReportFailure records a failure observation, flags matching endpoints
// as failing, and enqueues fixer work.
func (e *Engine) ReportFailure(agent, area, reason string) (*domain.QueuedWork, error) {
	if strings.TrimSpace(area) == "" {
		return nil, fmt.Errorf("%w: area is required", domain.ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	obs := domain.Observation{
		ID:         uuid.NewString(),
		Agent:      agent,
		Assertion:  fmt.Sprintf("%s failing: %s", area, reason),
		Confidence: 0.9,
		Source:     "failure_report",
		Timestamp:  e.now(),
	}
	e.world.AppendObservation(obs)
	if e.archive != nil {
		if err := e.archive.Record(obs); err != nil {
			e.logger.Printf("World: archive index failed for %s: %v", obs.ID, err)
		}
	}

	needle := strings.ToLower(area)
	for key, ep := range e.world.Endpoints {
		if strings.Contains(strings.ToLower(key), needle) || strings.Contains(strings.ToLower(ep.Route), needle) {
			ep.Failing = true
			ep.LastUpdated = e.now()
		}
	}

	work := &domain.QueuedWork{
		ID:          uuid.NewString(),
		Description: fmt.Sprintf("Fix failure in %s: %s", area, reason),
		Role:        domain.RoleFixer,
		Priority:    9,
		Status:      domain.QueueQueued,
		CreatedAt:   e.now(),
	}
	e.enqueueLocked(work)
	e.bumpLocked()
	return work, nil
}

// Observations returns the most recent n observations, newest last.
func (e *Engine) Observations(n int) []domain.Observation {
	e.mu.Lock()
	defer e.mu.Unlock()
	obs := e.world.Observations
	if n > 0 && len(obs) > n {
		obs = obs[len(obs)-n:]
	}
	out := make([]domain.Observation, len(obs))
	copy(out, obs)
	return out
}

// Conflicts returns the unresolved conflicts.
func (e *Engine) Conflicts() []*domain.WorldConflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*domain.WorldConflict
	for _, c := range e.world.Conflicts {
		if !c.Resolved {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out
}

// ResolveConflict marks a recorded conflict resolved. Resolving an
// already-resolved conflict is a no-op.
func (e *Engine) ResolveConflict(id string) (*domain.WorldConflict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.world.Conflicts {
		if c.ID != id {
			continue
		}
		if !c.Resolved {
			c.Resolved = true
			e.bumpLocked()
		}
		copied := *c
		return &copied, nil
	}
	return nil, fmt.Errorf("%w: conflict %s", domain.ErrNotFound, id)
}

// Snapshot returns a deep copy of the world state for read-only use.
func (e *Engine) Snapshot() (*domain.WorldState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	raw, err := json.Marshal(e.world)
	if err != nil {
		return nil, err
	}
	out := domain.NewWorldState()
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Version returns the world-state version.
func (e *Engine) Version() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.Version
}
