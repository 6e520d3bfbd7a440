package cascade

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/jaakkos/synapse/internal/domain"
)

// ChangeResult reports how a proposed change was taken.
type ChangeResult struct {
	Accepted bool               `json:"accepted"`
	Merged   bool               `json:"merged"`
	Change   *domain.FileChange `json:"change,omitempty"`
}

// JoinFile adds the agent to the file's editor roster.
func (e *Engine) JoinFile(path, agent string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	roster, ok := e.rosters[path]
	if !ok {
		roster = make(map[string]bool)
		e.rosters[path] = roster
	}
	roster[agent] = true
	e.bump()
	return rosterList(roster)
}

// LeaveFile removes the agent; an empty roster drops the path's pending
// changes with it.
func (e *Engine) LeaveFile(path, agent string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	roster, ok := e.rosters[path]
	if !ok {
		return
	}
	delete(roster, agent)
	if len(roster) == 0 {
		delete(e.rosters, path)
		delete(e.pending, path)
	}
	e.bump()
}

// Editors returns the roster for a path.
func (e *Engine) Editors(path string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return rosterList(e.rosters[path])
}

func rosterList(roster map[string]bool) []string {
	out := make([]string, 0, len(roster))
	for agent := range roster {
		out = append(out, agent)
	}
	sort.Strings(out)
	return out
}

// ProposeChange records a text change on [start,end). A change that
// overlaps a different agent's pending change is merged by a coarse
// deterministic policy: containment lets the outer range win, exact
// adjacency and plain overlap concatenate in start order. A merge emits
// conflict_resolved with a text diff in the details.
func (e *Engine) ProposeChange(path, agent string, start, end int, text string) (ChangeResult, error) {
	if start < 0 || end < start {
		return ChangeResult{}, fmt.Errorf("%w: invalid range [%d,%d)", domain.ErrInvalidInput, start, end)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	change := domain.FileChange{
		ID:        uuid.NewString(),
		Agent:     agent,
		Start:     start,
		End:       end,
		NewText:   text,
		Timestamp: e.now(),
	}

	for i, prev := range e.pending[path] {
		if !change.Overlaps(prev) && !adjacent(change, prev) {
			continue
		}
		if prev.Agent == agent {
			// Same agent revising their own range: latest wins.
			e.pending[path][i] = change
			e.bump()
			return ChangeResult{Accepted: true, Change: &change}, nil
		}
		merged := mergeChanges(prev, change)
		merged.ID = uuid.NewString()
		merged.Timestamp = e.now()
		e.pending[path][i] = merged

		dmp := diffmatchpatch.New()
		diffs := dmp.DiffMain(prev.NewText, change.NewText, false)
		e.emitLocked(domain.EventConflictResolved, path, merged.ID, map[string]any{
			"agents": []string{prev.Agent, change.Agent},
			"range":  []int{merged.Start, merged.End},
			"diff":   dmp.DiffPrettyText(diffs),
		})
		e.bump()
		return ChangeResult{Accepted: true, Merged: true, Change: &merged}, nil
	}

	e.pending[path] = append(e.pending[path], change)
	e.bump()
	return ChangeResult{Accepted: true, Change: &change}, nil
}

// PendingChanges returns the pending list for a path.
func (e *Engine) PendingChanges(path string) []domain.FileChange {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.FileChange, len(e.pending[path]))
	copy(out, e.pending[path])
	return out
}

// adjacent reports whether the half-open ranges touch exactly.
func adjacent(a, b domain.FileChange) bool {
	return a.End == b.Start || b.End == a.Start
}

// mergeChanges resolves two conflicting changes into one.
func mergeChanges(a, b domain.FileChange) domain.FileChange {
	switch {
	case a.Contains(b):
		return a
	case b.Contains(a):
		return b
	}
	first, second := a, b
	if second.Start < first.Start {
		first, second = second, first
	}
	return domain.FileChange{
		Agent:   first.Agent,
		Start:   first.Start,
		End:     max(first.End, second.End),
		NewText: first.NewText + second.NewText,
	}
}
