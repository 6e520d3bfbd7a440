// Package app implements the workspace state machine: the hub service
// guarding shared state, the session registry, and the periodic
// sweepers for lock expiry and presence decay.
package app

import (
	"log"
	"sync"

	"github.com/jaakkos/synapse/internal/domain"
	"github.com/jaakkos/synapse/internal/policy"
)

// BumpHook is called synchronously after every version bump, while the
// mutation that caused it is still atomic. Fan-out to subscribers must
// not block.
type BumpHook func(version int64)

// HubService serializes every read and write of the workspace state.
// Handlers run to completion under the mutex, so no observer ever sees
// a partial mutation.
type HubService struct {
	pol    *policy.Policy
	logger *log.Logger

	mu    sync.Mutex
	state *domain.WorkspaceState
	hook  BumpHook
}

// NewHubService returns a service over a fresh workspace.
func NewHubService(pol *policy.Policy, logger *log.Logger) *HubService {
	return &HubService{
		pol:    pol,
		logger: logger,
		state:  domain.NewWorkspaceState(),
	}
}

// SetBumpHook registers the change-notification hook. Registered once
// at startup by the notification fabric.
func (s *HubService) SetBumpHook(h BumpHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

// Policy returns the live policy for TTLs and sweep intervals.
func (s *HubService) Policy() *policy.Policy { return s.pol }

// Mutate runs fn under the state mutex and, on success, bumps the
// version exactly once. Use for operations that always change state.
func (s *HubService) Mutate(fn func(*domain.WorkspaceState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.state); err != nil {
		return err
	}
	s.bumpLocked()
	return nil
}

// MutateIf runs fn under the state mutex and bumps the version iff fn
// reports a change. Use for sweeps and idempotent operations.
func (s *HubService) MutateIf(fn func(*domain.WorkspaceState) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed, err := fn(s.state)
	if err != nil {
		return err
	}
	if changed {
		s.bumpLocked()
	}
	return nil
}

// Query runs fn read-only under the state mutex. fn must not mutate.
func (s *HubService) Query(fn func(*domain.WorkspaceState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// Bump increments the version without another mutation. Used by
// subsystems (world state, cascade) whose own state changed.
func (s *HubService) Bump() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bumpLocked()
}

// Version returns the current workspace version.
func (s *HubService) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Version
}

func (s *HubService) bumpLocked() {
	s.state.Version++
	if s.hook != nil {
		s.hook(s.state.Version)
	}
}
