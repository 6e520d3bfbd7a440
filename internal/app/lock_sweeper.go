package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jaakkos/synapse/internal/domain"
)

// LockSweeper expires file locks past their TTL. An expired lock is
// deleted, its owner is moved back to idle if it was working on that
// path, and a handoff intent announces the path is free again.
type LockSweeper struct {
	svc    *HubService
	logger *log.Logger
	now    func() time.Time
	stopCh chan struct{}
	doneCh chan struct{}
}

// LockSweeperOption configures the sweeper.
type LockSweeperOption func(*LockSweeper)

// WithLockSweeperClock overrides the clock (for tests).
func WithLockSweeperClock(now func() time.Time) LockSweeperOption {
	return func(s *LockSweeper) { s.now = now }
}

// NewLockSweeper creates a lock sweeper.
func NewLockSweeper(svc *HubService, logger *log.Logger, opts ...LockSweeperOption) *LockSweeper {
	s := &LockSweeper{
		svc:    svc,
		logger: logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.
// The period is read from policy each cycle so config reloads apply.
func (s *LockSweeper) Start(ctx context.Context) {
	defer close(s.doneCh)
	s.logger.Printf("Lock sweeper: started (interval=%s)", s.svc.Policy().LockSweepInterval())
	for {
		select {
		case <-ctx.Done():
			s.logger.Println("Lock sweeper: stopped (context cancelled)")
			return
		case <-s.stopCh:
			s.logger.Println("Lock sweeper: stopped")
			return
		case <-time.After(s.svc.Policy().LockSweepInterval()):
			s.SweepOnce()
		}
	}
}

// Stop signals the sweeper to stop and waits for the loop to exit.
func (s *LockSweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// SweepOnce runs one sweep cycle. Exposed for tests and manual triggers.
func (s *LockSweeper) SweepOnce() {
	expired := 0
	err := s.svc.MutateIf(func(state *domain.WorkspaceState) (bool, error) {
		now := s.now()
		for path, lock := range state.Locks {
			if lock == nil || lock.ExpiresAt.After(now) {
				continue
			}
			delete(state.Locks, path)
			expired++

			if agent, ok := state.Agents[lock.AgentID]; ok && agent.CurrentTask == path {
				agent.CurrentTask = ""
				agent.Status = domain.StatusIdle
			}

			state.AppendIntent(domain.Intent{
				ID:          uuid.NewString(),
				AgentID:     lock.AgentID,
				AgentName:   lock.AgentName,
				Client:      lock.Client,
				Action:      domain.IntentHandoff,
				Description: fmt.Sprintf("Lock on %s expired; path reclaimed for other agents", path),
				Timestamp:   now,
			})
		}
		return expired > 0, nil
	})
	if err != nil {
		s.logger.Printf("Lock sweeper: %v", err)
		return
	}
	if expired > 0 {
		s.logger.Printf("Lock sweeper: expired %d lock(s)", expired)
	}
}
