package app

import (
	"context"
	"log"
	"time"

	"github.com/jaakkos/synapse/internal/domain"
)

// PresenceSweeper decays silent agents: after five minutes of silence
// an agent is marked disconnected and its current task cleared; after
// fifteen it is removed entirely. Thresholds come from policy.
type PresenceSweeper struct {
	svc    *HubService
	logger *log.Logger
	now    func() time.Time
	stopCh chan struct{}
	doneCh chan struct{}
}

// PresenceSweeperOption configures the sweeper.
type PresenceSweeperOption func(*PresenceSweeper)

// WithPresenceSweeperClock overrides the clock (for tests).
func WithPresenceSweeperClock(now func() time.Time) PresenceSweeperOption {
	return func(s *PresenceSweeper) { s.now = now }
}

// NewPresenceSweeper creates a presence sweeper.
func NewPresenceSweeper(svc *HubService, logger *log.Logger, opts ...PresenceSweeperOption) *PresenceSweeper {
	s := &PresenceSweeper{
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
func (s *PresenceSweeper) Start(ctx context.Context) {
	defer close(s.doneCh)
	s.logger.Printf("Presence sweeper: started (interval=%s)", s.svc.Policy().PresenceSweepInterval())
	for {
		select {
		case <-ctx.Done():
			s.logger.Println("Presence sweeper: stopped (context cancelled)")
			return
		case <-s.stopCh:
			s.logger.Println("Presence sweeper: stopped")
			return
		case <-time.After(s.svc.Policy().PresenceSweepInterval()):
			s.SweepOnce()
		}
	}
}

// Stop signals the sweeper to stop and waits for the loop to exit.
func (s *PresenceSweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// SweepOnce runs one sweep cycle. Exposed for tests and manual triggers.
func (s *PresenceSweeper) SweepOnce() {
	var removed, disconnected int
	err := s.svc.MutateIf(func(state *domain.WorkspaceState) (bool, error) {
		now := s.now()
		removeAfter := s.svc.Policy().RemoveAfter()
		disconnectAfter := s.svc.Policy().DisconnectAfter()

		for id, agent := range state.Agents {
			silence := now.Sub(agent.LastSeen)
			switch {
			case silence >= removeAfter:
				delete(state.Agents, id)
				removed++
			case silence >= disconnectAfter && agent.Status != domain.StatusDisconnected:
				agent.Status = domain.StatusDisconnected
				agent.CurrentTask = ""
				disconnected++
			}
		}
		return removed > 0 || disconnected > 0, nil
	})
	if err != nil {
		s.logger.Printf("Presence sweeper: %v", err)
		return
	}
	if removed > 0 || disconnected > 0 {
		s.logger.Printf("Presence sweeper: removed %d agent(s), disconnected %d", removed, disconnected)
	}
}
