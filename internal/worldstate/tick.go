package worldstate

import (
	"context"
	"time"

	"github.com/jaakkos/synapse/internal/domain"
)

// Queue hygiene thresholds applied by the convergence tick.
const (
	completedRetention = 60 * time.Second
	assignedDeadline   = 30 * time.Second
)

// Ticker drives the convergence loop: re-evaluate unsatisfied goals,
// retire old completed work, and requeue work an agent sat on too long.
type Ticker struct {
	engine   *Engine
	interval func() time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewTicker creates a convergence ticker. interval is read each cycle
// so config reloads apply.
func NewTicker(engine *Engine, interval func() time.Duration) *Ticker {
	return &Ticker{
		engine:   engine,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the tick loop until ctx is cancelled or Stop is called.
func (t *Ticker) Start(ctx context.Context) {
	defer close(t.doneCh)
	t.engine.logger.Printf("Convergence: started (interval=%s)", t.interval())
	for {
		select {
		case <-ctx.Done():
			t.engine.logger.Println("Convergence: stopped (context cancelled)")
			return
		case <-t.stopCh:
			t.engine.logger.Println("Convergence: stopped")
			return
		case <-time.After(t.interval()):
			t.engine.Tick()
		}
	}
}

// Stop signals the ticker to stop and waits for the loop to exit.
func (t *Ticker) Stop() {
	close(t.stopCh)
	<-t.doneCh
}

// Tick runs one convergence cycle. Exposed for tests.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, goal := range e.world.Goals {
		if goal.Status == domain.GoalSatisfied {
			continue
		}
		if _, err := e.evaluateGoalLocked(id); err != nil {
			e.logger.Printf("Convergence: goal %s: %v", id, err)
		}
	}

	now := e.now()
	changed := false
	kept := e.world.Queue[:0]
	for _, work := range e.world.Queue {
		switch work.Status {
		case domain.QueueCompleted:
			if now.Sub(work.CompletedAt) > completedRetention {
				changed = true
				continue // retire
			}
		case domain.QueueAssigned:
			if now.Sub(work.AssignedAt) > assignedDeadline {
				e.logger.Printf("Convergence: requeueing stalled work %s (was %s)", work.ID, work.AssignedTo)
				work.Status = domain.QueueQueued
				work.AssignedTo = ""
				work.AssignedAt = time.Time{}
				changed = true
			}
		}
		kept = append(kept, work)
	}
	e.world.Queue = kept
	if changed {
		e.bumpLocked()
	}
}
