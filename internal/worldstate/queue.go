package worldstate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jaakkos/synapse/internal/domain"
)

// compatibleRoles maps a requesting agent's role to the work roles it
// may pick up. Coders and fixers cover each other; everything else only
// takes its own kind.
var compatibleRoles = map[domain.AgentRole][]domain.AgentRole{
	domain.RoleCoder: {domain.RoleCoder, domain.RoleFixer},
	domain.RoleFixer: {domain.RoleFixer, domain.RoleCoder},
}

// EnqueueWork adds a new item to the prioritized queue.
func (e *Engine) EnqueueWork(description string, role domain.AgentRole, priority int, goalID string) (*domain.QueuedWork, error) {
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("%w: work description is required", domain.ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	work := &domain.QueuedWork{
		ID:          uuid.NewString(),
		Description: description,
		Role:        role,
		Priority:    priority,
		Status:      domain.QueueQueued,
		GoalID:      goalID,
		CreatedAt:   e.now(),
	}
	e.enqueueLocked(work)
	e.bumpLocked()
	copied := *work
	return &copied, nil
}

// enqueueLocked appends and resorts by descending priority. The sort is
// stable, so equal priorities keep FIFO order. Callers hold e.mu.
func (e *Engine) enqueueLocked(work *domain.QueuedWork) {
	e.world.Queue = append(e.world.Queue, work)
	sort.SliceStable(e.world.Queue, func(i, j int) bool {
		return e.world.Queue[i].Priority > e.world.Queue[j].Priority
	})
}

// AssignWork hands the highest-priority compatible queued item to the
// agent, or returns nil when nothing matches.
func (e *Engine) AssignWork(agentID string, role domain.AgentRole) *domain.QueuedWork {
	e.mu.Lock()
	defer e.mu.Unlock()

	acceptable := compatibleRoles[role]
	if acceptable == nil {
		acceptable = []domain.AgentRole{role}
	}
	for _, work := range e.world.Queue {
		if work.Status != domain.QueueQueued {
			continue
		}
		if !roleMatches(work.Role, role, acceptable) {
			continue
		}
		work.Status = domain.QueueAssigned
		work.AssignedTo = agentID
		work.AssignedAt = e.now()
		e.bumpLocked()
		copied := *work
		return &copied
	}
	return nil
}

func roleMatches(workRole, agentRole domain.AgentRole, acceptable []domain.AgentRole) bool {
	if workRole == domain.RoleAny || agentRole == domain.RoleAny {
		return true
	}
	for _, r := range acceptable {
		if workRole == r {
			return true
		}
	}
	return false
}

// CompleteWork marks the item completed and re-evaluates its goal.
func (e *Engine) CompleteWork(id string) (*domain.QueuedWork, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, work := range e.world.Queue {
		if work.ID != id {
			continue
		}
		if work.Status == domain.QueueCompleted {
			copied := *work
			return &copied, nil
		}
		work.Status = domain.QueueCompleted
		work.CompletedAt = e.now()
		e.bumpLocked()
		if work.GoalID != "" {
			if _, err := e.evaluateGoalLocked(work.GoalID); err != nil {
				e.logger.Printf("World: re-evaluating goal %s after work %s: %v", work.GoalID, id, err)
			}
		}
		copied := *work
		return &copied, nil
	}
	return nil, fmt.Errorf("%w: work item %s", domain.ErrNotFound, id)
}

// QueueSnapshot returns a copy of the queue in priority order.
func (e *Engine) QueueSnapshot() []*domain.QueuedWork {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.QueuedWork, 0, len(e.world.Queue))
	for _, w := range e.world.Queue {
		copied := *w
		out = append(out, &copied)
	}
	return out
}
