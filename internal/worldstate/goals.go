package worldstate

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jaakkos/synapse/internal/domain"
)

// Evaluation is the outcome of checking a goal's success criteria
// against the entity tables.
type Evaluation struct {
	Satisfied bool     `json:"satisfied"`
	Progress  float64  `json:"progress"`
	Missing   []string `json:"missing"`
}

// ProposeGoal creates a pending goal and enqueues planner work to break
// it down.
func (e *Engine) ProposeGoal(createdBy, description string, criteria []string) (*domain.Goal, error) {
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("%w: goal description is required", domain.ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	goal := &domain.Goal{
		ID:              uuid.NewString(),
		Description:     description,
		SuccessCriteria: criteria,
		Status:          domain.GoalPending,
		CreatedBy:       createdBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	e.world.Goals[goal.ID] = goal
	e.enqueueLocked(&domain.QueuedWork{
		ID:          uuid.NewString(),
		Description: fmt.Sprintf("Plan goal: %s", description),
		Role:        domain.RolePlanner,
		Priority:    10,
		Status:      domain.QueueQueued,
		GoalID:      goal.ID,
		CreatedAt:   now,
	})
	e.bumpLocked()

	copied := *goal
	return &copied, nil
}

// EvaluateGoal re-checks the goal's criteria and applies the status
// transition. Regression enqueues fixer work for the missing criteria.
func (e *Engine) EvaluateGoal(id string) (Evaluation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluateGoalLocked(id)
}

func (e *Engine) evaluateGoalLocked(id string) (Evaluation, error) {
	goal, ok := e.world.Goals[id]
	if !ok {
		return Evaluation{}, fmt.Errorf("%w: goal %s", domain.ErrNotFound, id)
	}

	eval := Evaluation{Missing: []string{}}
	met := 0
	for _, criterion := range goal.SuccessCriteria {
		if e.criterionMet(criterion) {
			met++
		} else {
			eval.Missing = append(eval.Missing, criterion)
		}
	}
	if len(goal.SuccessCriteria) > 0 {
		eval.Progress = float64(met) / float64(len(goal.SuccessCriteria))
	} else {
		eval.Progress = 1
	}
	eval.Satisfied = len(eval.Missing) == 0

	prev := goal.Status
	switch {
	case eval.Satisfied:
		goal.Status = domain.GoalSatisfied
	case eval.Progress > 0.5:
		goal.Status = domain.GoalConverging
	case prev == domain.GoalSatisfied || prev == domain.GoalConverging:
		goal.Status = domain.GoalRegressed
		for i, criterion := range eval.Missing {
			if i == 3 {
				break
			}
			e.enqueueLocked(&domain.QueuedWork{
				ID:          uuid.NewString(),
				Description: fmt.Sprintf("Restore criterion: %s", criterion),
				Role:        domain.RoleFixer,
				Priority:    8,
				Status:      domain.QueueQueued,
				GoalID:      goal.ID,
				CreatedAt:   e.now(),
			})
		}
	default:
		goal.Status = domain.GoalInProgress
	}
	goal.Progress = eval.Progress
	goal.UpdatedAt = e.now()

	if goal.Status != prev {
		e.logger.Printf("World: goal %s %s -> %s (progress %.2f)", goal.ID, prev, goal.Status, eval.Progress)
		e.bumpLocked()
	}
	return eval, nil
}

// criterionMet classifies a criterion by keyword and checks it against
// the matching entity table.
func (e *Engine) criterionMet(criterion string) bool {
	c := strings.ToLower(criterion)

	mentionsEndpoint := strings.Contains(c, "endpoint") || strings.Contains(c, "api")
	switch {
	case mentionsEndpoint && strings.Contains(c, "implemented"):
		return e.anyEndpoint(c, func(ep *domain.Endpoint) bool { return ep.Implemented })
	case mentionsEndpoint && strings.Contains(c, "tested"):
		return e.anyEndpoint(c, func(ep *domain.Endpoint) bool { return ep.Tested })
	case strings.Contains(c, "test") && strings.Contains(c, "pass"):
		if len(e.world.Tests) == 0 {
			return false
		}
		for _, tst := range e.world.Tests {
			if !tst.Passing {
				return false
			}
		}
		return true
	case strings.Contains(c, "ui") || strings.Contains(c, "frontend"):
		for _, el := range e.world.UIElements {
			if el.Functional {
				return true
			}
		}
		return false
	case strings.Contains(c, "flow") || strings.Contains(c, "working"):
		for _, f := range e.world.Flows {
			if f.Working {
				return true
			}
		}
		return false
	}

	// Fallback: a confident recent observation mentioning the criterion.
	recent := e.world.Observations
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}
	for _, obs := range recent {
		if obs.Confidence > 0.7 && strings.Contains(strings.ToLower(obs.Assertion), c) {
			return true
		}
	}
	return false
}

// anyEndpoint reports whether some endpoint passes the check and its
// route appears in the criterion. A criterion naming no known route
// matches any endpoint that passes.
func (e *Engine) anyEndpoint(criterion string, check func(*domain.Endpoint) bool) bool {
	named := false
	for _, ep := range e.world.Endpoints {
		route := strings.ToLower(ep.Route)
		if route != "" && strings.Contains(criterion, route) {
			named = true
			if check(ep) {
				return true
			}
		}
	}
	if named {
		return false
	}
	for _, ep := range e.world.Endpoints {
		if check(ep) {
			return true
		}
	}
	return false
}

// Goal returns a copy of the goal.
func (e *Engine) Goal(id string) (*domain.Goal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	goal, ok := e.world.Goals[id]
	if !ok {
		return nil, fmt.Errorf("%w: goal %s", domain.ErrNotFound, id)
	}
	copied := *goal
	return &copied, nil
}
