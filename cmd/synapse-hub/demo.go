package main

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jaakkos/synapse/internal/app"
	"github.com/jaakkos/synapse/internal/domain"
	"github.com/jaakkos/synapse/internal/worldstate"
)

// seedDemo populates a fresh hub with two agents and a goal so the
// JSON API and the stream have something to show immediately.
func seedDemo(svc *app.HubService, world *worldstate.Engine, logger *log.Logger) {
	now := time.Now()
	err := svc.Mutate(func(state *domain.WorkspaceState) error {
		state.Target = "demo: ship the login flow"
		for _, a := range []*domain.Agent{
			{ID: uuid.NewString(), Name: "demo-backend", Client: "terminal", Role: domain.RoleBackend, Status: domain.StatusIdle},
			{ID: uuid.NewString(), Name: "demo-tester", Client: "terminal", Role: domain.RoleTester, Status: domain.StatusIdle},
		} {
			a.JoinedAt, a.LastSeen = now, now
			state.Agents[a.ID] = a
		}
		return nil
	})
	if err != nil {
		logger.Printf("Demo seed: workspace: %v", err)
		return
	}

	if _, err := world.ProposeGoal("demo", "Ship login end to end", []string{
		"endpoint /auth/login implemented",
		"tests pass",
	}); err != nil {
		logger.Printf("Demo seed: goal: %v", err)
		return
	}
	logger.Println("Demo seed: 2 agents and 1 goal created")
}
