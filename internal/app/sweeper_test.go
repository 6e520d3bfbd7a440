package app

import (
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/jaakkos/synapse/internal/domain"
)

func TestLockSweeperExpiresLockAndHandsOff(t *testing.T) {
	svc := testService(t)
	logger := log.New(io.Discard, "", 0)
	now := time.Now()

	_ = svc.Mutate(func(state *domain.WorkspaceState) error {
		state.Agents["a1"] = &domain.Agent{
			ID: "a1", Name: "Alice", Role: domain.RoleBackend,
			Status: domain.StatusWorking, CurrentTask: "src/x.ts",
			LastSeen: now,
		}
		state.Locks["src/x.ts"] = &domain.FileLock{
			Path: "src/x.ts", AgentID: "a1", AgentName: "Alice",
			LockedAt: now.Add(-time.Minute), ExpiresAt: now.Add(-time.Second),
		}
		return nil
	})
	versionBefore := svc.Version()

	sweeper := NewLockSweeper(svc, logger, WithLockSweeperClock(func() time.Time { return now }))
	sweeper.SweepOnce()

	_ = svc.Query(func(state *domain.WorkspaceState) error {
		if _, ok := state.Locks["src/x.ts"]; ok {
			t.Error("expired lock still present")
		}
		agent := state.Agents["a1"]
		if agent.Status != domain.StatusIdle {
			t.Errorf("agent status = %s, want idle", agent.Status)
		}
		if agent.CurrentTask != "" {
			t.Errorf("currentTask = %q, want cleared", agent.CurrentTask)
		}
		last := state.Intents[len(state.Intents)-1]
		if last.Action != domain.IntentHandoff {
			t.Errorf("last intent action = %s, want handoff", last.Action)
		}
		if want := "src/x.ts"; !strings.Contains(last.Description, want) {
			t.Errorf("handoff description %q does not mention %s", last.Description, want)
		}
		return nil
	})

	if svc.Version() != versionBefore+1 {
		t.Errorf("version = %d, want %d", svc.Version(), versionBefore+1)
	}

	// A second sweep finds nothing and must not bump.
	sweeper.SweepOnce()
	if svc.Version() != versionBefore+1 {
		t.Errorf("no-op sweep bumped version to %d", svc.Version())
	}
}

func TestLockSweeperKeepsLiveLocks(t *testing.T) {
	svc := testService(t)
	logger := log.New(io.Discard, "", 0)
	now := time.Now()

	_ = svc.Mutate(func(state *domain.WorkspaceState) error {
		state.Locks["live.go"] = &domain.FileLock{
			Path: "live.go", AgentID: "a1", ExpiresAt: now.Add(time.Minute),
		}
		return nil
	})

	sweeper := NewLockSweeper(svc, logger, WithLockSweeperClock(func() time.Time { return now }))
	sweeper.SweepOnce()

	_ = svc.Query(func(state *domain.WorkspaceState) error {
		if _, ok := state.Locks["live.go"]; !ok {
			t.Error("live lock was swept")
		}
		return nil
	})
}

func TestPresenceSweeperDisconnectsThenRemoves(t *testing.T) {
	svc := testService(t)
	logger := log.New(io.Discard, "", 0)
	now := time.Now()

	_ = svc.Mutate(func(state *domain.WorkspaceState) error {
		state.Agents["a1"] = &domain.Agent{
			ID: "a1", Name: "Bob", Status: domain.StatusWorking,
			CurrentTask: "api/login.go", LastSeen: now.Add(-6 * time.Minute),
		}
		return nil
	})

	sweeper := NewPresenceSweeper(svc, logger, WithPresenceSweeperClock(func() time.Time { return now }))
	sweeper.SweepOnce()

	_ = svc.Query(func(state *domain.WorkspaceState) error {
		agent := state.Agents["a1"]
		if agent == nil {
			t.Fatal("agent removed too early")
		}
		if agent.Status != domain.StatusDisconnected {
			t.Errorf("status = %s, want disconnected", agent.Status)
		}
		if agent.CurrentTask != "" {
			t.Errorf("currentTask = %q, want cleared", agent.CurrentTask)
		}
		return nil
	})

	// Rewind lastSeen past the removal threshold and sweep again.
	_ = svc.Mutate(func(state *domain.WorkspaceState) error {
		state.Agents["a1"].LastSeen = now.Add(-16 * time.Minute)
		return nil
	})
	sweeper.SweepOnce()

	_ = svc.Query(func(state *domain.WorkspaceState) error {
		if _, ok := state.Agents["a1"]; ok {
			t.Error("agent not removed after 16 minutes of silence")
		}
		return nil
	})
}

func TestPresenceSweeperLeavesActiveAgents(t *testing.T) {
	svc := testService(t)
	logger := log.New(io.Discard, "", 0)
	now := time.Now()

	_ = svc.Mutate(func(state *domain.WorkspaceState) error {
		state.Agents["a1"] = &domain.Agent{ID: "a1", Status: domain.StatusWorking, LastSeen: now.Add(-time.Minute)}
		return nil
	})
	before := svc.Version()

	sweeper := NewPresenceSweeper(svc, logger, WithPresenceSweeperClock(func() time.Time { return now }))
	sweeper.SweepOnce()

	if svc.Version() != before {
		t.Errorf("no-op presence sweep bumped version")
	}
	_ = svc.Query(func(state *domain.WorkspaceState) error {
		if state.Agents["a1"].Status != domain.StatusWorking {
			t.Error("active agent status changed")
		}
		return nil
	})
}
