package hub

import (
	"testing"

	"github.com/jaakkos/synapse/internal/domain"
)

func TestAddAndPollWorkByRole(t *testing.T) {
	s, _ := testHub(t)
	joinAs(t, s, "c1", "planner", "planner")
	joinAs(t, s, "c2", "tester", "tester")

	callJSON(t, s, "add_work", map[string]any{
		"clientId":    "c1",
		"description": "write login tests",
		"for_role":    "tester",
	})
	callJSON(t, s, "add_work", map[string]any{
		"clientId":    "c1",
		"description": "anything goes",
		"for_role":    "any",
	})

	poll := callJSON(t, s, "poll_work", map[string]any{"clientId": "c2"})
	work := poll["work"].(map[string]any)
	if work["description"] != "write login tests" {
		t.Errorf("got %v, want the tester item first", work["description"])
	}
	if poll["source"] != "workspace" {
		t.Errorf("source = %v", poll["source"])
	}

	// The "any" item falls through to any role.
	poll = callJSON(t, s, "poll_work", map[string]any{"clientId": "c2"})
	work = poll["work"].(map[string]any)
	if work["description"] != "anything goes" {
		t.Errorf("got %v, want the any item", work["description"])
	}

	// Drained.
	poll = callJSON(t, s, "poll_work", map[string]any{"clientId": "c2"})
	if poll["work"] != nil {
		t.Errorf("queue should be empty, got %v", poll["work"])
	}
}

func TestPollWorkSetsCurrentTask(t *testing.T) {
	s, svc := testHub(t)
	testerID := joinAs(t, s, "c1", "tester", "tester")
	callJSON(t, s, "add_work", map[string]any{"description": "verify checkout", "for_role": "tester"})

	callJSON(t, s, "poll_work", map[string]any{"clientId": "c1"})

	_ = svc.Query(func(state *domain.WorkspaceState) error {
		agent := state.Agents[testerID]
		if agent.CurrentTask != "verify checkout" || agent.Status != domain.StatusWorking {
			t.Errorf("agent = %+v", agent)
		}
		return nil
	})
}

func TestPollWorkFallsBackToWorldQueue(t *testing.T) {
	s, _ := testHub(t)
	joinAs(t, s, "c1", "planner", "planner")

	// propose_goal seeds planner work on the world queue.
	callJSON(t, s, "propose_goal", map[string]any{
		"clientId":    "c1",
		"description": "Ship login",
		"criteria":    []any{"endpoint /auth/login implemented"},
	})

	poll := callJSON(t, s, "poll_work", map[string]any{"clientId": "c1"})
	if poll["source"] != "world" {
		t.Fatalf("source = %v, want world: %v", poll["source"], poll)
	}
	work := poll["work"].(map[string]any)
	if work["role"] != "planner" {
		t.Errorf("role = %v", work["role"])
	}
	if work["goal_id"] == "" {
		t.Error("world work should carry its goal id")
	}
}

func TestClaimAndCompleteWork(t *testing.T) {
	s, svc := testHub(t)
	coderID := joinAs(t, s, "c1", "coder", "coder")

	added := callJSON(t, s, "add_work", map[string]any{"description": "build nav", "for_role": "coder"})
	workID := added["workId"].(string)

	claim := callJSON(t, s, "claim_work", map[string]any{"clientId": "c1", "id": workID})
	if errKind(claim) != "" {
		t.Fatalf("claim failed: %v", claim)
	}

	// Claiming twice is rejected.
	claim = callJSON(t, s, "claim_work", map[string]any{"clientId": "c1", "id": workID})
	if errKind(claim) != "INVALID_INPUT" {
		t.Errorf("error = %v, want INVALID_INPUT", claim)
	}

	done := callJSON(t, s, "complete_work", map[string]any{
		"clientId": "c1",
		"id":       workID,
		"result":   "nav shipped",
	})
	if done["completed"] != true {
		t.Fatalf("complete failed: %v", done)
	}

	_ = svc.Query(func(state *domain.WorkspaceState) error {
		if agent := state.Agents[coderID]; agent.Status != domain.StatusIdle {
			t.Errorf("agent status = %s, want idle", agent.Status)
		}
		for _, w := range state.WorkQueue {
			if w.ID == workID && w.Status != domain.WorkCompleted {
				t.Errorf("work status = %s", w.Status)
			}
		}
		return nil
	})
}

func TestCompleteWorkUnknownIDEither(t *testing.T) {
	s, _ := testHub(t)
	payload := callJSON(t, s, "complete_work", map[string]any{"id": "nope"})
	if errKind(payload) != "NOT_FOUND" {
		t.Errorf("error = %v, want NOT_FOUND", payload)
	}
}
