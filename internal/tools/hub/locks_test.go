package hub

import (
	"testing"

	"github.com/jaakkos/synapse/internal/domain"
)

func TestLockFileAcquireAndConflict(t *testing.T) {
	s, _ := testHub(t)
	joinAs(t, s, "c1", "alpha", "backend")
	joinAs(t, s, "c2", "beta", "frontend")

	payload := callJSON(t, s, "lock_file", map[string]any{
		"clientId": "c1",
		"path":     "src/auth.ts",
		"reason":   "adding session middleware",
	})
	if errKind(payload) != "" {
		t.Fatalf("lock failed: %v", payload)
	}

	// A different agent is rejected with LOCK_HELD.
	payload = callJSON(t, s, "lock_file", map[string]any{
		"clientId": "c2",
		"path":     "src/auth.ts",
	})
	if errKind(payload) != "LOCK_HELD" {
		t.Errorf("error = %v, want LOCK_HELD", payload)
	}

	// The owner re-locking renews instead of failing.
	payload = callJSON(t, s, "lock_file", map[string]any{
		"clientId": "c1",
		"path":     "src/auth.ts",
	})
	if payload["renewed"] != true {
		t.Errorf("renewed = %v, want true", payload["renewed"])
	}
}

func TestLockFileEmitsWorkingIntent(t *testing.T) {
	s, _ := testHub(t)
	joinAs(t, s, "c1", "alpha", "backend")

	callJSON(t, s, "lock_file", map[string]any{
		"clientId": "c1",
		"path":     "src/auth.ts",
		"reason":   "refactor",
	})
	intents := callJSON(t, s, "read_intents", map[string]any{})["intents"].([]any)
	last := intents[len(intents)-1].(map[string]any)
	if last["action"] != domain.IntentWorking {
		t.Errorf("action = %v, want working", last["action"])
	}
}

func TestCheckLocks(t *testing.T) {
	s, _ := testHub(t)
	joinAs(t, s, "c1", "alpha", "backend")
	callJSON(t, s, "lock_file", map[string]any{"clientId": "c1", "path": "a.ts"})
	callJSON(t, s, "lock_file", map[string]any{"clientId": "c1", "path": "b.ts"})

	payload := callJSON(t, s, "check_locks", map[string]any{"path": "a.ts"})
	if payload["locked"] != true {
		t.Errorf("a.ts should be locked: %v", payload)
	}
	payload = callJSON(t, s, "check_locks", map[string]any{"path": "zzz.ts"})
	if payload["locked"] != false {
		t.Errorf("zzz.ts should not be locked: %v", payload)
	}
	payload = callJSON(t, s, "check_locks", map[string]any{})
	if int(payload["count"].(float64)) != 2 {
		t.Errorf("count = %v, want 2", payload["count"])
	}
}

func TestRenewLockOwnerOnly(t *testing.T) {
	s, _ := testHub(t)
	joinAs(t, s, "c1", "alpha", "backend")
	joinAs(t, s, "c2", "beta", "frontend")
	callJSON(t, s, "lock_file", map[string]any{"clientId": "c1", "path": "a.ts"})

	payload := callJSON(t, s, "renew_lock", map[string]any{"clientId": "c2", "path": "a.ts"})
	if errKind(payload) != "LOCK_HELD" {
		t.Errorf("error = %v, want LOCK_HELD", payload)
	}
	payload = callJSON(t, s, "renew_lock", map[string]any{"clientId": "c1", "path": "a.ts"})
	if errKind(payload) != "" {
		t.Errorf("owner renew failed: %v", payload)
	}
	payload = callJSON(t, s, "renew_lock", map[string]any{"clientId": "c1", "path": "missing.ts"})
	if errKind(payload) != "NOT_FOUND" {
		t.Errorf("error = %v, want NOT_FOUND", payload)
	}
}

func TestUnlockWithHandoffDeliversOnPoll(t *testing.T) {
	s, _ := testHub(t)
	joinAs(t, s, "c1", "alpha", "backend")
	joinAs(t, s, "c2", "beta", "tester")

	callJSON(t, s, "lock_file", map[string]any{"clientId": "c1", "path": "src/auth.ts"})
	payload := callJSON(t, s, "unlock_file", map[string]any{
		"clientId":   "c1",
		"path":       "src/auth.ts",
		"handoff_to": "tester",
		"message":    "please add login tests",
	})
	if payload["handedOff"] != true {
		t.Fatalf("handedOff = %v", payload["handedOff"])
	}

	poll := callJSON(t, s, "poll_work", map[string]any{"clientId": "c2"})
	handoff, ok := poll["handoff"].(map[string]any)
	if !ok {
		t.Fatalf("poll_work returned no handoff: %v", poll)
	}
	if handoff["message"] != "please add login tests" {
		t.Errorf("message = %v", handoff["message"])
	}

	// Consumed: a second poll gets nothing.
	poll = callJSON(t, s, "poll_work", map[string]any{"clientId": "c2"})
	if _, ok := poll["handoff"]; ok {
		t.Error("handoff delivered twice")
	}
}

func TestUnlockOtherAgentsLockFails(t *testing.T) {
	s, _ := testHub(t)
	joinAs(t, s, "c1", "alpha", "backend")
	joinAs(t, s, "c2", "beta", "frontend")
	callJSON(t, s, "lock_file", map[string]any{"clientId": "c1", "path": "a.ts"})

	payload := callJSON(t, s, "unlock_file", map[string]any{"clientId": "c2", "path": "a.ts"})
	if errKind(payload) != "LOCK_HELD" {
		t.Errorf("error = %v, want LOCK_HELD", payload)
	}
}

func TestForceUnlock(t *testing.T) {
	s, svc := testHub(t)
	alphaID := joinAs(t, s, "c1", "alpha", "backend")
	joinAs(t, s, "c2", "admin", "observer")
	callJSON(t, s, "lock_file", map[string]any{"clientId": "c1", "path": "a.ts"})

	payload := callJSON(t, s, "force_unlock", map[string]any{"clientId": "c2", "path": "a.ts"})
	if payload["wasHeldBy"] != alphaID {
		t.Errorf("wasHeldBy = %v, want %s", payload["wasHeldBy"], alphaID)
	}

	_ = svc.Query(func(state *domain.WorkspaceState) error {
		if _, ok := state.Locks["a.ts"]; ok {
			t.Error("lock still present after force_unlock")
		}
		if owner := state.Agents[alphaID]; owner.Status != domain.StatusIdle {
			t.Errorf("owner status = %s, want idle", owner.Status)
		}
		return nil
	})
}
