package app

import (
	"errors"
	"io"
	"log"
	"testing"

	"github.com/jaakkos/synapse/internal/domain"
	"github.com/jaakkos/synapse/internal/policy"
)

func testService(t *testing.T) *HubService {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	return NewHubService(policy.New(policy.DefaultConfig()), logger)
}

func TestMutateBumpsVersionOnce(t *testing.T) {
	svc := testService(t)
	if svc.Version() != 0 {
		t.Fatalf("initial version = %d, want 0", svc.Version())
	}
	for i := 1; i <= 3; i++ {
		err := svc.Mutate(func(state *domain.WorkspaceState) error {
			state.Target = "build auth"
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if svc.Version() != int64(i) {
			t.Fatalf("version after %d mutations = %d", i, svc.Version())
		}
	}
}

func TestMutateErrorDoesNotBump(t *testing.T) {
	svc := testService(t)
	wantErr := errors.New("boom")
	err := svc.Mutate(func(*domain.WorkspaceState) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
	if svc.Version() != 0 {
		t.Errorf("version = %d after failed mutation, want 0", svc.Version())
	}
}

func TestMutateIfBumpsOnlyOnChange(t *testing.T) {
	svc := testService(t)
	_ = svc.MutateIf(func(*domain.WorkspaceState) (bool, error) { return false, nil })
	if svc.Version() != 0 {
		t.Errorf("version = %d after no-op sweep, want 0", svc.Version())
	}
	_ = svc.MutateIf(func(*domain.WorkspaceState) (bool, error) { return true, nil })
	if svc.Version() != 1 {
		t.Errorf("version = %d after changing sweep, want 1", svc.Version())
	}
}

func TestBumpHookRunsSynchronously(t *testing.T) {
	svc := testService(t)
	var seen []int64
	svc.SetBumpHook(func(v int64) { seen = append(seen, v) })

	_ = svc.Mutate(func(*domain.WorkspaceState) error { return nil })
	_ = svc.Mutate(func(*domain.WorkspaceState) error { return nil })

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("hook saw %v, want [1 2]", seen)
	}
}
