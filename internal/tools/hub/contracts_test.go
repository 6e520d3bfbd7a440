package hub

import (
	"testing"
)

func TestContractLifecycleThroughTools(t *testing.T) {
	s, _ := testHub(t)
	joinAs(t, s, "c1", "backend", "backend")
	joinAs(t, s, "c2", "frontend", "frontend")

	reg := callJSON(t, s, "register_contract", map[string]any{
		"clientId": "c1",
		"method":   "post",
		"endpoint": "/auth/login",
		"response": []any{
			map[string]any{"name": "token", "type": "string", "required": true},
		},
	})
	contract := reg["contract"].(map[string]any)
	if contract["method"] != "POST" || int(contract["version"].(float64)) != 1 {
		t.Fatalf("contract = %v", contract)
	}

	callJSON(t, s, "bind_frontend", map[string]any{
		"clientId":       "c2",
		"component_id":   "cmp-login",
		"component_name": "LoginForm",
		"endpoint":       "POST:/auth/login",
		"fields":         []any{"token"},
	})

	// Schema change: bound component goes stale.
	callJSON(t, s, "register_contract", map[string]any{
		"clientId": "c1",
		"method":   "POST",
		"endpoint": "/auth/login",
		"response": []any{
			map[string]any{"name": "token", "type": "string", "required": true},
			map[string]any{"name": "expiresAt", "type": "number", "required": false},
		},
	})

	outdated := callJSON(t, s, "get_outdated_components", map[string]any{})
	if int(outdated["count"].(float64)) != 1 {
		t.Fatalf("outdated = %v", outdated)
	}

	callJSON(t, s, "mark_binding_synced", map[string]any{"clientId": "c2", "component_id": "cmp-login"})
	outdated = callJSON(t, s, "get_outdated_components", map[string]any{})
	if int(outdated["count"].(float64)) != 0 {
		t.Errorf("still outdated after sync: %v", outdated)
	}

	events := callJSON(t, s, "get_cascade_log", map[string]any{})["events"].([]any)
	var types []string
	for _, raw := range events {
		types = append(types, raw.(map[string]any)["type"].(string))
	}
	want := map[string]bool{"endpoint_added": false, "contract_changed": false, "frontend_adapted": false}
	for _, tp := range types {
		if _, ok := want[tp]; ok {
			want[tp] = true
		}
	}
	for tp, seen := range want {
		if !seen {
			t.Errorf("missing cascade event %s in %v", tp, types)
		}
	}
}

func TestMergeSessionThroughTools(t *testing.T) {
	s, _ := testHub(t)
	joinAs(t, s, "c1", "alpha", "coder")
	joinAs(t, s, "c2", "beta", "coder")

	callJSON(t, s, "join_file_session", map[string]any{"clientId": "c1", "path": "main.ts"})
	roster := callJSON(t, s, "join_file_session", map[string]any{"clientId": "c2", "path": "main.ts"})
	if n := len(roster["editors"].([]any)); n != 2 {
		t.Fatalf("editors = %v", roster["editors"])
	}

	first := callJSON(t, s, "propose_change", map[string]any{
		"clientId": "c1", "path": "main.ts", "start": 0, "end": 15, "new_text": "left",
	})
	if first["merged"] != false {
		t.Errorf("first change should not merge: %v", first)
	}
	second := callJSON(t, s, "propose_change", map[string]any{
		"clientId": "c2", "path": "main.ts", "start": 10, "end": 25, "new_text": "right",
	})
	if second["merged"] != true {
		t.Fatalf("overlapping change should merge: %v", second)
	}
	change := second["change"].(map[string]any)
	if change["newText"] != "leftright" {
		t.Errorf("merged text = %v", change["newText"])
	}

	log := callJSON(t, s, "get_cascade_log", map[string]any{})
	events := log["events"].([]any)
	last := events[len(events)-1].(map[string]any)
	if last["type"] != "conflict_resolved" {
		t.Errorf("last event = %v", last["type"])
	}
}

func TestDocToolsRoundTrip(t *testing.T) {
	s, _ := testHub(t)
	joinAs(t, s, "c1", "alpha", "frontend")

	created := callJSON(t, s, "create_doc", map[string]any{
		"clientId": "c1",
		"path":     "src/App.tsx",
		"initial":  "export default function App() {}",
	})
	if created["created"] != true {
		t.Fatalf("create_doc: %v", created)
	}

	// Idempotent.
	again := callJSON(t, s, "create_doc", map[string]any{"clientId": "c1", "path": "src/App.tsx"})
	if again["created"] != false {
		t.Errorf("second create should report created=false: %v", again)
	}

	doc := callJSON(t, s, "get_doc", map[string]any{"path": "src/App.tsx"})
	if doc["content"] != "export default function App() {}" {
		t.Errorf("content = %v", doc["content"])
	}

	list := callJSON(t, s, "list_doc_sessions", map[string]any{})
	if int(list["count"].(float64)) != 1 {
		t.Errorf("sessions = %v", list)
	}

	missing := callJSON(t, s, "get_doc", map[string]any{"path": "nope.ts"})
	if errKind(missing) != "NOT_FOUND" {
		t.Errorf("error = %v, want NOT_FOUND", missing)
	}
}
