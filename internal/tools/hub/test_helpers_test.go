package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/synapse/internal/app"
	"github.com/jaakkos/synapse/internal/cascade"
	"github.com/jaakkos/synapse/internal/docsession"
	"github.com/jaakkos/synapse/internal/policy"
	"github.com/jaakkos/synapse/internal/worldstate"
)

// testHub creates an MCPServer with every tool registered over fresh
// engines, plus the service for direct state assertions.
func testHub(t *testing.T) (*server.MCPServer, *app.HubService) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	pol := policy.New(policy.DefaultConfig())
	svc := app.NewHubService(pol, logger)

	archive, err := worldstate.NewArchive()
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { archive.Close() })

	s := server.NewMCPServer("test", "0.0.0")
	Register(s, Deps{
		Service:  svc,
		Registry: app.NewSessionRegistry(),
		Docs:     docsession.NewManager(pol.DocGCDelay, logger),
		World:    worldstate.NewEngine(svc.Bump, logger, worldstate.WithArchive(archive)),
		Archive:  archive,
		Cascade:  cascade.NewEngine(svc.Bump, logger),
		Logger:   logger,
	})
	return s, svc
}

// callTool calls a registered tool via the MCPServer's HandleMessage.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t.Helper()

	reqJSON, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      name,
			"arguments": args,
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	respJSON := s.HandleMessage(context.Background(), reqJSON)

	respBytes, marshalErr := json.Marshal(respJSON)
	if marshalErr != nil {
		t.Fatalf("marshal response: %v", marshalErr)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	var result mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return &result, nil
}

// callJSON calls a tool and decodes its JSON text payload.
func callJSON(t *testing.T, s *server.MCPServer, name string, args map[string]any) map[string]any {
	t.Helper()
	result, err := callTool(t, s, name, args)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &payload); err != nil {
		t.Fatalf("%s: decode payload: %v", name, err)
	}
	return payload
}

// resultText extracts the first text content from a CallToolResult.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("result is nil")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}

// joinAs joins the workspace with a clientId binding and returns the
// new agent id.
func joinAs(t *testing.T, s *server.MCPServer, clientID, name, role string) string {
	t.Helper()
	payload := callJSON(t, s, "join_workspace", map[string]any{
		"clientId": clientID,
		"name":     name,
		"role":     role,
	})
	agentID, _ := payload["agentId"].(string)
	if agentID == "" {
		t.Fatalf("join_workspace returned no agentId: %v", payload)
	}
	return agentID
}

// errKind extracts the "error" field of an error payload, or "".
func errKind(payload map[string]any) string {
	kind, _ := payload["error"].(string)
	return kind
}
