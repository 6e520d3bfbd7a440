package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/jaakkos/synapse/internal/app"
	"github.com/jaakkos/synapse/internal/cascade"
	"github.com/jaakkos/synapse/internal/docsession"
	"github.com/jaakkos/synapse/internal/policy"
	"github.com/jaakkos/synapse/internal/tools/hub"
	"github.com/jaakkos/synapse/internal/worldstate"
)

func newExecuteFixture(t *testing.T) *executeHandler {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	pol := policy.New(policy.DefaultConfig())
	svc := app.NewHubService(pol, logger)
	registry := app.NewSessionRegistry()

	mcpServer := server.NewMCPServer("synapse-hub", Version)
	hub.Register(mcpServer, hub.Deps{
		Service:  svc,
		Registry: registry,
		Docs:     docsession.NewManager(pol.DocGCDelay, logger),
		World:    worldstate.NewEngine(svc.Bump, logger),
		Cascade:  cascade.NewEngine(svc.Bump, logger),
		Logger:   logger,
	})
	return newExecuteHandler(mcpServer, logger)
}

func postExecute(t *testing.T, h *executeHandler, body string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(body)))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return rec.Code, out
}

func TestExecuteDispatchesTool(t *testing.T) {
	h := newExecuteFixture(t)
	code, out := postExecute(t, h, `{"tool":"join_workspace","arguments":{"name":"zoe","role":"backend"},"clientId":"c1"}`)
	require.Equal(t, http.StatusOK, code)

	content := out["content"].([]any)
	require.NotEmpty(t, content)
	text := content[0].(map[string]any)["text"].(string)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &payload))
	require.NotEmpty(t, payload["agentId"])
	require.Equal(t, "backend", payload["role"])
}

func TestExecuteUnknownToolKind(t *testing.T) {
	h := newExecuteFixture(t)
	code, out := postExecute(t, h, `{"tool":"frobnicate","arguments":{}}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "UNKNOWN_TOOL", out["error"])
	require.NotEmpty(t, out["message"])
}

func TestExecuteRejectsMissingTool(t *testing.T) {
	h := newExecuteFixture(t)

	code, out := postExecute(t, h, `{"arguments":{}}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "missing tool field", out["error"])

	code, _ = postExecute(t, h, `{not json`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestExecuteRequiresPOST(t *testing.T) {
	h := newExecuteFixture(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/execute", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
