// Package hub registers the coordination tools on the MCP server: one
// file per family (workspace, locks, work, docs, world, goals,
// contracts, merge). Every tool returns a JSON object in a single text
// content; domain failures are reported as {"error": KIND, "message":…}
// payloads rather than protocol errors, so agent frameworks that retry
// on RPC errors don't loop on business-rule rejections.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/synapse/internal/app"
	"github.com/jaakkos/synapse/internal/domain"
)

// jsonResult marshals v into a single text content.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// errResult translates a domain error into an {"error": KIND} payload.
// Unclassified errors map to DEGRADED.
func errResult(err error) (*mcp.CallToolResult, error) {
	kind := domain.ErrDegraded.Error()
	for _, sentinel := range []error{
		domain.ErrNotFound,
		domain.ErrLockHeld,
		domain.ErrInvalidInput,
		domain.ErrContradiction,
		domain.ErrUnknownTool,
	} {
		if errors.Is(err, sentinel) {
			kind = sentinel.Error()
			break
		}
	}
	return jsonResult(map[string]any{
		"error":   kind,
		"message": err.Error(),
	})
}

// sessionKey returns the caller's session identifier: an explicit
// clientId argument (the /execute adapter injects one) or the MCP
// session from the context.
func sessionKey(ctx context.Context, args map[string]any) string {
	if cid, _ := args["clientId"].(string); cid != "" {
		return cid
	}
	if session := server.ClientSessionFromContext(ctx); session != nil {
		return session.SessionID()
	}
	return ""
}

// resolveCaller maps the request to a joined agent ID, or "unknown" for
// unbound sessions. Unbound callers still execute (spec'd behavior for
// scripts poking the hub before joining).
func resolveCaller(ctx context.Context, registry *app.SessionRegistry, args map[string]any) string {
	key := sessionKey(ctx, args)
	if key == "" {
		return "unknown"
	}
	if agentID := registry.AgentFor(key); agentID != "" {
		registry.Touch(key)
		return agentID
	}
	return "unknown"
}

// touchAgent refreshes lastSeen so the presence sweeper keeps the agent
// alive. Call inside a Mutate/Query while holding the state.
func touchAgent(state *domain.WorkspaceState, agentID string, now time.Time) *domain.Agent {
	agent, ok := state.Agents[agentID]
	if !ok {
		return nil
	}
	agent.LastSeen = now
	return agent
}
