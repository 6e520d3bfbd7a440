package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/synapse/internal/app"
	"github.com/jaakkos/synapse/internal/domain"
	"github.com/jaakkos/synapse/internal/worldstate"
)

// registerApplyPatch registers the apply_patch tool.
func registerApplyPatch(s *server.MCPServer, logger *log.Logger, registry *app.SessionRegistry, world *worldstate.Engine) {
	s.AddTool(
		mcp.NewTool("apply_patch",
			mcp.WithDescription("Merge a partial update into the shared world state. patch is {table: {key: fields|null}} over files, endpoints, ui_elements, flows, tests; null deletes, fields shallow-merge."),
			mcp.WithObject("patch", mcp.Required(), mcp.Description("Entity tables to update")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			callerID := resolveCaller(ctx, registry, args)

			raw, ok := args["patch"].(map[string]any)
			if !ok {
				return errResult(fmt.Errorf("%w: patch object is required", domain.ErrInvalidInput))
			}
			patch, err := coercePatch(raw)
			if err != nil {
				return errResult(err)
			}
			if err := world.ApplyPatch(patch); err != nil {
				return errResult(err)
			}
			logger.Printf("apply_patch: %s updated %d table(s)", callerID, len(patch))
			return jsonResult(map[string]any{"applied": true, "worldVersion": world.Version()})
		},
	)
}

// coercePatch converts the raw JSON argument into the engine's patch
// shape, keeping nulls as deletes.
func coercePatch(raw map[string]any) (worldstate.Patch, error) {
	patch := make(worldstate.Patch, len(raw))
	for table, v := range raw {
		entries, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: table %q must be an object", domain.ErrInvalidInput, table)
		}
		patch[table] = make(map[string]map[string]any, len(entries))
		for key, fv := range entries {
			if fv == nil {
				patch[table][key] = nil
				continue
			}
			fields, ok := fv.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: entry %q.%q must be an object or null", domain.ErrInvalidInput, table, key)
			}
			patch[table][key] = fields
		}
	}
	return patch, nil
}

// registerAssertFact registers the assert_fact tool.
func registerAssertFact(s *server.MCPServer, logger *log.Logger, registry *app.SessionRegistry, world *worldstate.Engine) {
	s.AddTool(
		mcp.NewTool("assert_fact",
			mcp.WithDescription("Assert an observation about the world. Contradicting a recent observation records a conflict and queues tester work."),
			mcp.WithString("assertion", mcp.Required(), mcp.Description("What you observed, e.g. 'login flow is working'")),
			mcp.WithNumber("confidence", mcp.Description("0..1, default 0.8")),
			mcp.WithString("source", mcp.Description("How you know (test run, code read, ...)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			assertion, err := requireString(args, "assertion")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			obs, conflict, err := world.AssertFact(callerID, assertion,
				optionalFloat(args, "confidence", 0.8), optionalString(args, "source"))
			if err != nil {
				return errResult(err)
			}
			result := map[string]any{"observationId": obs.ID, "worldVersion": world.Version()}
			if conflict != nil {
				result["conflict"] = conflict
				logger.Printf("assert_fact: %s contradicted %q", callerID, conflict.Contradicts)
			}
			return jsonResult(result)
		},
	)
}

// registerSearchObservations registers the search_observations tool.
func registerSearchObservations(s *server.MCPServer, registry *app.SessionRegistry, archive *worldstate.Archive) {
	s.AddTool(
		mcp.NewTool("search_observations",
			mcp.WithDescription("Full-text search over the complete observation history, including entries rotated out of the recent ring."),
			mcp.WithString("query", mcp.Required(), mcp.Description("FTS query, e.g. 'login AND failing'")),
			mcp.WithNumber("limit", mcp.Description("Max hits (default 10, max 50)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			query, err := requireString(args, "query")
			if err != nil {
				return errResult(err)
			}
			resolveCaller(ctx, registry, args)

			results, err := archive.Search(query, optionalInt(args, "limit", 10))
			if err != nil {
				return errResult(fmt.Errorf("%w: %v", domain.ErrDegraded, err))
			}
			return jsonResult(map[string]any{"results": results, "count": len(results)})
		},
	)
}

// registerReportFailure registers the report_failure tool.
func registerReportFailure(s *server.MCPServer, logger *log.Logger, registry *app.SessionRegistry, world *worldstate.Engine) {
	s.AddTool(
		mcp.NewTool("report_failure",
			mcp.WithDescription("Report a broken area. Marks matching endpoints as failing and queues fixer work."),
			mcp.WithString("area", mcp.Required(), mcp.Description("Route, component or feature that broke, e.g. '/auth/login'")),
			mcp.WithString("reason", mcp.Description("What went wrong")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			area, err := requireString(args, "area")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			work, err := world.ReportFailure(callerID, area, optionalString(args, "reason"))
			if err != nil {
				return errResult(err)
			}
			logger.Printf("report_failure: %s reported %s", callerID, area)
			return jsonResult(map[string]any{"work": work, "worldVersion": world.Version()})
		},
	)
}

// registerResolveConflict registers the resolve_conflict tool.
func registerResolveConflict(s *server.MCPServer, logger *log.Logger, registry *app.SessionRegistry, world *worldstate.Engine) {
	s.AddTool(
		mcp.NewTool("resolve_conflict",
			mcp.WithDescription("Mark a recorded observation conflict as resolved, typically after re-testing the contested area."),
			mcp.WithString("conflict_id", mcp.Required(), mcp.Description("ID of the conflict to resolve")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			id, err := requireString(args, "conflict_id")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			conflict, err := world.ResolveConflict(id)
			if err != nil {
				return errResult(err)
			}
			logger.Printf("resolve_conflict: %s resolved %s", callerID, id)
			return jsonResult(map[string]any{"conflict": conflict, "worldVersion": world.Version()})
		},
	)
}

// registerGetWorldState registers the get_world_state tool.
func registerGetWorldState(s *server.MCPServer, registry *app.SessionRegistry, world *worldstate.Engine) {
	s.AddTool(
		mcp.NewTool("get_world_state",
			mcp.WithDescription("Read the full belief graph: entities, goals, recent observations, conflicts and the work queue."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			resolveCaller(ctx, registry, req.GetArguments())
			snap, err := world.Snapshot()
			if err != nil {
				return errResult(err)
			}
			raw, err := json.Marshal(snap)
			if err != nil {
				return nil, fmt.Errorf("marshal world state: %w", err)
			}
			return mcp.NewToolResultText(string(raw)), nil
		},
	)
}
