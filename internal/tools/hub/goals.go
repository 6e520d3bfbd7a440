package hub

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/synapse/internal/app"
	"github.com/jaakkos/synapse/internal/worldstate"
)

// registerProposeGoal registers the propose_goal tool.
func registerProposeGoal(s *server.MCPServer, logger *log.Logger, registry *app.SessionRegistry, world *worldstate.Engine) {
	s.AddTool(
		mcp.NewTool("propose_goal",
			mcp.WithDescription("Propose an objective with measurable success criteria. Planner work is queued to break it down; the convergence loop re-evaluates it until satisfied."),
			mcp.WithString("description", mcp.Required(), mcp.Description("What done looks like, e.g. 'Users can log in'")),
			mcp.WithArray("criteria", mcp.Description("Success criteria checked against the world state, e.g. ['endpoint /auth/login implemented', 'tests pass']")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			description, err := requireString(args, "description")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			goal, err := world.ProposeGoal(callerID, description, stringSlice(args, "criteria"))
			if err != nil {
				return errResult(err)
			}
			logger.Printf("propose_goal: %s proposed %q (%d criteria)", callerID, description, len(goal.SuccessCriteria))
			return jsonResult(map[string]any{"goal": goal, "worldVersion": world.Version()})
		},
	)
}

// registerEvaluateGoal registers the evaluate_goal tool.
func registerEvaluateGoal(s *server.MCPServer, registry *app.SessionRegistry, world *worldstate.Engine) {
	s.AddTool(
		mcp.NewTool("evaluate_goal",
			mcp.WithDescription("Re-check a goal's success criteria now. Returns satisfied/progress/missing and applies the status transition."),
			mcp.WithString("goal_id", mcp.Required(), mcp.Description("Goal id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			id, err := requireString(args, "goal_id")
			if err != nil {
				return errResult(err)
			}
			resolveCaller(ctx, registry, args)

			eval, err := world.EvaluateGoal(id)
			if err != nil {
				return errResult(err)
			}
			goal, err := world.Goal(id)
			if err != nil {
				return errResult(err)
			}
			return jsonResult(map[string]any{
				"satisfied": eval.Satisfied,
				"progress":  eval.Progress,
				"missing":   eval.Missing,
				"status":    goal.Status,
			})
		},
	)
}

// registerEnqueueWork registers the enqueue_work tool for the
// world-state queue (prioritized, role-mapped).
func registerEnqueueWork(s *server.MCPServer, logger *log.Logger, registry *app.SessionRegistry, world *worldstate.Engine) {
	s.AddTool(
		mcp.NewTool("enqueue_work",
			mcp.WithDescription("Queue prioritized work on the convergence queue. Higher priority drains first; coder and fixer roles cover each other."),
			mcp.WithString("description", mcp.Required(), mcp.Description("What needs doing")),
			mcp.WithString("role", mcp.Description("Role the work is for (default: any)")),
			mcp.WithNumber("priority", mcp.Description("Higher drains first (default 5)")),
			mcp.WithString("goal_id", mcp.Description("Goal this work serves; completion re-evaluates it")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			description, err := requireString(args, "description")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			work, err := world.EnqueueWork(description, roleArg(args, "role"),
				optionalInt(args, "priority", 5), optionalString(args, "goal_id"))
			if err != nil {
				return errResult(err)
			}
			logger.Printf("enqueue_work: %s queued %q (prio %d)", callerID, description, work.Priority)
			return jsonResult(map[string]any{"work": work, "worldVersion": world.Version()})
		},
	)
}
