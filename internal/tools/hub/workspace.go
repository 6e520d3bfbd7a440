package hub

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/synapse/internal/app"
	"github.com/jaakkos/synapse/internal/domain"
)

// registerJoinWorkspace registers the join_workspace tool.
func registerJoinWorkspace(s *server.MCPServer, svc *app.HubService, logger *log.Logger, registry *app.SessionRegistry) {
	s.AddTool(
		mcp.NewTool("join_workspace",
			mcp.WithDescription("Join the shared workspace as an agent. Binds your session to the new agent id; call this before any other tool."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Display name, e.g. 'backend-claude'")),
			mcp.WithString("client", mcp.Description("Client kind: claude, cursor, terminal, web, ...")),
			mcp.WithString("role", mcp.Description("Role: planner, backend, frontend, coder, fixer, tester, refactor, observer, any (default: any)")),
			mcp.WithBoolean("autonomous", mcp.Description("Set if this agent polls work without a human in the loop")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			name, err := requireString(args, "name")
			if err != nil {
				return errResult(err)
			}
			autonomous, _ := args["autonomous"].(bool)

			agent := &domain.Agent{
				ID:         uuid.NewString(),
				Name:       name,
				Client:     optionalString(args, "client"),
				Role:       roleArg(args, "role"),
				Status:     domain.StatusIdle,
				JoinedAt:   time.Now(),
				LastSeen:   time.Now(),
				Autonomous: autonomous,
			}

			var target string
			if err := svc.Mutate(func(state *domain.WorkspaceState) error {
				state.Agents[agent.ID] = agent
				target = state.Target
				return nil
			}); err != nil {
				return errResult(err)
			}

			if key := sessionKey(ctx, args); key != "" {
				registry.Bind(key, agent.ID)
			}
			logger.Printf("join_workspace: %s (%s/%s) joined as %s", name, agent.Client, agent.Role, agent.ID)
			return jsonResult(map[string]any{
				"agentId": agent.ID,
				"role":    agent.Role,
				"target":  target,
				"version": svc.Version(),
			})
		},
	)
}

// registerSetTarget registers the set_target tool.
func registerSetTarget(s *server.MCPServer, svc *app.HubService, logger *log.Logger, registry *app.SessionRegistry) {
	s.AddTool(
		mcp.NewTool("set_target",
			mcp.WithDescription("Set the workspace-wide build target everyone converges on."),
			mcp.WithString("target", mcp.Required(), mcp.Description("What the swarm is building, e.g. 'todo app with auth'")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			target, err := requireString(args, "target")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			if err := svc.Mutate(func(state *domain.WorkspaceState) error {
				state.Target = target
				now := time.Now()
				agent := touchAgent(state, callerID, now)
				name, client := callerID, ""
				if agent != nil {
					name, client = agent.Name, agent.Client
				}
				state.AppendIntent(domain.Intent{
					ID:          uuid.NewString(),
					AgentID:     callerID,
					AgentName:   name,
					Client:      client,
					Action:      domain.IntentTargetSet,
					Description: "Target set: " + target,
					Timestamp:   now,
				})
				return nil
			}); err != nil {
				return errResult(err)
			}
			logger.Printf("set_target: %s set target %q", callerID, target)
			return jsonResult(map[string]any{"target": target, "version": svc.Version()})
		},
	)
}

// registerGetTarget registers the get_target tool.
func registerGetTarget(s *server.MCPServer, svc *app.HubService, registry *app.SessionRegistry) {
	s.AddTool(
		mcp.NewTool("get_target",
			mcp.WithDescription("Read the current workspace target."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			callerID := resolveCaller(ctx, registry, req.GetArguments())
			var target string
			if err := svc.MutateIf(func(state *domain.WorkspaceState) (bool, error) {
				touchAgent(state, callerID, time.Now())
				target = state.Target
				return false, nil
			}); err != nil {
				return errResult(err)
			}
			return jsonResult(map[string]any{"target": target, "version": svc.Version()})
		},
	)
}

// registerListAgents registers the list_agents tool.
func registerListAgents(s *server.MCPServer, svc *app.HubService, registry *app.SessionRegistry) {
	s.AddTool(
		mcp.NewTool("list_agents",
			mcp.WithDescription("List every agent in the workspace with status and current task."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			callerID := resolveCaller(ctx, registry, req.GetArguments())
			var agents []domain.Agent
			if err := svc.MutateIf(func(state *domain.WorkspaceState) (bool, error) {
				touchAgent(state, callerID, time.Now())
				for _, a := range state.Agents {
					agents = append(agents, *a)
				}
				return false, nil
			}); err != nil {
				return errResult(err)
			}
			sort.Slice(agents, func(i, j int) bool { return agents[i].JoinedAt.Before(agents[j].JoinedAt) })
			return jsonResult(map[string]any{"agents": agents, "count": len(agents)})
		},
	)
}

// registerPostIntent registers the post_intent tool.
func registerPostIntent(s *server.MCPServer, svc *app.HubService, logger *log.Logger, registry *app.SessionRegistry) {
	s.AddTool(
		mcp.NewTool("post_intent",
			mcp.WithDescription("Announce what you are doing so other agents can coordinate around you."),
			mcp.WithString("action", mcp.Required(), mcp.Description("One of: working, blocked, completed, target_set, handoff"), mcp.Enum(domain.IntentWorking, domain.IntentBlocked, domain.IntentCompleted, domain.IntentTargetSet, domain.IntentHandoff)),
			mcp.WithString("description", mcp.Required(), mcp.Description("Short human-readable description")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			action, err := requireString(args, "action")
			if err != nil {
				return errResult(err)
			}
			description, err := requireString(args, "description")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			intent := domain.Intent{
				ID:          uuid.NewString(),
				AgentID:     callerID,
				Action:      action,
				Description: description,
				Timestamp:   time.Now(),
			}
			if err := svc.Mutate(func(state *domain.WorkspaceState) error {
				if agent := touchAgent(state, callerID, intent.Timestamp); agent != nil {
					intent.AgentName = agent.Name
					intent.Client = agent.Client
				} else {
					intent.AgentName = callerID
				}
				state.AppendIntent(intent)
				return nil
			}); err != nil {
				return errResult(err)
			}
			logger.Printf("post_intent: %s %s: %s", callerID, action, description)
			return jsonResult(map[string]any{"intentId": intent.ID, "version": svc.Version()})
		},
	)
}

// registerReadIntents registers the read_intents tool.
func registerReadIntents(s *server.MCPServer, svc *app.HubService, registry *app.SessionRegistry) {
	s.AddTool(
		mcp.NewTool("read_intents",
			mcp.WithDescription("Read the recent intent log, newest last."),
			mcp.WithNumber("limit", mcp.Description("Max entries to return (default 20)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			limit := optionalInt(args, "limit", 20)
			callerID := resolveCaller(ctx, registry, args)

			var intents []domain.Intent
			if err := svc.MutateIf(func(state *domain.WorkspaceState) (bool, error) {
				touchAgent(state, callerID, time.Now())
				entries := state.Intents
				if limit > 0 && len(entries) > limit {
					entries = entries[len(entries)-limit:]
				}
				intents = append(intents, entries...)
				return false, nil
			}); err != nil {
				return errResult(err)
			}
			return jsonResult(map[string]any{"intents": intents, "count": len(intents)})
		},
	)
}
