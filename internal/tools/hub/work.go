package hub

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/synapse/internal/app"
	"github.com/jaakkos/synapse/internal/domain"
	"github.com/jaakkos/synapse/internal/worldstate"
)

// registerAddWork registers the add_work tool.
func registerAddWork(s *server.MCPServer, svc *app.HubService, logger *log.Logger, registry *app.SessionRegistry) {
	s.AddTool(
		mcp.NewTool("add_work",
			mcp.WithDescription("Queue a work item for a role. Agents of that role receive it via poll_work."),
			mcp.WithString("description", mcp.Required(), mcp.Description("What needs doing")),
			mcp.WithString("for_role", mcp.Description("Role the work is for (default: any)")),
			mcp.WithNumber("priority", mcp.Description("Higher drains first (default 0)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			description, err := requireString(args, "description")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			item := &domain.WorkItem{
				ID:          uuid.NewString(),
				Description: description,
				ForRole:     roleArg(args, "for_role"),
				CreatedBy:   callerID,
				CreatedAt:   time.Now(),
				Status:      domain.WorkPending,
				Priority:    optionalInt(args, "priority", 0),
			}
			if err := svc.Mutate(func(state *domain.WorkspaceState) error {
				touchAgent(state, callerID, item.CreatedAt)
				state.WorkQueue = append(state.WorkQueue, item)
				return nil
			}); err != nil {
				return errResult(err)
			}
			logger.Printf("add_work: %s queued %q for %s", callerID, description, item.ForRole)
			return jsonResult(map[string]any{"workId": item.ID, "version": svc.Version()})
		},
	)
}

// registerPollWork registers the poll_work tool. The workspace queue is
// checked first; when it is empty the world-state queue feeds the same
// poll, so planner/fixer/tester work generated by the convergence
// engine reaches agents through one call.
func registerPollWork(s *server.MCPServer, svc *app.HubService, logger *log.Logger, registry *app.SessionRegistry, world *worldstate.Engine) {
	s.AddTool(
		mcp.NewTool("poll_work",
			mcp.WithDescription("Ask for the next work item matching your role. Also delivers any pending file handoff addressed to your role."),
			mcp.WithString("role", mcp.Description("Override the role to poll as (defaults to your agent's role)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			callerID := resolveCaller(ctx, registry, args)

			var (
				item    *domain.WorkItem
				role    domain.AgentRole
				handoff *domain.Handoff
			)
			if err := svc.MutateIf(func(state *domain.WorkspaceState) (bool, error) {
				now := time.Now()
				agent := touchAgent(state, callerID, now)
				role = roleArg(args, "role")
				if _, explicit := args["role"].(string); !explicit && agent != nil {
					role = agent.Role
				}

				// Oldest pending item whose role matches; "any" matches
				// in both directions.
				for _, w := range state.WorkQueue {
					if w.Status != domain.WorkPending {
						continue
					}
					if w.ForRole != role && w.ForRole != domain.RoleAny && role != domain.RoleAny {
						continue
					}
					w.Status = domain.WorkAssigned
					w.AssignedTo = callerID
					copied := *w
					item = &copied
					break
				}
				if item != nil && agent != nil {
					agent.CurrentTask = item.Description
					agent.Status = domain.StatusWorking
				}

				// Deliver (and consume) a handoff addressed to this role.
				for key, h := range state.Handoffs {
					if h.To == role || h.To == domain.RoleAny {
						handoff = h
						delete(state.Handoffs, key)
						break
					}
				}
				return item != nil || handoff != nil, nil
			}); err != nil {
				return errResult(err)
			}

			result := map[string]any{"role": role}
			if item == nil {
				if queued := world.AssignWork(callerID, role); queued != nil {
					result["work"] = queued
					result["source"] = "world"
				}
			} else {
				result["work"] = item
				result["source"] = "workspace"
			}
			if handoff != nil {
				result["handoff"] = handoff
			}
			if result["work"] == nil && handoff == nil {
				result["work"] = nil
			}
			logger.Printf("poll_work: %s as %s -> work=%v handoff=%v", callerID, role, result["work"] != nil, handoff != nil)
			return jsonResult(result)
		},
	)
}

// registerClaimWork registers the claim_work tool.
func registerClaimWork(s *server.MCPServer, svc *app.HubService, logger *log.Logger, registry *app.SessionRegistry) {
	s.AddTool(
		mcp.NewTool("claim_work",
			mcp.WithDescription("Claim a specific pending work item by id."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Work item id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			id, err := requireString(args, "id")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			var item domain.WorkItem
			if err := svc.Mutate(func(state *domain.WorkspaceState) error {
				now := time.Now()
				agent := touchAgent(state, callerID, now)
				for _, w := range state.WorkQueue {
					if w.ID != id {
						continue
					}
					if w.Status != domain.WorkPending {
						return fmt.Errorf("%w: work %s is %s", domain.ErrInvalidInput, id, w.Status)
					}
					w.Status = domain.WorkAssigned
					w.AssignedTo = callerID
					if agent != nil {
						agent.CurrentTask = w.Description
						agent.Status = domain.StatusWorking
					}
					item = *w
					return nil
				}
				return fmt.Errorf("%w: work item %s", domain.ErrNotFound, id)
			}); err != nil {
				return errResult(err)
			}
			logger.Printf("claim_work: %s claimed %s", callerID, id)
			return jsonResult(map[string]any{"work": item, "version": svc.Version()})
		},
	)
}

// registerCompleteWork registers the complete_work tool.
func registerCompleteWork(s *server.MCPServer, svc *app.HubService, logger *log.Logger, registry *app.SessionRegistry, world *worldstate.Engine) {
	s.AddTool(
		mcp.NewTool("complete_work",
			mcp.WithDescription("Mark a work item done. World-queue items re-evaluate their goal."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Work item id")),
			mcp.WithString("result", mcp.Description("Outcome summary")),
			mcp.WithString("handoff_context", mcp.Description("Context for whoever builds on this")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			id, err := requireString(args, "id")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			found := false
			if err := svc.MutateIf(func(state *domain.WorkspaceState) (bool, error) {
				now := time.Now()
				agent := touchAgent(state, callerID, now)
				for _, w := range state.WorkQueue {
					if w.ID != id {
						continue
					}
					w.Status = domain.WorkCompleted
					if w.Context == nil {
						w.Context = map[string]any{}
					}
					if v := optionalString(args, "result"); v != "" {
						w.Context["result"] = v
					}
					if v := optionalString(args, "handoff_context"); v != "" {
						w.Context["handoff"] = v
					}
					if agent != nil && agent.CurrentTask == w.Description {
						agent.CurrentTask = ""
						agent.Status = domain.StatusIdle
					}
					found = true
					return true, nil
				}
				return false, nil
			}); err != nil {
				return errResult(err)
			}

			if !found {
				// Not a workspace item; try the world-state queue.
				if _, err := world.CompleteWork(id); err != nil {
					return errResult(err)
				}
			}
			logger.Printf("complete_work: %s completed %s", callerID, id)
			return jsonResult(map[string]any{"workId": id, "completed": true, "version": svc.Version()})
		},
	)
}
