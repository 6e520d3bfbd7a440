package hub

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/synapse/internal/app"
	"github.com/jaakkos/synapse/internal/domain"
)

// lockView is the wire shape of a lock in tool results.
type lockView struct {
	Path      string `json:"path"`
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
	Reason    string `json:"reason,omitempty"`
	ExpiresAt string `json:"expiresAt"`
}

func viewLock(l *domain.FileLock) lockView {
	return lockView{
		Path:      l.Path,
		AgentID:   l.AgentID,
		AgentName: l.AgentName,
		Reason:    l.Reason,
		ExpiresAt: l.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// registerLockFile registers the lock_file tool.
func registerLockFile(s *server.MCPServer, svc *app.HubService, logger *log.Logger, registry *app.SessionRegistry) {
	s.AddTool(
		mcp.NewTool("lock_file",
			mcp.WithDescription("Acquire an exclusive, auto-expiring lock on a path before editing it. Re-locking your own path renews the TTL."),
			mcp.WithString("path", mcp.Required(), mcp.Description("File path to lock")),
			mcp.WithString("reason", mcp.Description("Why you need the file")),
			mcp.WithNumber("ttl_seconds", mcp.Description("Lock TTL in seconds (default from config, max 300)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			path, err := requireString(args, "path")
			if err != nil {
				return errResult(err)
			}
			reason := optionalString(args, "reason")
			callerID := resolveCaller(ctx, registry, args)

			ttl := svc.Policy().LockTTL()
			if v := optionalInt(args, "ttl_seconds", 0); v > 0 {
				if v > 300 {
					v = 300
				}
				ttl = time.Duration(v) * time.Second
			}

			var lock lockView
			renewed := false
			if err := svc.Mutate(func(state *domain.WorkspaceState) error {
				now := time.Now()
				agent := touchAgent(state, callerID, now)

				if existing, ok := state.Locks[path]; ok && existing != nil && existing.ExpiresAt.After(now) {
					if existing.AgentID != callerID {
						return fmt.Errorf("%w: %s locked by %s until %s",
							domain.ErrLockHeld, path, existing.AgentName,
							existing.ExpiresAt.UTC().Format(time.RFC3339))
					}
					existing.ExpiresAt = now.Add(ttl)
					if reason != "" {
						existing.Reason = reason
					}
					renewed = true
					lock = viewLock(existing)
					return nil
				}

				name, client, role := callerID, "", domain.RoleAny
				if agent != nil {
					name, client, role = agent.Name, agent.Client, agent.Role
					agent.CurrentTask = path
					agent.Status = domain.StatusWorking
				}
				l := &domain.FileLock{
					Path:      path,
					AgentID:   callerID,
					AgentName: name,
					Client:    client,
					Role:      role,
					Reason:    reason,
					LockedAt:  now,
					ExpiresAt: now.Add(ttl),
				}
				state.Locks[path] = l
				state.AppendIntent(domain.Intent{
					ID:          uuid.NewString(),
					AgentID:     callerID,
					AgentName:   name,
					Client:      client,
					Action:      domain.IntentWorking,
					Description: fmt.Sprintf("Locked %s: %s", path, reason),
					Timestamp:   now,
				})
				lock = viewLock(l)
				return nil
			}); err != nil {
				return errResult(err)
			}
			logger.Printf("lock_file: %s locked %s (renewed=%t, ttl=%s)", callerID, path, renewed, ttl)
			return jsonResult(map[string]any{"lock": lock, "renewed": renewed, "version": svc.Version()})
		},
	)
}

// registerRenewLock registers the renew_lock tool.
func registerRenewLock(s *server.MCPServer, svc *app.HubService, logger *log.Logger, registry *app.SessionRegistry) {
	s.AddTool(
		mcp.NewTool("renew_lock",
			mcp.WithDescription("Extend your lock on a path by the configured TTL."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Locked file path")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			path, err := requireString(args, "path")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)
			ttl := svc.Policy().LockTTL()

			var lock lockView
			if err := svc.Mutate(func(state *domain.WorkspaceState) error {
				now := time.Now()
				touchAgent(state, callerID, now)
				existing, ok := state.Locks[path]
				if !ok || existing == nil || !existing.ExpiresAt.After(now) {
					return fmt.Errorf("%w: no active lock on %s", domain.ErrNotFound, path)
				}
				if existing.AgentID != callerID {
					return fmt.Errorf("%w: %s locked by %s", domain.ErrLockHeld, path, existing.AgentName)
				}
				existing.ExpiresAt = now.Add(ttl)
				lock = viewLock(existing)
				return nil
			}); err != nil {
				return errResult(err)
			}
			logger.Printf("renew_lock: %s renewed %s", callerID, path)
			return jsonResult(map[string]any{"lock": lock, "version": svc.Version()})
		},
	)
}

// registerCheckLocks registers the check_locks tool.
func registerCheckLocks(s *server.MCPServer, svc *app.HubService, registry *app.SessionRegistry) {
	s.AddTool(
		mcp.NewTool("check_locks",
			mcp.WithDescription("Check whether a path is locked, or list all active locks."),
			mcp.WithString("path", mcp.Description("Path to check; omit to list everything")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			path := optionalString(args, "path")
			callerID := resolveCaller(ctx, registry, args)

			var locks []lockView
			if err := svc.MutateIf(func(state *domain.WorkspaceState) (bool, error) {
				now := time.Now()
				touchAgent(state, callerID, now)
				for p, l := range state.Locks {
					if l == nil || !l.ExpiresAt.After(now) {
						continue
					}
					if path != "" && p != path {
						continue
					}
					locks = append(locks, viewLock(l))
				}
				return false, nil
			}); err != nil {
				return errResult(err)
			}
			sort.Slice(locks, func(i, j int) bool { return locks[i].Path < locks[j].Path })

			if path != "" {
				if len(locks) == 0 {
					return jsonResult(map[string]any{"locked": false, "path": path})
				}
				return jsonResult(map[string]any{"locked": true, "lock": locks[0]})
			}
			return jsonResult(map[string]any{"locks": locks, "count": len(locks)})
		},
	)
}

// registerUnlockFile registers the unlock_file tool.
func registerUnlockFile(s *server.MCPServer, svc *app.HubService, logger *log.Logger, registry *app.SessionRegistry) {
	s.AddTool(
		mcp.NewTool("unlock_file",
			mcp.WithDescription("Release your lock on a path, optionally handing the file off to another role with a message."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Locked file path")),
			mcp.WithString("handoff_to", mcp.Description("Role that should pick this file up next")),
			mcp.WithString("message", mcp.Description("Context for the receiving role")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			path, err := requireString(args, "path")
			if err != nil {
				return errResult(err)
			}
			handoffTo := optionalString(args, "handoff_to")
			message := optionalString(args, "message")
			callerID := resolveCaller(ctx, registry, args)

			handedOff := false
			if err := svc.Mutate(func(state *domain.WorkspaceState) error {
				now := time.Now()
				agent := touchAgent(state, callerID, now)
				existing, ok := state.Locks[path]
				if !ok || existing == nil {
					return fmt.Errorf("%w: no lock on %s", domain.ErrNotFound, path)
				}
				if existing.AgentID != callerID {
					return fmt.Errorf("%w: %s locked by %s (use force_unlock to override)",
						domain.ErrLockHeld, path, existing.AgentName)
				}
				delete(state.Locks, path)
				if agent != nil && agent.CurrentTask == path {
					agent.CurrentTask = ""
					agent.Status = domain.StatusIdle
				}

				name, client := existing.AgentName, existing.Client
				if handoffTo != "" {
					to := domain.AgentRole(handoffTo)
					state.Handoffs[domain.HandoffKey(path, to)] = &domain.Handoff{
						Path:    path,
						From:    callerID,
						To:      to,
						Message: message,
					}
					handedOff = true
					state.AppendIntent(domain.Intent{
						ID:          uuid.NewString(),
						AgentID:     callerID,
						AgentName:   name,
						Client:      client,
						Action:      domain.IntentHandoff,
						Description: fmt.Sprintf("Released %s for %s: %s", path, handoffTo, message),
						Timestamp:   now,
					})
				} else {
					state.AppendIntent(domain.Intent{
						ID:          uuid.NewString(),
						AgentID:     callerID,
						AgentName:   name,
						Client:      client,
						Action:      domain.IntentCompleted,
						Description: "Released " + path,
						Timestamp:   now,
					})
				}
				return nil
			}); err != nil {
				return errResult(err)
			}
			logger.Printf("unlock_file: %s released %s (handoff=%t)", callerID, path, handedOff)
			return jsonResult(map[string]any{"path": path, "handedOff": handedOff, "version": svc.Version()})
		},
	)
}

// registerForceUnlock registers the force_unlock tool.
func registerForceUnlock(s *server.MCPServer, svc *app.HubService, logger *log.Logger, registry *app.SessionRegistry) {
	s.AddTool(
		mcp.NewTool("force_unlock",
			mcp.WithDescription("Forcibly remove a lock regardless of owner. For stuck locks only; the owner is moved back to idle."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Locked file path")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			path, err := requireString(args, "path")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			var wasHeldBy string
			if err := svc.Mutate(func(state *domain.WorkspaceState) error {
				now := time.Now()
				touchAgent(state, callerID, now)
				existing, ok := state.Locks[path]
				if !ok || existing == nil {
					return fmt.Errorf("%w: no lock on %s", domain.ErrNotFound, path)
				}
				wasHeldBy = existing.AgentID
				delete(state.Locks, path)
				if owner, ok := state.Agents[existing.AgentID]; ok && owner.CurrentTask == path {
					owner.CurrentTask = ""
					owner.Status = domain.StatusIdle
				}
				state.AppendIntent(domain.Intent{
					ID:          uuid.NewString(),
					AgentID:     callerID,
					Action:      domain.IntentHandoff,
					Description: fmt.Sprintf("Force-unlocked %s (was held by %s)", path, existing.AgentName),
					Timestamp:   now,
				})
				return nil
			}); err != nil {
				return errResult(err)
			}
			logger.Printf("force_unlock: %s force-unlocked %s (was %s)", callerID, path, wasHeldBy)
			return jsonResult(map[string]any{"path": path, "wasHeldBy": wasHeldBy, "version": svc.Version()})
		},
	)
}
