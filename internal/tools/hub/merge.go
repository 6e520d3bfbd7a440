package hub

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/synapse/internal/app"
	"github.com/jaakkos/synapse/internal/cascade"
)

// registerJoinFileSession registers the join_file_session tool.
func registerJoinFileSession(s *server.MCPServer, logger *log.Logger, registry *app.SessionRegistry, casc *cascade.Engine) {
	s.AddTool(
		mcp.NewTool("join_file_session",
			mcp.WithDescription("Join the change-merge roster for a file. Use propose_change to submit edits; overlapping edits from different agents are merged deterministically."),
			mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			path, err := requireString(args, "path")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			roster := casc.JoinFile(path, callerID)
			logger.Printf("join_file_session: %s joined %s (%d editors)", callerID, path, len(roster))
			return jsonResult(map[string]any{"path": path, "editors": roster})
		},
	)
}

// registerLeaveFileSession registers the leave_file_session tool.
func registerLeaveFileSession(s *server.MCPServer, logger *log.Logger, registry *app.SessionRegistry, casc *cascade.Engine) {
	s.AddTool(
		mcp.NewTool("leave_file_session",
			mcp.WithDescription("Leave a file's change-merge roster. The last editor leaving drops pending changes."),
			mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			path, err := requireString(args, "path")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			casc.LeaveFile(path, callerID)
			logger.Printf("leave_file_session: %s left %s", callerID, path)
			return jsonResult(map[string]any{"path": path, "left": true})
		},
	)
}

// registerProposeChange registers the propose_change tool.
func registerProposeChange(s *server.MCPServer, logger *log.Logger, registry *app.SessionRegistry, casc *cascade.Engine) {
	s.AddTool(
		mcp.NewTool("propose_change",
			mcp.WithDescription("Propose replacing the half-open character range [start,end) of a file with new text. Conflicting proposals are merged; a conflict_resolved event carries the diff."),
			mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
			mcp.WithNumber("start", mcp.Required(), mcp.Description("Range start (inclusive)")),
			mcp.WithNumber("end", mcp.Required(), mcp.Description("Range end (exclusive)")),
			mcp.WithString("new_text", mcp.Description("Replacement text")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			path, err := requireString(args, "path")
			if err != nil {
				return errResult(err)
			}
			start, err := requireInt(args, "start")
			if err != nil {
				return errResult(err)
			}
			end, err := requireInt(args, "end")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			res, err := casc.ProposeChange(path, callerID, start, end, optionalString(args, "new_text"))
			if err != nil {
				return errResult(err)
			}
			logger.Printf("propose_change: %s on %s [%d,%d) merged=%t", callerID, path, start, end, res.Merged)
			return jsonResult(res)
		},
	)
}
