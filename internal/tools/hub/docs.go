package hub

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/synapse/internal/app"
	"github.com/jaakkos/synapse/internal/docsession"
	"github.com/jaakkos/synapse/internal/domain"
)

// registerCreateDoc registers the create_doc tool.
func registerCreateDoc(s *server.MCPServer, svc *app.HubService, logger *log.Logger, registry *app.SessionRegistry, docs *docsession.Manager) {
	s.AddTool(
		mcp.NewTool("create_doc",
			mcp.WithDescription("Open a collaborative document session for a path. Idempotent; an existing session is returned unchanged. Connect to /collab and join to edit."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Document path, e.g. 'src/App.tsx'")),
			mcp.WithString("initial", mcp.Description("Initial text for a new document")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			path, err := requireString(args, "path")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			created, meta := docs.Create(path, optionalString(args, "initial"))
			if created {
				svc.Bump()
			}
			logger.Printf("create_doc: %s %s (created=%t)", callerID, path, created)
			return jsonResult(map[string]any{"created": created, "session": meta, "version": svc.Version()})
		},
	)
}

// registerGetDoc registers the get_doc tool.
func registerGetDoc(s *server.MCPServer, registry *app.SessionRegistry, docs *docsession.Manager) {
	s.AddTool(
		mcp.NewTool("get_doc",
			mcp.WithDescription("Read a collaborative document's current text and editor roster."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Document path")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			path, err := requireString(args, "path")
			if err != nil {
				return errResult(err)
			}
			resolveCaller(ctx, registry, args)

			text, ok := docs.TextContent(path)
			if !ok {
				return errResult(fmt.Errorf("%w: no document session for %s", domain.ErrNotFound, path))
			}
			return jsonResult(map[string]any{
				"path":    path,
				"content": text,
				"editors": docs.Editors(path),
			})
		},
	)
}

// registerListDocSessions registers the list_doc_sessions tool.
func registerListDocSessions(s *server.MCPServer, registry *app.SessionRegistry, docs *docsession.Manager) {
	s.AddTool(
		mcp.NewTool("list_doc_sessions",
			mcp.WithDescription("List live collaborative document sessions."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			resolveCaller(ctx, registry, req.GetArguments())
			metas := docs.ListSessions()
			sort.Slice(metas, func(i, j int) bool { return metas[i].Path < metas[j].Path })
			return jsonResult(map[string]any{"sessions": metas, "count": len(metas)})
		},
	)
}
