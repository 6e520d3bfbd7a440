package hub

import (
	"context"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/synapse/internal/app"
	"github.com/jaakkos/synapse/internal/cascade"
	"github.com/jaakkos/synapse/internal/domain"
)

// contractFields coerces a JSON array of {name,type,required} objects.
func contractFields(args map[string]any, key string) []domain.ContractField {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]domain.ContractField, 0, len(raw))
	for _, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		f := domain.ContractField{}
		f.Name, _ = m["name"].(string)
		f.Type, _ = m["type"].(string)
		f.Required, _ = m["required"].(bool)
		if f.Name != "" {
			out = append(out, f)
		}
	}
	return out
}

// registerRegisterContract registers the register_contract tool.
func registerRegisterContract(s *server.MCPServer, logger *log.Logger, registry *app.SessionRegistry, casc *cascade.Engine) {
	s.AddTool(
		mcp.NewTool("register_contract",
			mcp.WithDescription("Declare (or update) an API contract. Schema changes flag every bound frontend component as outdated and emit cascade events."),
			mcp.WithString("method", mcp.Required(), mcp.Description("HTTP method, e.g. POST")),
			mcp.WithString("endpoint", mcp.Required(), mcp.Description("Route, e.g. /auth/login")),
			mcp.WithArray("request", mcp.Description("Request fields: [{name,type,required}]")),
			mcp.WithArray("response", mcp.Description("Response fields: [{name,type,required}]")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			method, err := requireString(args, "method")
			if err != nil {
				return errResult(err)
			}
			endpoint, err := requireString(args, "endpoint")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			contract, err := casc.RegisterContract(domain.APIContract{
				Method:   strings.ToUpper(method),
				Endpoint: endpoint,
				Request:  contractFields(args, "request"),
				Response: contractFields(args, "response"),
			})
			if err != nil {
				return errResult(err)
			}
			logger.Printf("register_contract: %s registered %s v%d", callerID, contract.Key(), contract.Version)
			return jsonResult(map[string]any{"contract": contract})
		},
	)
}

// registerBindFrontend registers the bind_frontend tool.
func registerBindFrontend(s *server.MCPServer, logger *log.Logger, registry *app.SessionRegistry, casc *cascade.Engine) {
	s.AddTool(
		mcp.NewTool("bind_frontend",
			mcp.WithDescription("Declare that a frontend component consumes an API contract, so contract changes mark it outdated."),
			mcp.WithString("component_id", mcp.Required(), mcp.Description("Stable component id")),
			mcp.WithString("component_name", mcp.Description("Display name")),
			mcp.WithString("endpoint", mcp.Required(), mcp.Description("Contract key 'METHOD:/route'")),
			mcp.WithArray("fields", mcp.Description("Contract fields the component reads")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			componentID, err := requireString(args, "component_id")
			if err != nil {
				return errResult(err)
			}
			endpoint, err := requireString(args, "endpoint")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			binding, err := casc.BindFrontend(domain.FrontendBinding{
				ComponentID:   componentID,
				ComponentName: optionalString(args, "component_name"),
				Endpoint:      endpoint,
				Fields:        stringSlice(args, "fields"),
			})
			if err != nil {
				return errResult(err)
			}
			logger.Printf("bind_frontend: %s bound %s to %s", callerID, componentID, endpoint)
			return jsonResult(map[string]any{"binding": binding})
		},
	)
}

// registerGetOutdatedComponents registers the get_outdated_components tool.
func registerGetOutdatedComponents(s *server.MCPServer, registry *app.SessionRegistry, casc *cascade.Engine) {
	s.AddTool(
		mcp.NewTool("get_outdated_components",
			mcp.WithDescription("List frontend components whose bound contract changed since they last synced."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			resolveCaller(ctx, registry, req.GetArguments())
			outdated := casc.OutdatedComponents()
			return jsonResult(map[string]any{"components": outdated, "count": len(outdated)})
		},
	)
}

// registerMarkBindingSynced registers the mark_binding_synced tool.
func registerMarkBindingSynced(s *server.MCPServer, logger *log.Logger, registry *app.SessionRegistry, casc *cascade.Engine) {
	s.AddTool(
		mcp.NewTool("mark_binding_synced",
			mcp.WithDescription("Record that a component was updated to the current contract schema."),
			mcp.WithString("component_id", mcp.Required(), mcp.Description("Component id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			componentID, err := requireString(args, "component_id")
			if err != nil {
				return errResult(err)
			}
			callerID := resolveCaller(ctx, registry, args)

			if err := casc.MarkBindingSynced(componentID); err != nil {
				return errResult(err)
			}
			logger.Printf("mark_binding_synced: %s synced %s", callerID, componentID)
			return jsonResult(map[string]any{"componentId": componentID, "synced": true})
		},
	)
}

// registerGetCascadeLog registers the get_cascade_log tool.
func registerGetCascadeLog(s *server.MCPServer, registry *app.SessionRegistry, casc *cascade.Engine) {
	s.AddTool(
		mcp.NewTool("get_cascade_log",
			mcp.WithDescription("Read recent cascade events (endpoint_added, contract_changed, field_changed, frontend_adapted, conflict_resolved), newest last."),
			mcp.WithNumber("limit", mcp.Description("Max events (default 20)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			resolveCaller(ctx, registry, args)
			events := casc.Events(optionalInt(args, "limit", 20))
			return jsonResult(map[string]any{"events": events, "count": len(events)})
		},
	)
}
