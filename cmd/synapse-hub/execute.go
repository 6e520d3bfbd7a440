package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/synapse/internal/domain"
)

// executeHandler adapts POST /execute to MCP tools/call, so plain HTTP
// clients reach the same tools as MCP-speaking agents. The clientId
// from the request body is injected into the arguments, where the tool
// layer uses it to resolve the caller.
type executeHandler struct {
	mcpServer *server.MCPServer
	logger    *log.Logger
}

func newExecuteHandler(mcpServer *server.MCPServer, logger *log.Logger) *executeHandler {
	return &executeHandler{mcpServer: mcpServer, logger: logger}
}

// executeRequest is the /execute request body.
type executeRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	ClientID  string         `json:"clientId"`
}

func (h *executeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if r.Method != http.MethodPost {
		writeExecuteError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeExecuteError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	var req executeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeExecuteError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Tool == "" {
		writeExecuteError(w, http.StatusBadRequest, "missing tool field")
		return
	}

	args := req.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if req.ClientID != "" {
		args["clientId"] = req.ClientID
	}

	rpc, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      req.Tool,
			"arguments": args,
		},
	})
	if err != nil {
		writeExecuteError(w, http.StatusInternalServerError, "marshal request: "+err.Error())
		return
	}

	resp := h.mcpServer.HandleMessage(r.Context(), rpc)
	respBytes, err := json.Marshal(resp)
	if err != nil {
		writeExecuteError(w, http.StatusInternalServerError, "marshal response: "+err.Error())
		return
	}

	var parsed struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		writeExecuteError(w, http.StatusInternalServerError, "parse response: "+err.Error())
		return
	}
	if parsed.Error != nil {
		// A well-formed tools/call can only fail dispatch when the tool
		// does not exist, so protocol errors map to the UNKNOWN_TOOL kind.
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   domain.ErrUnknownTool.Error(),
			"message": parsed.Error.Message,
		})
		return
	}

	var result mcp.CallToolResult
	if err := json.Unmarshal(parsed.Result, &result); err != nil {
		writeExecuteError(w, http.StatusInternalServerError, "parse result: "+err.Error())
		return
	}

	out := map[string]any{"content": contentViews(result.Content)}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

func contentViews(content []mcp.Content) []map[string]any {
	views := make([]map[string]any, 0, len(content))
	for _, c := range content {
		if tc, ok := c.(mcp.TextContent); ok {
			views = append(views, map[string]any{"type": "text", "text": tc.Text})
		}
	}
	return views
}

func writeExecuteError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`+"\n", msg)
}
