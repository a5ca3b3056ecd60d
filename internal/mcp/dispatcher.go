package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
)

// Dispatcher is a pure function of a parsed JSON-RPC 2.0 message and a
// CallerContext. It implements the initialize/initialized lifecycle,
// tools/list, and tools/call, and maps every error through the
// taxonomy's JSON-RPC code table.
type Dispatcher struct {
	deps       Deps
	version    string
	serverName string
}

// NewDispatcher builds a Dispatcher bound to deps. version and
// serverName populate initialize's serverInfo.
func NewDispatcher(deps Deps, serverName, version string) *Dispatcher {
	return &Dispatcher{deps: deps, version: version, serverName: serverName}
}

// Dispatch parses raw as a single JSON-RPC 2.0 message and handles it.
// It returns nil when raw was a valid notification (no response is
// ever sent for one); otherwise it returns the Response to write back,
// which may itself carry an Error.
func (d *Dispatcher) Dispatch(ctx context.Context, caller CallerContext, raw []byte) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, CodeParseError, "parse error", "INVALID_PARAMS", err.Error())
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "invalid request", "INVALID_PARAMS", "missing jsonrpc/method")
	}

	switch req.Method {
	case "initialize":
		return d.handleInitialize(&req)
	case "notifications/initialized":
		return nil // notifications never produce a response
	case "tools/list":
		return d.handleToolsList(&req)
	case "tools/call":
		return d.handleToolsCall(ctx, caller, &req)
	default:
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, CodeMethodNotFound, "method not found", "INVALID_PARAMS", req.Method)
	}
}

func (d *Dispatcher) handleInitialize(req *Request) *Response {
	if req.IsNotification() {
		return nil
	}
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid params", "INVALID_PARAMS", err.Error())
		}
	}
	return newResponse(req.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    Capabilities{Tools: ToolsCapability{ListChanged: false}},
		ServerInfo:      ClientInfo{Name: d.serverName, Version: d.version},
	})
}

func (d *Dispatcher) handleToolsList(req *Request) *Response {
	if req.IsNotification() {
		return nil
	}
	type result struct {
		Tools []Tool `json:"tools"`
	}
	return newResponse(req.ID, result{Tools: ToolCatalog()})
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// contentResult is the shape every successful tools/call returns, per
// §4.5: a single text content block carrying the JSON-encoded result.
type contentResult struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, caller CallerContext, req *Request) *Response {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return d.respondOrNil(req, errorResponse(req.ID, CodeInvalidParams, "invalid params", "INVALID_PARAMS", err.Error()))
	}

	if _, ok := findTool(params.Name); !ok {
		return d.respondOrNil(req, errorResponse(req.ID, CodeMethodNotFound, "unknown tool", "INVALID_PARAMS", params.Name))
	}

	executor, ok := d.deps[params.Name]
	if !ok {
		return d.respondOrNil(req, errorResponse(req.ID, CodeInternalError, "tool not wired", "INTERNAL", params.Name))
	}

	value, err := executor(ctx, caller, params.Arguments)
	if err != nil {
		return d.respondOrNil(req, d.toolError(req.ID, err))
	}

	text, err := json.Marshal(value)
	if err != nil {
		return d.respondOrNil(req, errorResponse(req.ID, CodeInternalError, "marshaling tool result", "INTERNAL", err.Error()))
	}
	return d.respondOrNil(req, newResponse(req.ID, contentResult{Content: []contentBlock{{Type: "text", Text: string(text)}}}))
}

// respondOrNil suppresses a response for a notification even when the
// handler produced one, since tools/call as a notification still must
// never reply per JSON-RPC 2.0.
func (d *Dispatcher) respondOrNil(req *Request, resp *Response) *Response {
	if req.IsNotification() {
		return nil
	}
	return resp
}

func (d *Dispatcher) toolError(id json.RawMessage, err error) *Response {
	if ke, ok := kotaerr.As(err); ok {
		return errorResponse(id, jsonRPCCode(ke.Code), ke.Message, string(ke.Code), "")
	}
	return errorResponse(id, CodeInternalError, fmt.Sprintf("tool execution failed: %v", err), "INTERNAL", "")
}
