// Package mcp implements C7: a transport-agnostic JSON-RPC 2.0
// dispatcher for the Model Context Protocol surface. Dispatch is a
// pure function of a parsed message and a caller context; it knows
// nothing about HTTP headers or stdio framing, so C8 and C9 share one
// implementation of the lifecycle, tool catalog, and error mapping.
package mcp

import (
	"encoding/json"
)

// ProtocolVersion is the MCP protocol revision this dispatcher speaks.
const ProtocolVersion = "2025-06-18"

// Request is one JSON-RPC 2.0 request or notification. ID is nil for
// notifications; present (string, number, or null-but-present) for
// requests that expect a Response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether req omits id, per JSON-RPC 2.0: a
// notification MUST NOT receive a Response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is one JSON-RPC 2.0 response. Exactly one of Result/Error
// is set, matching the spec's mutual exclusivity.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object. Data carries the taxonomy
// code from the error handling design so callers can branch on it
// without parsing Message.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func newResponse(id json.RawMessage, result interface{}) *Response {
	data, err := json.Marshal(result)
	if err != nil {
		return errorResponse(id, CodeInternalError, "marshaling result", "INTERNAL", err.Error())
	}
	return &Response{JSONRPC: "2.0", ID: id, Result: data}
}

func errorResponse(id json.RawMessage, code int, message, taxonomyCode, detail string) *Response {
	type errData struct {
		Code   string `json:"code"`
		Detail string `json:"detail,omitempty"`
	}
	data, _ := json.Marshal(errData{Code: taxonomyCode, Detail: detail})
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	}
}

// InitializeParams is the initialize request's params.
type InitializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
	ClientInfo      ClientInfo      `json:"clientInfo"`
}

// ClientInfo identifies the connecting MCP client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the initialize response's result.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ClientInfo   `json:"serverInfo"`
}

// Capabilities is the server's MCP capability set. This revision never
// pushes list-changed notifications, so ListChanged is always false.
type Capabilities struct {
	Tools ToolsCapability `json:"tools"`
}

// ToolsCapability describes the tools capability block.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}
