package mcp

import "github.com/jayminwest/kotadb-sub013/internal/kotaerr"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// jsonRPCCode maps a taxonomy code to the JSON-RPC error code it
// surfaces as, per the error handling design's propagation table.
func jsonRPCCode(code kotaerr.Code) int {
	switch code {
	case kotaerr.NotFound, kotaerr.InvalidParams:
		return CodeInvalidParams
	default:
		return CodeInternalError
	}
}
