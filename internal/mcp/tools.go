package mcp

import "context"

// CallerContext is the caller identity resolved by the transport's
// authentication gate (C8/C9 §4.6) before dispatch ever sees a
// message. The dispatcher is a pure function of a message and this
// context; it never reaches into request headers itself.
type CallerContext struct {
	OwnerScope string
	KeyID      string
	Tier       string
}

// ToolExecutor runs one tool's arguments against the caller's context
// and returns a value to be marshaled into the tool result's text
// content, or an error (which should be a *kotaerr.Error to carry a
// taxonomy code; anything else maps to INTERNAL).
type ToolExecutor func(ctx context.Context, caller CallerContext, args []byte) (interface{}, error)

// Deps wires each tool name to the function that actually performs
// it. Built by the process composing C6/C5/C10/C11 into the
// dispatcher (the HTTP/stdio command's main wiring), not by this
// package, so the dispatcher itself never imports the query layer,
// job tracker, or sync packages directly.
type Deps map[string]ToolExecutor
