// Package stdio implements C9: binding the MCP dispatcher (C7) to a
// line-delimited JSON-RPC stream, for local agent launches that speak
// to kotadb over stdin/stdout instead of HTTP. There is no header
// validation and no rate limiting here — authentication is implicit,
// the same uid that launched the process.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/jayminwest/kotadb-sub013/internal/logging"
	"github.com/jayminwest/kotadb-sub013/internal/mcp"
)

const maxLineSize = 16 << 20

// Server reads one JSON-RPC message per line from In and writes one
// response per line (when the message produced one) to Out. Matching
// the per-connection HTTP dispatcher, messages are handled one at a
// time in arrival order; there is nothing here to parallelize across.
type Server struct {
	Dispatcher *mcp.Dispatcher
	Caller     mcp.CallerContext
	In         io.Reader
	Out        io.Writer
}

// NewServer builds a Server bound to dispatcher, reading from in and
// writing to out. caller is fixed for the lifetime of the process:
// stdio has no per-request identity, only the process's own uid.
func NewServer(dispatcher *mcp.Dispatcher, caller mcp.CallerContext, in io.Reader, out io.Writer) *Server {
	return &Server{Dispatcher: dispatcher, Caller: caller, In: in, Out: out}
}

// Run reads lines from In until EOF or ctx is canceled, dispatching
// each one and writing back any response before reading the next. It
// returns nil on a clean EOF, which is the normal shutdown path.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.In)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		s.handleLine(ctx, line)
	}
	return scanner.Err() // nil on clean EOF
}

func (s *Server) handleLine(ctx context.Context, raw []byte) {
	resp := s.Dispatcher.Dispatch(ctx, s.Caller, raw)
	if resp == nil {
		return // notification: no response is ever written
	}
	encoded, err := json.Marshal(resp)
	if err != nil {
		logging.Errorf("stdio", "marshaling response: %v", err)
		return
	}
	if _, err := s.Out.Write(append(encoded, '\n')); err != nil {
		logging.Errorf("stdio", "writing response: %v", err)
	}
}
