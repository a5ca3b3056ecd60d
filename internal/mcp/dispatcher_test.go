package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
)

func TestDispatchInitializeReturnsServerInfo(t *testing.T) {
	d := NewDispatcher(Deps{}, "kotadb", "0.1.0")
	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`)

	resp := d.Dispatch(context.Background(), CallerContext{}, raw)
	if resp == nil || resp.Error != nil {
		t.Fatalf("Dispatch() = %+v, want a successful result", resp)
	}
	var result InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshaling result: %v", err)
	}
	if result.ProtocolVersion != ProtocolVersion {
		t.Fatalf("ProtocolVersion = %q, want %q", result.ProtocolVersion, ProtocolVersion)
	}
	if result.ServerInfo.Name != "kotadb" || result.ServerInfo.Version != "0.1.0" {
		t.Fatalf("ServerInfo = %+v", result.ServerInfo)
	}
	if result.Capabilities.Tools.ListChanged {
		t.Fatal("ListChanged should always be false")
	}
}

func TestDispatchInitializedNotificationProducesNoResponse(t *testing.T) {
	d := NewDispatcher(Deps{}, "kotadb", "0.1.0")
	raw := []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)

	if resp := d.Dispatch(context.Background(), CallerContext{}, raw); resp != nil {
		t.Fatalf("Dispatch() = %+v, want nil for a notification", resp)
	}
}

func TestDispatchToolsListReturnsFixedCatalog(t *testing.T) {
	d := NewDispatcher(Deps{}, "kotadb", "0.1.0")
	raw := []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)

	resp := d.Dispatch(context.Background(), CallerContext{}, raw)
	if resp == nil || resp.Error != nil {
		t.Fatalf("Dispatch() = %+v", resp)
	}
	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshaling result: %v", err)
	}
	if len(result.Tools) != len(catalog) {
		t.Fatalf("len(Tools) = %d, want %d", len(result.Tools), len(catalog))
	}
}

func TestDispatchToolsCallInvokesWiredExecutor(t *testing.T) {
	var gotCaller CallerContext
	var gotArgs string
	deps := Deps{
		"search_code": func(ctx context.Context, caller CallerContext, args []byte) (interface{}, error) {
			gotCaller = caller
			gotArgs = string(args)
			return map[string]int{"matches": 3}, nil
		},
	}
	d := NewDispatcher(deps, "kotadb", "0.1.0")
	raw := []byte(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"search_code","arguments":{"term":"widget"}}}`)

	resp := d.Dispatch(context.Background(), CallerContext{OwnerScope: "org-a"}, raw)
	if resp == nil || resp.Error != nil {
		t.Fatalf("Dispatch() = %+v", resp)
	}
	if gotCaller.OwnerScope != "org-a" {
		t.Fatalf("caller context not threaded through: %+v", gotCaller)
	}
	if gotArgs != `{"term":"widget"}` {
		t.Fatalf("args = %q", gotArgs)
	}

	var result contentResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshaling result: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Type != "text" {
		t.Fatalf("Content = %+v", result.Content)
	}
}

func TestDispatchToolsCallUnknownToolIsMethodNotFound(t *testing.T) {
	d := NewDispatcher(Deps{}, "kotadb", "0.1.0")
	raw := []byte(`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"does_not_exist","arguments":{}}}`)

	resp := d.Dispatch(context.Background(), CallerContext{}, raw)
	if resp == nil || resp.Error == nil {
		t.Fatalf("Dispatch() = %+v, want an error", resp)
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("Error.Code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestDispatchToolsCallExecutorErrorMapsTaxonomyCode(t *testing.T) {
	deps := Deps{
		"search_code": func(ctx context.Context, caller CallerContext, args []byte) (interface{}, error) {
			return nil, kotaerr.New(kotaerr.NotFound, "no such repository")
		},
	}
	d := NewDispatcher(deps, "kotadb", "0.1.0")
	raw := []byte(`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"search_code","arguments":{"term":"x"}}}`)

	resp := d.Dispatch(context.Background(), CallerContext{}, raw)
	if resp == nil || resp.Error == nil {
		t.Fatalf("Dispatch() = %+v, want an error", resp)
	}
	if resp.Error.Code != CodeInvalidParams {
		t.Fatalf("Error.Code = %d, want %d (NOT_FOUND maps to -32602)", resp.Error.Code, CodeInvalidParams)
	}
}

func TestDispatchToolsCallPlainErrorIsInternal(t *testing.T) {
	deps := Deps{
		"search_code": func(ctx context.Context, caller CallerContext, args []byte) (interface{}, error) {
			return nil, errors.New("boom")
		},
	}
	d := NewDispatcher(deps, "kotadb", "0.1.0")
	raw := []byte(`{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"search_code","arguments":{"term":"x"}}}`)

	resp := d.Dispatch(context.Background(), CallerContext{}, raw)
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeInternalError {
		t.Fatalf("Dispatch() = %+v, want INTERNAL (-32603)", resp)
	}
}

func TestDispatchUnknownMethodIsMethodNotFound(t *testing.T) {
	d := NewDispatcher(Deps{}, "kotadb", "0.1.0")
	raw := []byte(`{"jsonrpc":"2.0","id":7,"method":"does/not/exist"}`)

	resp := d.Dispatch(context.Background(), CallerContext{}, raw)
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("Dispatch() = %+v, want -32601", resp)
	}
}

func TestDispatchMalformedJSONIsParseError(t *testing.T) {
	d := NewDispatcher(Deps{}, "kotadb", "0.1.0")
	resp := d.Dispatch(context.Background(), CallerContext{}, []byte(`{not json`))
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Fatalf("Dispatch() = %+v, want -32700", resp)
	}
}

func TestDispatchMissingJSONRPCVersionIsInvalidRequest(t *testing.T) {
	d := NewDispatcher(Deps{}, "kotadb", "0.1.0")
	resp := d.Dispatch(context.Background(), CallerContext{}, []byte(`{"id":1,"method":"initialize"}`))
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Fatalf("Dispatch() = %+v, want -32600", resp)
	}
}
