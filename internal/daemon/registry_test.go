package daemon

import (
	"os"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { _ = r.Clear() })
	return r
}

func TestRegisterAndFind(t *testing.T) {
	r := newTestRegistry(t)
	entry := Entry{
		WorkspacePath: "/repos/acme",
		HTTPAddr:      "127.0.0.1:8080",
		PID:           os.Getpid(),
		Version:       "test",
		StartedAt:     time.Unix(0, 0),
	}
	if err := r.Register(entry); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Find("/repos/acme")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got == nil {
		t.Fatal("Find returned nil, want the registered entry")
	}
	if got.HTTPAddr != entry.HTTPAddr {
		t.Errorf("HTTPAddr = %q, want %q", got.HTTPAddr, entry.HTTPAddr)
	}
}

func TestRegisterReplacesExistingWorkspaceEntry(t *testing.T) {
	r := newTestRegistry(t)
	pid := os.Getpid()
	if err := r.Register(Entry{WorkspacePath: "/repos/acme", HTTPAddr: "127.0.0.1:1111", PID: pid}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(Entry{WorkspacePath: "/repos/acme", HTTPAddr: "127.0.0.1:2222", PID: pid}); err != nil {
		t.Fatalf("Register (replace): %v", err)
	}

	entries, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("List() returned %d entries, want 1", len(entries))
	}
	if entries[0].HTTPAddr != "127.0.0.1:2222" {
		t.Errorf("HTTPAddr = %q, want the replacement value", entries[0].HTTPAddr)
	}
}

func TestListPrunesDeadProcesses(t *testing.T) {
	r := newTestRegistry(t)
	// A PID this large is never our own test process, and PIDs this
	// large are vanishingly unlikely to be alive on any test host.
	const deadPID = 999999999
	if err := r.Register(Entry{WorkspacePath: "/repos/gone", PID: deadPID}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(Entry{WorkspacePath: "/repos/here", PID: os.Getpid()}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	entries, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].WorkspacePath != "/repos/here" {
		t.Fatalf("List() = %+v, want only the live entry", entries)
	}
}

func TestUnregisterRemovesEntry(t *testing.T) {
	r := newTestRegistry(t)
	pid := os.Getpid()
	if err := r.Register(Entry{WorkspacePath: "/repos/acme", PID: pid}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Unregister("/repos/acme", pid); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	got, err := r.Find("/repos/acme")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no entry after Unregister, got %+v", got)
	}
}

func TestIsProcessAliveRejectsInvalidPID(t *testing.T) {
	if isProcessAlive(0) {
		t.Fatal("pid 0 should not be considered alive")
	}
	if isProcessAlive(-1) {
		t.Fatal("negative pid should not be considered alive")
	}
}
