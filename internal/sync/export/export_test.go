package export

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
	"github.com/jayminwest/kotadb-sub013/internal/storage/sqlite"
)

type memDeletionSource struct {
	pending []domain.Deletion
	cleared int64
}

func (m *memDeletionSource) PendingDeletions(_ context.Context) ([]domain.Deletion, error) {
	return m.pending, nil
}

func (m *memDeletionSource) ClearDeletionsThrough(_ context.Context, through int64) error {
	m.cleared = through
	return nil
}

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "kotadb.sqlite3"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestExportWritesOneJSONLPerTable(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.UpsertRepository(t.Context(), &domain.Repository{OwnerScope: "org-a", FullName: "acme/widgets", DefaultBranch: "main"}); err != nil {
		t.Fatalf("UpsertRepository: %v", err)
	}

	dir := t.TempDir()
	result, err := Export(t.Context(), store.DB(), store, dir, []string{"repositories"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(result.Tables) != 1 || result.Tables[0].Rows != 1 {
		t.Fatalf("result = %+v, want 1 row in repositories", result)
	}

	data, err := os.ReadFile(filepath.Join(dir, "repositories.jsonl"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "acme/widgets") {
		t.Fatalf("repositories.jsonl = %q", data)
	}
}

func TestExportRejectsNonWhitelistedTable(t *testing.T) {
	store := openTestStore(t)
	_, err := Export(t.Context(), store.DB(), store, t.TempDir(), []string{"sqlite_master"})
	ke, ok := kotaerr.As(err)
	if !ok || ke.Code != kotaerr.Security {
		t.Fatalf("err = %v, want a Security error", err)
	}
}

func TestExportFlushesAndClearsDeletions(t *testing.T) {
	store := openTestStore(t)
	deletions := &memDeletionSource{pending: []domain.Deletion{
		{ID: 3, Table: "repositories", RowID: "r1", DeletedAt: time.Now().UTC()},
	}}
	dir := t.TempDir()

	result, err := Export(t.Context(), store.DB(), deletions, dir, []string{"repositories"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if result.DeletionsFlushed != 1 {
		t.Fatalf("DeletionsFlushed = %d, want 1", result.DeletionsFlushed)
	}
	if deletions.cleared != 3 {
		t.Fatalf("cleared = %d, want 3", deletions.cleared)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".deletions.jsonl"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(strings.TrimSpace(string(data))) != 0 {
		t.Fatalf(".deletions.jsonl = %q, want empty after a successful export", data)
	}
}

func TestExportRefusesEmptyOverNonEmptyExisting(t *testing.T) {
	store := openTestStore(t)
	dir := t.TempDir()

	seed, err := os.Create(filepath.Join(dir, "repositories.jsonl"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w := bufio.NewWriter(seed)
	_, _ = w.WriteString(`{"id":"r1"}` + "\n")
	_ = w.Flush()
	_ = seed.Close()

	_, err = Export(t.Context(), store.DB(), &memDeletionSource{}, dir, []string{"repositories"})
	if err == nil {
		t.Fatal("Export() error = nil, want a refusal")
	}
}
