package validation

import (
	"path/filepath"
	"testing"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
	"github.com/jayminwest/kotadb-sub013/internal/storage/sqlite"
)

func TestValidateImplementationSpecReportsEveryMissingRequirement(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "kotadb.sqlite3"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	repo, err := store.UpsertRepository(t.Context(), &domain.Repository{OwnerScope: "org-a", FullName: "acme/widgets", DefaultBranch: "main"})
	if err != nil {
		t.Fatalf("UpsertRepository: %v", err)
	}
	file := &domain.IndexedFile{RepositoryID: repo.ID, Path: "widget.go", Content: "package widget\n", Language: "go", ContentHash: "h1"}
	if err := store.UpsertFile(t.Context(), file, []*domain.Symbol{{Name: "Widget", Kind: domain.KindFunction}}, nil, nil); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}

	result, err := ValidateImplementationSpec(t.Context(), store.DB(), "org-a", "", []Requirement{
		{Path: "widget.go", Symbol: "Widget"}, // satisfied
		{Path: "widget.go", Symbol: "Gadget"}, // symbol missing
		{Path: "missing.go"},                 // file missing
	})
	if err != nil {
		t.Fatalf("ValidateImplementationSpec: %v", err)
	}
	if result.Satisfied {
		t.Fatal("expected Satisfied = false")
	}
	if result.Checked != 3 {
		t.Fatalf("Checked = %d, want 3", result.Checked)
	}
	if len(result.Missing) != 2 {
		t.Fatalf("len(Missing) = %d, want 2: %+v", len(result.Missing), result.Missing)
	}
}

func TestValidateImplementationSpecAllSatisfied(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "kotadb.sqlite3"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	repo, err := store.UpsertRepository(t.Context(), &domain.Repository{OwnerScope: "org-a", FullName: "acme/widgets", DefaultBranch: "main"})
	if err != nil {
		t.Fatalf("UpsertRepository: %v", err)
	}
	file := &domain.IndexedFile{RepositoryID: repo.ID, Path: "widget.go", Content: "package widget\n", Language: "go", ContentHash: "h1"}
	if err := store.UpsertFile(t.Context(), file, nil, nil, nil); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}

	result, err := ValidateImplementationSpec(t.Context(), store.DB(), "org-a", "", []Requirement{{Path: "widget.go"}})
	if err != nil {
		t.Fatalf("ValidateImplementationSpec: %v", err)
	}
	if !result.Satisfied || len(result.Missing) != 0 {
		t.Fatalf("result = %+v, want fully satisfied", result)
	}
}
