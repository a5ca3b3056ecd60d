package queries

import (
	"testing"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
)

func TestAnalyzeChangeImpactUnionsMultipleSeeds(t *testing.T) {
	store := newTestStore(t)
	repo := seedRepository(t, store, "org-a", "acme/widgets")

	seedFile(t, store, repo.ID, "shared.go", "package shared\n", "go")
	seedFile(t, store, repo.ID, "a.go", "package a\n", "go")
	seedFile(t, store, repo.ID, "b.go", "package b\n", "go")
	seedFile(t, store, repo.ID, "unrelated.go", "package unrelated\n", "go")

	idShared, _, _ := store.FileIDByPath(t.Context(), repo.ID, "shared.go")
	idA, _, _ := store.FileIDByPath(t.Context(), repo.ID, "a.go")
	idB, _, _ := store.FileIDByPath(t.Context(), repo.ID, "b.go")

	// both a.go and b.go import shared.go, so changing shared.go impacts both.
	if err := store.SetFileDependencies(t.Context(), idA, []*domain.Dependency{{ToFileID: idShared, Kind: domain.DepImport}}); err != nil {
		t.Fatalf("SetFileDependencies(a): %v", err)
	}
	if err := store.SetFileDependencies(t.Context(), idB, []*domain.Dependency{{ToFileID: idShared, Kind: domain.DepImport}}); err != nil {
		t.Fatalf("SetFileDependencies(b): %v", err)
	}

	result, err := AnalyzeChangeImpact(t.Context(), store.DB(), "org-a", "", []string{"shared.go"})
	if err != nil {
		t.Fatalf("AnalyzeChangeImpact: %v", err)
	}
	if len(result.ImpactedFiles) != 2 {
		t.Fatalf("len(ImpactedFiles) = %d, want 2", len(result.ImpactedFiles))
	}
	if result.ByLanguage["go"] != 2 {
		t.Fatalf("ByLanguage[go] = %d, want 2", result.ByLanguage["go"])
	}
	if result.Truncated {
		t.Fatal("did not expect truncation for a 2-file impact set")
	}
}

func TestAnalyzeChangeImpactDedupsSharedDependents(t *testing.T) {
	store := newTestStore(t)
	repo := seedRepository(t, store, "org-a", "acme/widgets")

	seedFile(t, store, repo.ID, "x.go", "package x\n", "go")
	seedFile(t, store, repo.ID, "y.go", "package y\n", "go")
	seedFile(t, store, repo.ID, "caller.go", "package caller\n", "go")

	idX, _, _ := store.FileIDByPath(t.Context(), repo.ID, "x.go")
	idY, _, _ := store.FileIDByPath(t.Context(), repo.ID, "y.go")
	idCaller, _, _ := store.FileIDByPath(t.Context(), repo.ID, "caller.go")

	if err := store.SetFileDependencies(t.Context(), idCaller, []*domain.Dependency{
		{ToFileID: idX, Kind: domain.DepImport},
		{ToFileID: idY, Kind: domain.DepImport},
	}); err != nil {
		t.Fatalf("SetFileDependencies: %v", err)
	}

	result, err := AnalyzeChangeImpact(t.Context(), store.DB(), "org-a", "", []string{"x.go", "y.go"})
	if err != nil {
		t.Fatalf("AnalyzeChangeImpact: %v", err)
	}
	if len(result.ImpactedFiles) != 1 || result.ImpactedFiles[0].Path != "caller.go" {
		t.Fatalf("ImpactedFiles = %+v, want exactly [caller.go] once", result.ImpactedFiles)
	}
}

func TestAnalyzeChangeImpactSkipsUnresolvableSeeds(t *testing.T) {
	store := newTestStore(t)
	seedRepository(t, store, "org-a", "acme/widgets")

	result, err := AnalyzeChangeImpact(t.Context(), store.DB(), "org-a", "", []string{"does/not/exist.go"})
	if err != nil {
		t.Fatalf("AnalyzeChangeImpact: %v", err)
	}
	if len(result.ImpactedFiles) != 0 {
		t.Fatalf("ImpactedFiles = %+v, want empty for an unresolvable seed", result.ImpactedFiles)
	}
}
