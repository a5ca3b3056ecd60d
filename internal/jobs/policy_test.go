package jobs

import (
	"testing"
	"time"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
)

func TestSweepEnqueuesStaleRepository(t *testing.T) {
	store := newFakeStore()
	stale := time.Now().UTC().Add(-2 * time.Hour)
	store.repos["repo-1"] = &domain.Repository{
		ID: "repo-1", OwnerScope: "org-a", FullName: "acme/widgets",
		DefaultBranch: "main", LastPushAt: &stale,
	}

	policy := NewAutoReindexPolicy(store, NewTracker(store))
	if err := policy.Sweep(t.Context(), "org-a"); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(store.jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1", len(store.jobs))
	}
}

func TestSweepSkipsFreshRepository(t *testing.T) {
	store := newFakeStore()
	fresh := time.Now().UTC().Add(-1 * time.Minute)
	store.repos["repo-1"] = &domain.Repository{
		ID: "repo-1", OwnerScope: "org-a", FullName: "acme/widgets",
		DefaultBranch: "main", LastPushAt: &fresh,
	}

	policy := NewAutoReindexPolicy(store, NewTracker(store))
	if err := policy.Sweep(t.Context(), "org-a"); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(store.jobs) != 0 {
		t.Fatalf("len(jobs) = %d, want 0 (not yet stale)", len(store.jobs))
	}
}

func TestSweepRespectsThrashWindow(t *testing.T) {
	store := newFakeStore()
	stale := time.Now().UTC().Add(-2 * time.Hour)
	store.repos["repo-1"] = &domain.Repository{
		ID: "repo-1", OwnerScope: "org-a", FullName: "acme/widgets",
		DefaultBranch: "main", LastPushAt: &stale,
	}

	policy := NewAutoReindexPolicy(store, NewTracker(store))
	if err := policy.Sweep(t.Context(), "org-a"); err != nil {
		t.Fatalf("Sweep (1st): %v", err)
	}
	if err := policy.Sweep(t.Context(), "org-a"); err != nil {
		t.Fatalf("Sweep (2nd): %v", err)
	}
	if len(store.jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1 (second sweep within the thrash window must not re-enqueue)", len(store.jobs))
	}
}
