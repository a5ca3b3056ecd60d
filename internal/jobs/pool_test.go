package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
)

func TestHandleFailureReschedulesRetriableUnderMax(t *testing.T) {
	store := newFakeStore()
	job, _ := NewTracker(store).Enqueue(t.Context(), "repo-1", "main", "sha1", "user-a")

	pool := &Pool{store: store, maxRetries: defaultMaxRetries, baseBackoff: time.Millisecond}
	pool.handleFailure(t.Context(), job, kotaerr.New(kotaerr.UpstreamUnavailable, "dial failed"))

	got := store.jobs[job.ID]
	if got.Status != domain.JobPending {
		t.Fatalf("expected job to be rescheduled pending, got %s", got.Status)
	}
	if got.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", got.RetryCount)
	}
}

func TestHandleFailureFailsPermanentError(t *testing.T) {
	store := newFakeStore()
	job, _ := NewTracker(store).Enqueue(t.Context(), "repo-1", "main", "sha1", "user-a")

	pool := &Pool{store: store, maxRetries: defaultMaxRetries, baseBackoff: time.Millisecond}
	pool.handleFailure(t.Context(), job, kotaerr.New(kotaerr.UpstreamAuth, "bad credentials"))

	got := store.jobs[job.ID]
	if got.Status != domain.JobFailed {
		t.Fatalf("expected job to fail for a non-retriable error, got %s", got.Status)
	}
}

func TestHandleFailureFailsAfterMaxRetries(t *testing.T) {
	store := newFakeStore()
	job, _ := NewTracker(store).Enqueue(t.Context(), "repo-1", "main", "sha1", "user-a")
	job.RetryCount = defaultMaxRetries

	pool := &Pool{store: store, maxRetries: defaultMaxRetries, baseBackoff: time.Millisecond}
	pool.handleFailure(t.Context(), job, kotaerr.New(kotaerr.UpstreamUnavailable, "still down"))

	got := store.jobs[job.ID]
	if got.Status != domain.JobFailed {
		t.Fatalf("expected job to fail once retries are exhausted, got %s", got.Status)
	}
}

func TestHandleFailureWrapsPlainErrorAsNonRetriable(t *testing.T) {
	store := newFakeStore()
	job, _ := NewTracker(store).Enqueue(t.Context(), "repo-1", "main", "sha1", "user-a")

	pool := &Pool{store: store, maxRetries: defaultMaxRetries, baseBackoff: time.Millisecond}
	pool.handleFailure(t.Context(), job, errors.New("unexpected panic recovered"))

	if store.jobs[job.ID].Status != domain.JobFailed {
		t.Fatalf("expected an untagged error to fail the job immediately")
	}
}

func TestRunJobFailsWhenRepositoryMissing(t *testing.T) {
	store := newFakeStore()
	job, _ := NewTracker(store).Enqueue(t.Context(), "missing-repo", "main", "sha1", "user-a")

	pool := &Pool{store: store, maxRetries: defaultMaxRetries, baseBackoff: time.Millisecond}
	pool.runJob(context.Background(), job)

	if store.jobs[job.ID].Status != domain.JobFailed {
		t.Fatalf("expected a job against a missing repository to fail")
	}
}
