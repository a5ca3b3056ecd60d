package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
)

type fakeStore struct {
	jobs         map[string]*domain.IndexJob
	repos        map[string]*domain.Repository
	pendingByKey map[string]*domain.IndexJob
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:         map[string]*domain.IndexJob{},
		repos:        map[string]*domain.Repository{},
		pendingByKey: map[string]*domain.IndexJob{},
	}
}

// EnqueuePending mimics the store's atomic insert-or-return-existing
// behavior: a pending job already recorded under the same key wins,
// matching the real store's partial-unique-index semantics closely
// enough for Tracker's dedup tests.
func (f *fakeStore) EnqueuePending(ctx context.Context, j *domain.IndexJob) (*domain.IndexJob, error) {
	if j.CommitSHA != "" {
		if existing, ok := f.pendingByKey[j.RepositoryID+"/"+j.CommitSHA]; ok {
			return existing, nil
		}
	}
	j.ID = "job-" + j.RepositoryID + "-" + j.CommitSHA
	j.Status = domain.JobPending
	j.CreatedAt = time.Now().UTC()
	f.jobs[j.ID] = j
	if j.CommitSHA != "" {
		f.pendingByKey[j.RepositoryID+"/"+j.CommitSHA] = j
	}
	return j, nil
}

func (f *fakeStore) ClaimNextPendingJob(ctx context.Context) (*domain.IndexJob, error) {
	for _, j := range f.jobs {
		if j.Status == domain.JobPending {
			j.Status = domain.JobProcessing
			return j, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateJobStats(ctx context.Context, id string, stats domain.IndexJobStats) error {
	if j, ok := f.jobs[id]; ok {
		j.Stats = stats
	}
	return nil
}

func (f *fakeStore) CompleteJob(ctx context.Context, id string, stats domain.IndexJobStats) error {
	if j, ok := f.jobs[id]; ok {
		j.Status = domain.JobCompleted
		j.Stats = stats
	}
	return nil
}

func (f *fakeStore) FailJob(ctx context.Context, id, message string) error {
	if j, ok := f.jobs[id]; ok {
		j.Status = domain.JobFailed
		j.ErrorMessage = message
	}
	return nil
}

func (f *fakeStore) SkipJob(ctx context.Context, id, reason string) error {
	if j, ok := f.jobs[id]; ok {
		j.Status = domain.JobSkipped
		j.ErrorMessage = reason
	}
	return nil
}

func (f *fakeStore) RescheduleJob(ctx context.Context, id string, retryCount int, availableAt time.Time) error {
	if j, ok := f.jobs[id]; ok {
		j.Status = domain.JobPending
		j.RetryCount = retryCount
		j.AvailableAt = availableAt
	}
	return nil
}

func (f *fakeStore) RetryJob(ctx context.Context, id string) error {
	j, ok := f.jobs[id]
	if !ok || j.Status != domain.JobFailed {
		return errors.New("not failed")
	}
	j.Status = domain.JobPending
	j.ErrorMessage = ""
	return nil
}

func (f *fakeStore) CancelJob(ctx context.Context, id string) error {
	if j, ok := f.jobs[id]; ok {
		j.Cancelled = true
	}
	return nil
}

func (f *fakeStore) IsCancelled(ctx context.Context, id string) (bool, error) {
	j, ok := f.jobs[id]
	return ok && j.Cancelled, nil
}

func (f *fakeStore) GetJob(ctx context.Context, id string) (*domain.IndexJob, error) {
	return f.jobs[id], nil
}

func (f *fakeStore) GetRepository(ctx context.Context, id string) (*domain.Repository, error) {
	return f.repos[id], nil
}

func (f *fakeStore) ListRepositories(ctx context.Context, ownerScope string) ([]*domain.Repository, error) {
	var out []*domain.Repository
	for _, r := range f.repos {
		if r.OwnerScope == ownerScope {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestEnqueueDeduplicatesPendingJob(t *testing.T) {
	store := newFakeStore()
	tr := NewTracker(store)

	job1, err := tr.Enqueue(t.Context(), "repo-1", "main", "sha1", "user-a")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job2, err := tr.Enqueue(t.Context(), "repo-1", "main", "sha1", "user-b")
	if err != nil {
		t.Fatalf("Enqueue (2nd): %v", err)
	}
	if job1.ID != job2.ID {
		t.Fatalf("expected J1 dedup to return the same job, got %s and %s", job1.ID, job2.ID)
	}
}

func TestEnqueueFromWebhookDropsNonDefaultBranch(t *testing.T) {
	store := newFakeStore()
	store.repos["repo-1"] = &domain.Repository{ID: "repo-1", FullName: "acme/widgets", DefaultBranch: "main"}
	tr := NewTracker(store)

	job, reason, err := tr.EnqueueFromWebhook(t.Context(), "repo-1", "refs/heads/feature-x", "sha1")
	if err != nil {
		t.Fatalf("EnqueueFromWebhook: %v", err)
	}
	if job != nil {
		t.Fatalf("expected no job for a non-default-branch push, got %+v", job)
	}
	if reason == "" {
		t.Fatal("expected a skipped reason to be recorded")
	}
}

func TestEnqueueFromWebhookAcceptsDefaultBranch(t *testing.T) {
	store := newFakeStore()
	store.repos["repo-1"] = &domain.Repository{ID: "repo-1", FullName: "acme/widgets", DefaultBranch: "main"}
	tr := NewTracker(store)

	job, reason, err := tr.EnqueueFromWebhook(t.Context(), "repo-1", "refs/heads/main", "sha1")
	if err != nil {
		t.Fatalf("EnqueueFromWebhook: %v", err)
	}
	if job == nil {
		t.Fatal("expected a job to be enqueued for a default-branch push")
	}
	if reason != "" {
		t.Fatalf("expected no skip reason, got %q", reason)
	}
}

func TestRetryRequiresFailedState(t *testing.T) {
	store := newFakeStore()
	tr := NewTracker(store)
	job, _ := tr.Enqueue(t.Context(), "repo-1", "main", "sha1", "user-a")

	if err := tr.Retry(t.Context(), job.ID); err == nil {
		t.Fatal("expected Retry to reject a pending (non-failed) job")
	}

	store.jobs[job.ID].Status = domain.JobFailed
	if err := tr.Retry(t.Context(), job.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if store.jobs[job.ID].Status != domain.JobPending {
		t.Fatalf("expected job to re-enter pending, got %s", store.jobs[job.ID].Status)
	}
}
