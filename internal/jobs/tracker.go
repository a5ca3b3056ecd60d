// Package jobs implements C5: the durable job tracker and its fixed
// worker pool. Enqueue/status/cancel/retry are thin wrappers over the
// store's job primitives; Pool drains pending jobs and drives C4 then
// C3 per job.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
	"github.com/jayminwest/kotadb-sub013/internal/logging"
)

// Store is the subset of the sqlite store the tracker and pool need.
// Satisfied by *sqlite.Store.
type Store interface {
	// EnqueuePending inserts a pending job for (repository_id,
	// commit_sha), or atomically returns the existing pending job for
	// that pair if one already exists (J1). The check and the insert
	// happen as one operation so two concurrent callers can't both
	// observe "no pending job" and both insert.
	EnqueuePending(ctx context.Context, j *domain.IndexJob) (*domain.IndexJob, error)
	ClaimNextPendingJob(ctx context.Context) (*domain.IndexJob, error)
	UpdateJobStats(ctx context.Context, id string, stats domain.IndexJobStats) error
	CompleteJob(ctx context.Context, id string, stats domain.IndexJobStats) error
	FailJob(ctx context.Context, id, message string) error
	SkipJob(ctx context.Context, id, reason string) error
	RescheduleJob(ctx context.Context, id string, retryCount int, availableAt time.Time) error
	RetryJob(ctx context.Context, id string) error
	CancelJob(ctx context.Context, id string) error
	IsCancelled(ctx context.Context, id string) (bool, error)
	GetJob(ctx context.Context, id string) (*domain.IndexJob, error)
	GetRepository(ctx context.Context, id string) (*domain.Repository, error)
}

// Tracker is the enqueue/status/cancel/retry surface the MCP dispatcher
// and REST handlers call directly; the worker pool is a separate
// component that drains the same store.
type Tracker struct {
	store Store
}

// NewTracker builds a Tracker over store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// Enqueue implements J1: a pending job for the same (repository_id,
// commit_sha) is returned unchanged rather than duplicated, even when
// two callers race (e.g. duplicate webhook deliveries for the same
// push) — the store performs the check and the insert as one atomic
// operation rather than this method doing a check then a separate
// insert.
func (t *Tracker) Enqueue(ctx context.Context, repositoryID, ref, commitSHA, requestedBy string) (*domain.IndexJob, error) {
	job, err := t.store.EnqueuePending(ctx, &domain.IndexJob{
		RepositoryID: repositoryID,
		Ref:          ref,
		CommitSHA:    commitSHA,
		RequestedBy:  requestedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: enqueueing: %w", err)
	}
	return job, nil
}

// EnqueueFromWebhook applies the branch-filtering rule: a push whose
// commit_sha is not on the repository's effective default branch is
// dropped with a skipped reason, not enqueued as a job row.
func (t *Tracker) EnqueueFromWebhook(ctx context.Context, repositoryID, pushedRef, commitSHA string) (*domain.IndexJob, string, error) {
	repo, err := t.store.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, "", fmt.Errorf("jobs: loading repository: %w", err)
	}
	if repo == nil {
		return nil, "", fmt.Errorf("jobs: unknown repository %q", repositoryID)
	}
	if !refMatchesBranch(pushedRef, repo.DefaultBranch) {
		logging.Infof("jobs", "dropping webhook push to %s for %s: not the default branch (%s)", pushedRef, repo.FullName, repo.DefaultBranch)
		return nil, "not-default-branch", nil
	}
	job, err := t.Enqueue(ctx, repositoryID, repo.DefaultBranch, commitSHA, "webhook")
	return job, "", err
}

func refMatchesBranch(ref, branch string) bool {
	return ref == branch || ref == "refs/heads/"+branch
}

// Status returns the current view of a job.
func (t *Tracker) Status(ctx context.Context, jobID string) (*domain.IndexJob, error) {
	return t.store.GetJob(ctx, jobID)
}

// Cancel sets the cooperative cancellation flag; the worker observes it
// at the next file/batch boundary.
func (t *Tracker) Cancel(ctx context.Context, jobID string) error {
	return t.store.CancelJob(ctx, jobID)
}

// Retry re-enters a terminally failed job into pending.
func (t *Tracker) Retry(ctx context.Context, jobID string) error {
	return t.store.RetryJob(ctx, jobID)
}
