package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
)

// FindPendingJob returns a pending job for (repositoryID, commitSHA) if
// one exists, enforcing invariant J1 (at most one pending job per
// repository+commit) at the enqueue call site in internal/jobs.
func (s *Store) FindPendingJob(ctx context.Context, repositoryID, commitSHA string) (*domain.IndexJob, error) {
	row := s.db.QueryRowContext(ctx, jobSelect+`
		WHERE repository_id = ? AND commit_sha = ? AND status = 'pending'
		ORDER BY created_at, id LIMIT 1`, repositoryID, commitSHA)
	return scanJob(row)
}

// InsertJob inserts a new pending job.
func (s *Store) InsertJob(ctx context.Context, j *domain.IndexJob) (*domain.IndexJob, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	j.CreatedAt = now
	if j.AvailableAt.IsZero() {
		j.AvailableAt = now
	}
	if j.Status == "" {
		j.Status = domain.JobPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_jobs (id, repository_id, ref, commit_sha, status, requested_by, retry_count, available_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, j.ID, j.RepositoryID, j.Ref, nullString(j.CommitSHA), string(j.Status), nullString(j.RequestedBy),
		formatTime(j.AvailableAt), formatTime(j.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("inserting job: %w", err)
	}
	return s.GetJob(ctx, j.ID)
}

// EnqueuePending inserts a pending job for (repository_id, commit_sha),
// or returns the already-existing pending job for that pair if one
// exists, as a single transaction. This is what actually enforces J1
// ("no two pending jobs for the same repository_id+commit_sha"):
// idx_index_jobs_pending_unique makes the second of two concurrent
// INSERTs a no-op rather than a second row, and the RowsAffected check
// below tells the two callers apart without a separate check-then-insert
// race. commit_sha == "" is stored as NULL and the partial index
// excludes NULLs (SQLite treats each NULL as distinct anyway), so
// ref-only jobs without a commit always insert.
func (s *Store) EnqueuePending(ctx context.Context, j *domain.IndexJob) (*domain.IndexJob, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	j.CreatedAt = now
	if j.AvailableAt.IsZero() {
		j.AvailableAt = now
	}
	if j.Status == "" {
		j.Status = domain.JobPending
	}

	var result *domain.IndexJob
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO index_jobs (id, repository_id, ref, commit_sha, status, requested_by, retry_count, available_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
			ON CONFLICT(repository_id, commit_sha) WHERE status = 'pending' AND commit_sha IS NOT NULL DO NOTHING
		`, j.ID, j.RepositoryID, j.Ref, nullString(j.CommitSHA), string(j.Status), nullString(j.RequestedBy),
			formatTime(j.AvailableAt), formatTime(j.CreatedAt))
		if err != nil {
			return fmt.Errorf("inserting job: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			result, err = getJobTx(ctx, tx, j.ID)
			return err
		}
		// Lost the race: a pending job for this repository+commit
		// already exists. Return it instead of erroring.
		row := tx.QueryRowContext(ctx, jobSelect+`
			WHERE repository_id = ? AND commit_sha = ? AND status = 'pending'
			ORDER BY created_at, id LIMIT 1`, j.RepositoryID, j.CommitSHA)
		result, err = scanJob(row)
		return err
	})
	return result, err
}

// ClaimNextPendingJob atomically claims the oldest available pending
// job, matching the design note's "(a) atomic claim of the oldest
// pending row ... via a conditional update (WHERE status='pending'
// returning the claimed row)". SQLite lacks RETURNING-then-visible
// multi-statement claim races across processes, so the claim is done
// as UPDATE-by-id inside a transaction that first SELECTs the
// candidate FOR the single writer connection, which is safe because
// the store allows exactly one writer.
func (s *Store) ClaimNextPendingJob(ctx context.Context) (*domain.IndexJob, error) {
	var job *domain.IndexJob
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		row := tx.QueryRowContext(ctx, jobSelect+`
			WHERE status = 'pending' AND available_at <= ?
			ORDER BY created_at, id LIMIT 1`, formatTime(now))
		j, err := scanJob(row)
		if err != nil {
			return err
		}
		if j == nil {
			return nil
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE index_jobs SET status = 'processing', started_at = ?
			WHERE id = ? AND status = 'pending'`, formatTime(now), j.ID)
		if err != nil {
			return fmt.Errorf("claiming job: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// Another connection claimed it first; caller retries.
			return nil
		}
		j.Status = domain.JobProcessing
		j.StartedAt = &now
		job = j
		return nil
	})
	return job, err
}

// UpdateJobStats overwrites the incremental stats counters for a job.
func (s *Store) UpdateJobStats(ctx context.Context, id string, stats domain.IndexJobStats) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE index_jobs SET files_indexed = ?, symbols_extracted = ?, references_found = ?, dependencies_extracted = ?
		WHERE id = ?
	`, stats.FilesIndexed, stats.SymbolsExtracted, stats.ReferencesFound, stats.DependenciesExtracted, id)
	if err != nil {
		return fmt.Errorf("updating job stats: %w", err)
	}
	return nil
}

// CompleteJob transitions a job to completed.
func (s *Store) CompleteJob(ctx context.Context, id string, stats domain.IndexJobStats) error {
	now := formatTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx, `
		UPDATE index_jobs SET status = 'completed', completed_at = ?,
			files_indexed = ?, symbols_extracted = ?, references_found = ?, dependencies_extracted = ?
		WHERE id = ?
	`, now, stats.FilesIndexed, stats.SymbolsExtracted, stats.ReferencesFound, stats.DependenciesExtracted, id)
	if err != nil {
		return fmt.Errorf("completing job: %w", err)
	}
	return nil
}

// FailJob transitions a job permanently to failed.
func (s *Store) FailJob(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE index_jobs SET status = 'failed', completed_at = ?, error_message = ?
		WHERE id = ?
	`, formatTime(time.Now().UTC()), message, id)
	if err != nil {
		return fmt.Errorf("failing job: %w", err)
	}
	return nil
}

// SkipJob marks a job skipped without ever having run (e.g. a
// non-default-branch webhook push).
func (s *Store) SkipJob(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE index_jobs SET status = 'skipped', completed_at = ?, error_message = ?
		WHERE id = ?
	`, formatTime(time.Now().UTC()), reason, id)
	if err != nil {
		return fmt.Errorf("skipping job: %w", err)
	}
	return nil
}

// RescheduleJob re-enters a job into pending with exponential backoff,
// incrementing retry_count and setting available_at in the future.
func (s *Store) RescheduleJob(ctx context.Context, id string, retryCount int, availableAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE index_jobs SET status = 'pending', retry_count = ?, available_at = ?, started_at = NULL
		WHERE id = ?
	`, retryCount, formatTime(availableAt), id)
	if err != nil {
		return fmt.Errorf("rescheduling job: %w", err)
	}
	return nil
}

// RetryJob is the explicit user-triggered retry path from a terminal
// failed state back into pending (J2).
func (s *Store) RetryJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE index_jobs SET status = 'pending', error_message = NULL, available_at = ?
		WHERE id = ? AND status = 'failed'
	`, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("retrying job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s is not in a failed state", id)
	}
	return nil
}

// CancelJob sets the cooperative cancellation flag; the worker observes
// it at the next batch boundary and ends the job in failed with
// error_message = "cancelled".
func (s *Store) CancelJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE index_jobs SET cancelled = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("cancelling job: %w", err)
	}
	return nil
}

// IsCancelled reports whether the cancellation flag has been set.
func (s *Store) IsCancelled(ctx context.Context, id string) (bool, error) {
	var cancelled int
	err := s.db.QueryRowContext(ctx, `SELECT cancelled FROM index_jobs WHERE id = ?`, id).Scan(&cancelled)
	if err != nil {
		return false, fmt.Errorf("checking cancellation: %w", err)
	}
	return cancelled != 0, nil
}

// GetJob loads a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*domain.IndexJob, error) {
	row := s.db.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, id)
	return scanJob(row)
}

func getJobTx(ctx context.Context, tx *sql.Tx, id string) (*domain.IndexJob, error) {
	row := tx.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, id)
	return scanJob(row)
}

// QueueStats summarizes the job queue for the /health endpoint.
type QueueStats struct {
	Depth                  int
	Workers                int
	Failed24h              int
	OldestPendingAgeSeconds int
}

// QueueStats computes the /health queue snapshot.
func (s *Store) QueueStats(ctx context.Context, workers int) (QueueStats, error) {
	qs := QueueStats{Workers: workers}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM index_jobs WHERE status = 'pending'`).Scan(&qs.Depth); err != nil {
		return qs, fmt.Errorf("counting pending jobs: %w", err)
	}

	cutoff := formatTime(time.Now().UTC().Add(-24 * time.Hour))
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM index_jobs WHERE status = 'failed' AND completed_at >= ?`, cutoff,
	).Scan(&qs.Failed24h); err != nil {
		return qs, fmt.Errorf("counting failed jobs: %w", err)
	}

	var oldest sql.NullString
	if err := s.db.QueryRowContext(ctx,
		`SELECT MIN(created_at) FROM index_jobs WHERE status = 'pending'`,
	).Scan(&oldest); err != nil {
		return qs, fmt.Errorf("finding oldest pending job: %w", err)
	}
	if oldest.Valid {
		qs.OldestPendingAgeSeconds = int(time.Since(parseTime(oldest.String)).Seconds())
	}
	return qs, nil
}

const jobSelect = `
	SELECT id, repository_id, ref, commit_sha, status, requested_by, started_at, completed_at,
		error_message, retry_count, available_at, cancelled,
		files_indexed, symbols_extracted, references_found, dependencies_extracted, created_at
	FROM index_jobs`

func scanJob(row rowScanner) (*domain.IndexJob, error) {
	var j domain.IndexJob
	var commitSHA, requestedBy, startedAt, completedAt, errorMessage sql.NullString
	var cancelled int
	var availableAt, createdAt string
	var status string

	err := row.Scan(&j.ID, &j.RepositoryID, &j.Ref, &commitSHA, &status, &requestedBy, &startedAt, &completedAt,
		&errorMessage, &j.RetryCount, &availableAt, &cancelled,
		&j.Stats.FilesIndexed, &j.Stats.SymbolsExtracted, &j.Stats.ReferencesFound, &j.Stats.DependenciesExtracted, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	j.Status = domain.JobStatus(status)
	j.CommitSHA = commitSHA.String
	j.RequestedBy = requestedBy.String
	j.ErrorMessage = errorMessage.String
	j.Cancelled = cancelled != 0
	j.AvailableAt = parseTime(availableAt)
	j.CreatedAt = parseTime(createdAt)
	if startedAt.Valid {
		t := parseTime(startedAt.String)
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		j.CompletedAt = &t
	}
	return &j, nil
}
