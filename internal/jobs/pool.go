package jobs

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
	"github.com/jayminwest/kotadb-sub013/internal/extractor"
	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
	"github.com/jayminwest/kotadb-sub013/internal/logging"
)

// RepoResolver is C4's surface as the pool needs it. Satisfied by
// *gitfetch.Fetcher.
type RepoResolver interface {
	Resolve(ctx context.Context, repo *domain.Repository, ref, localPath, destDir string) (string, error)
}

const (
	defaultWorkers     = 3
	defaultPollEvery   = 2 * time.Second
	defaultMaxRetries  = 5
	defaultBaseBackoff = 30 * time.Second
)

// Pool is the fixed worker pool draining pending jobs per spec 4.3.
type Pool struct {
	store       Store
	fileStore   FileStore
	resolver    RepoResolver
	pipeline    *extractor.Pipeline
	workDirBase string

	workers     int
	pollEvery   time.Duration
	maxRetries  int
	baseBackoff time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool builds a Pool, reading KOTADB_JOB_WORKERS (default 3) the
// way the teacher's RPC server reads BEADS_DAEMON_MAX_CONNS.
func NewPool(store Store, fileStore FileStore, resolver RepoResolver, pipeline *extractor.Pipeline, workDirBase string) *Pool {
	workers := defaultWorkers
	if env := os.Getenv("KOTADB_JOB_WORKERS"); env != "" {
		var n int
		if _, err := fmt.Sscanf(env, "%d", &n); err == nil && n > 0 {
			workers = n
		}
	}
	pollEvery := defaultPollEvery
	if env := os.Getenv("KOTADB_JOB_POLL_INTERVAL"); env != "" {
		if d, err := time.ParseDuration(env); err == nil && d > 0 {
			pollEvery = d
		}
	}
	return &Pool{
		store:       store,
		fileStore:   fileStore,
		resolver:    resolver,
		pipeline:    pipeline,
		workDirBase: workDirBase,
		workers:     workers,
		pollEvery:   pollEvery,
		maxRetries:  defaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// Start launches the fixed worker goroutines. Stop must be called to
// shut them down cleanly.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Stop cancels every worker and waits for them to exit.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drainOnce(ctx, id)
		}
	}
}

// drainOnce claims and runs at most one job, then returns; called
// repeatedly by the polling loop so each worker processes jobs
// one at a time, oldest-first (FIFO via ClaimNextPendingJob's
// ORDER BY created_at, id).
func (p *Pool) drainOnce(ctx context.Context, workerID int) {
	job, err := p.store.ClaimNextPendingJob(ctx)
	if err != nil {
		logging.Warnf("jobs", "worker %d: claiming job: %v", workerID, err)
		return
	}
	if job == nil {
		return
	}
	p.runJob(ctx, job)
}

func (p *Pool) runJob(ctx context.Context, job *domain.IndexJob) {
	logging.Infof("jobs", "worker starting job %s (repo=%s ref=%s)", job.ID, job.RepositoryID, job.Ref)

	repo, err := p.store.GetRepository(ctx, job.RepositoryID)
	if err != nil || repo == nil {
		_ = p.store.FailJob(ctx, job.ID, "repository not found")
		return
	}

	destDir := filepath.Join(p.workDirBase, job.RepositoryID)
	ref := job.CommitSHA
	if ref == "" {
		ref = job.Ref
	}
	workDir, err := p.resolver.Resolve(ctx, repo, ref, "", destDir)
	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}

	shouldCancel := func() bool {
		cancelled, err := p.store.IsCancelled(ctx, job.ID)
		return err == nil && cancelled
	}
	onProgress := func(stats domain.IndexJobStats) {
		_ = p.store.UpdateJobStats(ctx, job.ID, stats)
	}

	stats, err := indexRepository(ctx, p.fileStore, p.pipeline, job.RepositoryID, workDir, shouldCancel, onProgress)
	if err == errCancelled {
		_ = p.store.FailJob(ctx, job.ID, "cancelled")
		return
	}
	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}

	if err := p.store.CompleteJob(ctx, job.ID, stats); err != nil {
		logging.Warnf("jobs", "completing job %s: %v", job.ID, err)
	}
}

// handleFailure implements spec 4.3 steps 4-5: transient failures are
// rescheduled with exponential backoff up to maxRetries, beyond which
// (and for any non-retriable failure) the job fails permanently.
func (p *Pool) handleFailure(ctx context.Context, job *domain.IndexJob, cause error) {
	retriable := false
	if ke, ok := kotaerr.As(cause); ok {
		retriable = ke.Code.Retriable()
	}

	if retriable && job.RetryCount < p.maxRetries {
		retryCount := job.RetryCount + 1
		backoff := time.Duration(float64(p.baseBackoff) * math.Pow(2, float64(retryCount-1)))
		availableAt := time.Now().UTC().Add(backoff)
		if err := p.store.RescheduleJob(ctx, job.ID, retryCount, availableAt); err != nil {
			logging.Warnf("jobs", "rescheduling job %s: %v", job.ID, err)
		}
		return
	}

	if err := p.store.FailJob(ctx, job.ID, cause.Error()); err != nil {
		logging.Warnf("jobs", "failing job %s: %v", job.ID, err)
	}
}
