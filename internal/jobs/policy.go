package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
	"github.com/jayminwest/kotadb-sub013/internal/logging"
)

// RepositoryLister is the subset of the store the auto-reindex policy
// needs to find candidate repositories.
type RepositoryLister interface {
	ListRepositories(ctx context.Context, ownerScope string) ([]*domain.Repository, error)
}

const (
	defaultStaleness    = 60 * time.Minute
	defaultThrashWindow = 30 * time.Minute
)

// AutoReindexPolicy is the orchestration layer over Tracker described
// in spec 4.3: "checks per-key rate-limit metadata and a staleness
// threshold ... and enqueues indexing." It never calls the worker
// pool directly, only Tracker.Enqueue.
type AutoReindexPolicy struct {
	lister  RepositoryLister
	tracker *Tracker

	staleness    time.Duration
	thrashWindow time.Duration

	mu        sync.Mutex
	lastCheck map[string]time.Time // repository id -> last time this policy enqueued it
}

// NewAutoReindexPolicy builds a policy with the spec defaults.
func NewAutoReindexPolicy(lister RepositoryLister, tracker *Tracker) *AutoReindexPolicy {
	return &AutoReindexPolicy{
		lister:       lister,
		tracker:      tracker,
		staleness:    defaultStaleness,
		thrashWindow: defaultThrashWindow,
		lastCheck:    make(map[string]time.Time),
	}
}

// Sweep runs one pass over ownerScope's repositories, enqueueing
// indexing for any repository whose last_push_at is stale enough and
// that hasn't itself been enqueued by this policy within the thrash
// window.
func (p *AutoReindexPolicy) Sweep(ctx context.Context, ownerScope string) error {
	repos, err := p.lister.ListRepositories(ctx, ownerScope)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, repo := range repos {
		if repo.LastPushAt == nil || now.Sub(*repo.LastPushAt) < p.staleness {
			continue
		}
		if p.recentlyChecked(repo.ID, now) {
			continue
		}
		if _, err := p.tracker.Enqueue(ctx, repo.ID, repo.DefaultBranch, "", "auto-reindex"); err != nil {
			logging.Warnf("jobs", "auto-reindex: enqueueing %s: %v", repo.FullName, err)
			continue
		}
		p.markChecked(repo.ID, now)
	}
	return nil
}

func (p *AutoReindexPolicy) recentlyChecked(repositoryID string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastCheck[repositoryID]
	return ok && now.Sub(last) < p.thrashWindow
}

func (p *AutoReindexPolicy) markChecked(repositoryID string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastCheck[repositoryID] = now
}
