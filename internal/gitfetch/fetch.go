// Package gitfetch implements C4: resolving a repository reference to
// a local working directory, either by reusing a caller-supplied path
// or by shallow clone/checkout, optionally authenticated with a
// GitHub-App installation token.
package gitfetch

import (
	"context"
	"fmt"
	"os"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	gogithttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
	"github.com/jayminwest/kotadb-sub013/internal/ghapp"
	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
)

// TokenSource obtains a short-lived installation access token for a
// repository's installation_id. Satisfied by *ghapp.Client.
type TokenSource interface {
	GetInstallationToken(ctx context.Context, installationID string) (ghapp.Token, error)
}

// Fetcher resolves repositories to local working directories.
type Fetcher struct {
	GitBaseURL string
	Tokens     TokenSource
}

// New builds a Fetcher. tokens may be nil if no repository in use
// carries an installation_id.
func New(gitBaseURL string, tokens TokenSource) *Fetcher {
	return &Fetcher{GitBaseURL: gitBaseURL, Tokens: tokens}
}

// Resolve yields a working directory for repo at ref. If localPath is
// non-empty and exists, it is reused as-is without any network
// access. Otherwise a shallow clone/checkout is performed into
// destDir from GitBaseURL/FullName at ref.
func (f *Fetcher) Resolve(ctx context.Context, repo *domain.Repository, ref, localPath, destDir string) (string, error) {
	if localPath != "" {
		if _, err := os.Stat(localPath); err == nil {
			return localPath, nil
		}
	}

	auth, err := f.authFor(ctx, repo)
	if err != nil {
		return "", err
	}

	url := repo.GitURL
	if url == "" {
		url = f.GitBaseURL + "/" + repo.FullName
	}

	if isCloned(destDir) {
		if err := f.fetchAndCheckout(ctx, url, ref, destDir, auth); err != nil {
			return "", err
		}
		return destDir, nil
	}

	if err := f.cloneAndCheckout(ctx, url, ref, destDir, auth); err != nil {
		return "", err
	}
	return destDir, nil
}

func (f *Fetcher) authFor(ctx context.Context, repo *domain.Repository) (transport.AuthMethod, error) {
	if repo.InstallationID == "" || f.Tokens == nil {
		return nil, nil
	}
	tok, err := f.Tokens.GetInstallationToken(ctx, repo.InstallationID)
	if err != nil {
		return nil, kotaerr.Wrap(kotaerr.UpstreamAuth, "obtaining installation token", err)
	}
	return &gogithttp.BasicAuth{Username: "x-access-token", Password: tok.Value}, nil
}

func (f *Fetcher) cloneAndCheckout(ctx context.Context, url, ref, destDir string, auth transport.AuthMethod) error {
	repo, err := gogit.PlainCloneContext(ctx, destDir, false, &gogit.CloneOptions{
		URL:   url,
		Auth:  auth,
		Depth: 1,
	})
	if err != nil {
		return classifyCloneErr(err)
	}
	return checkoutRef(repo, ref)
}

func (f *Fetcher) fetchAndCheckout(ctx context.Context, url, ref, destDir string, auth transport.AuthMethod) error {
	repo, err := gogit.PlainOpen(destDir)
	if err != nil {
		return kotaerr.Wrap(kotaerr.Internal, "opening existing clone", err)
	}
	err = repo.FetchContext(ctx, &gogit.FetchOptions{
		Auth:  auth,
		Force: true,
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return classifyCloneErr(err)
	}
	return checkoutRef(repo, ref)
}

func checkoutRef(repo *gogit.Repository, ref string) error {
	wt, err := repo.Worktree()
	if err != nil {
		return kotaerr.Wrap(kotaerr.Internal, "getting worktree", err)
	}

	hash, err := resolveRef(repo, ref)
	if err != nil {
		return kotaerr.Wrap(kotaerr.UpstreamNotFound, fmt.Sprintf("resolving ref %q", ref), err)
	}

	if err := wt.Checkout(&gogit.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return kotaerr.Wrap(kotaerr.Internal, fmt.Sprintf("checking out %q", ref), err)
	}
	return nil
}

func resolveRef(repo *gogit.Repository, ref string) (plumbing.Hash, error) {
	if plumbing.IsHash(ref) {
		return plumbing.NewHash(ref), nil
	}
	if resolved, err := repo.ResolveRevision(plumbing.Revision("refs/remotes/origin/" + ref)); err == nil {
		return *resolved, nil
	}
	if resolved, err := repo.ResolveRevision(plumbing.Revision("refs/tags/" + ref)); err == nil {
		return *resolved, nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return *resolved, nil
}

func isCloned(path string) bool {
	_, err := os.Stat(path + "/.git")
	return err == nil
}

// classifyCloneErr maps go-git's untyped clone/fetch errors onto the
// taxonomy the job tracker retries on (4.2: "auth, not-found,
// rate-limit, transient network, other").
func classifyCloneErr(err error) error {
	msg := err.Error()
	switch {
	case contains(msg, "authentication required", "authorization failed", "401"):
		return kotaerr.Wrap(kotaerr.UpstreamAuth, "clone authentication failed", err)
	case contains(msg, "not found", "404", "repository not found"):
		return kotaerr.Wrap(kotaerr.UpstreamNotFound, "repository not found", err)
	case contains(msg, "rate limit", "429"):
		return kotaerr.Wrap(kotaerr.UpstreamRateLimit, "upstream rate limited", err)
	case contains(msg, "timeout", "connection refused", "no such host", "EOF", "reset by peer"):
		return kotaerr.Wrap(kotaerr.UpstreamUnavailable, "transient network failure", err)
	default:
		return kotaerr.Wrap(kotaerr.Internal, "clone failed", err)
	}
}

func contains(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
