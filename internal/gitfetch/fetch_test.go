package gitfetch

import (
	"errors"
	"testing"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
)

func TestResolveReusesExistingLocalPath(t *testing.T) {
	f := New("https://github.com", nil)
	dir := t.TempDir()

	got, err := f.Resolve(t.Context(), &domain.Repository{FullName: "acme/widgets"}, "main", dir, "/unused")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != dir {
		t.Fatalf("Resolve() = %q, want %q (local path reuse, no fetch)", got, dir)
	}
}

func TestAuthForSkipsWhenNoInstallationID(t *testing.T) {
	f := New("https://github.com", nil)
	auth, err := f.authFor(t.Context(), &domain.Repository{})
	if err != nil {
		t.Fatalf("authFor: %v", err)
	}
	if auth != nil {
		t.Fatalf("expected nil auth for a repository without an installation id")
	}
}

func TestClassifyCloneErrMapsToTaxonomy(t *testing.T) {
	cases := []struct {
		msg  string
		want kotaerr.Code
	}{
		{"authentication required", kotaerr.UpstreamAuth},
		{"repository not found", kotaerr.UpstreamNotFound},
		{"API rate limit exceeded", kotaerr.UpstreamRateLimit},
		{"dial tcp: connection refused", kotaerr.UpstreamUnavailable},
		{"some other failure", kotaerr.Internal},
	}
	for _, c := range cases {
		got := classifyCloneErr(errors.New(c.msg))
		ke, ok := kotaerr.As(got)
		if !ok {
			t.Fatalf("classifyCloneErr(%q) did not return a tagged error", c.msg)
		}
		if ke.Code != c.want {
			t.Errorf("classifyCloneErr(%q) = %s, want %s", c.msg, ke.Code, c.want)
		}
	}
}
