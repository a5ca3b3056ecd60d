package validation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jayminwest/kotadb-sub013/internal/queries"
)

// Requirement names one thing an implementation must have: a file at
// Path, optionally containing a symbol named Symbol.
type Requirement struct {
	Path   string `json:"path"`
	Symbol string `json:"symbol,omitempty"`
}

// MissingRequirement describes one Requirement that validate_implementation_spec
// could not locate in the index.
type MissingRequirement struct {
	Requirement
	Reason string `json:"reason"`
}

// ImplementationSpecResult is validate_implementation_spec's output.
type ImplementationSpecResult struct {
	Satisfied bool                 `json:"satisfied"`
	Checked   int                  `json:"checked"`
	Missing   []MissingRequirement `json:"missing,omitempty"`
}

// ValidateImplementationSpec checks that every requirement's file (and,
// if given, its named symbol) is present in the index for repositoryID
// within ownerScope. Requirements are checked independently; the first
// one to fail does not stop the rest, so a caller sees every gap in one
// round trip instead of iterating tool calls one miss at a time.
func ValidateImplementationSpec(ctx context.Context, db *sql.DB, ownerScope, repositoryID string, requirements []Requirement) (*ImplementationSpecResult, error) {
	result := &ImplementationSpecResult{Checked: len(requirements)}

	for _, req := range requirements {
		exists, err := queries.FileExists(ctx, db, ownerScope, repositoryID, req.Path)
		if err != nil {
			return nil, fmt.Errorf("validating requirement %q: %w", req.Path, err)
		}
		if !exists {
			result.Missing = append(result.Missing, MissingRequirement{Requirement: req, Reason: "file not indexed"})
			continue
		}
		if req.Symbol == "" {
			continue
		}
		found, err := queries.SymbolExists(ctx, db, ownerScope, repositoryID, req.Path, req.Symbol)
		if err != nil {
			return nil, fmt.Errorf("validating requirement %q#%s: %w", req.Path, req.Symbol, err)
		}
		if !found {
			result.Missing = append(result.Missing, MissingRequirement{Requirement: req, Reason: "symbol not found in file"})
		}
	}

	result.Satisfied = len(result.Missing) == 0
	return result, nil
}
