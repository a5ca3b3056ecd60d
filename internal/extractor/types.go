// Package extractor implements C3: per-file language detection and
// symbol/reference/dependency extraction over a language-neutral
// result shape. The content-hash no-op check lives in the indexer
// (internal/jobs), not here.
package extractor

import (
	"time"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
)

// pendingReference is an intra-file reference keyed by the referenced
// symbol's name rather than its (not-yet-assigned) store id; the
// pipeline resolves names to ids once symbols are known.
type pendingReference struct {
	ToSymbolName string
	Position     int
}

// rawResult is what a LanguageExtractor produces directly: symbols
// with as-yet-unassigned ids, and references keyed by the referenced
// symbol's name rather than its id.
type rawResult struct {
	Symbols      []*domain.Symbol
	References   []pendingReference
	Dependencies []string
}

// Result is the language-neutral, resolved extraction output for a
// single file, the generalization of the teacher's Entity/Relationship
// shape to KotaDB's Symbol/Reference/Dependency domain. References
// here are fully resolved: each ToSymbolID names a Symbol present in
// Symbols. Unresolved references are dropped per G2, not stored.
type Result struct {
	Symbols      []*domain.Symbol
	References   []*domain.Reference
	Dependencies []string // package identifiers, not file links (spec 3 IndexedFile.dependencies[])
	Duration     time.Duration
	Extractor    string
}

// LanguageExtractor extracts symbols, intra-file references, and
// package-level dependency identifiers from one file's content.
type LanguageExtractor interface {
	// Languages returns the language identifiers this extractor
	// handles, matched against DetectLanguage's output.
	Languages() []string
	Extract(content string) (*rawResult, error)
	Name() string
}
