package extractor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
	"github.com/jayminwest/kotadb-sub013/internal/logging"
)

// Pipeline registers one LanguageExtractor per recognized language and
// drives symbol/reference/dependency extraction for a single file.
type Pipeline struct {
	byLanguage map[string]LanguageExtractor
}

// NewPipeline builds the default pipeline with the regex-based
// extractors for Go, Python, JavaScript and TypeScript; the other
// recognized languages (rust, java) have no extractor registered.
func NewPipeline() *Pipeline {
	p := &Pipeline{byLanguage: map[string]LanguageExtractor{}}
	for _, ext := range []LanguageExtractor{
		newGoExtractor(),
		newPythonExtractor(),
		newJavaScriptExtractor(),
		newTypeScriptExtractor(),
	} {
		for _, lang := range ext.Languages() {
			p.byLanguage[lang] = ext
		}
	}
	return p
}

// Run extracts symbols/references/dependencies for one file's content,
// given its already-detected language. Symbol IDs are assigned here so
// references can resolve name -> id within this single pass, matching
// G2 ("references resolved within one indexing pass; unresolved
// references are dropped, not stored").
func (p *Pipeline) Run(ctx context.Context, language, content string) (*Result, error) {
	start := time.Now()

	ext, ok := p.byLanguage[language]
	if !ok {
		return &Result{Duration: time.Since(start)}, nil
	}

	raw, err := ext.Extract(content)
	if err != nil {
		logging.Warnf("extractor", "extractor %s failed: %v", ext.Name(), err)
		return &Result{Duration: time.Since(start), Extractor: ext.Name()}, nil
	}

	byName := make(map[string]*domain.Symbol, len(raw.Symbols))
	for _, sym := range raw.Symbols {
		sym.ID = uuid.NewString()
		byName[sym.Name] = sym
	}

	resolved := make([]*domain.Reference, 0, len(raw.References))
	for _, ref := range raw.References {
		sym, ok := byName[ref.ToSymbolName]
		if !ok {
			continue // unresolved: dropped, not stored
		}
		resolved = append(resolved, &domain.Reference{ToSymbolID: sym.ID, Position: ref.Position})
	}

	return &Result{
		Symbols:      raw.Symbols,
		References:   resolved,
		Dependencies: dedupe(raw.Dependencies),
		Duration:     time.Since(start),
		Extractor:    ext.Name(),
	}, nil
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
