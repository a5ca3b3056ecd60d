package extractor

import (
	"testing"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
)

func TestGoExtractorClassifiesMethodsAndFunctions(t *testing.T) {
	src := `package repo

func Open(path string) (*Repo, error) {
	return nil, nil
}

func (r *Repo) Name() string {
	return r.name
}

func (r Repo) Close() error {
	return nil
}
`
	res, err := newGoExtractor().Extract(src)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	kinds := map[string]domain.SymbolKind{}
	for _, s := range res.Symbols {
		kinds[s.Name] = s.Kind
	}

	if kinds["Open"] != domain.KindFunction {
		t.Errorf("Open kind = %s, want %s", kinds["Open"], domain.KindFunction)
	}
	if kinds["Name"] != domain.KindMethod {
		t.Errorf("Name kind = %s, want %s", kinds["Name"], domain.KindMethod)
	}
	if kinds["Close"] != domain.KindMethod {
		t.Errorf("Close kind = %s, want %s", kinds["Close"], domain.KindMethod)
	}
}
