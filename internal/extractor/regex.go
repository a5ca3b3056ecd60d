package extractor

import (
	"regexp"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
)

// goExtractor recognizes top-level Go declarations with regular
// expressions rather than a full parser, the same tier of fidelity
// the teacher's own entity extractor ships (CamelCase/keyword regex
// matching over raw text, not an AST).
type goExtractor struct{}

func newGoExtractor() *goExtractor { return &goExtractor{} }

func (g *goExtractor) Languages() []string { return []string{"go"} }
func (g *goExtractor) Name() string        { return "go-regex" }

var (
	goFuncPattern   = regexp.MustCompile(`(?m)^func\s+(\([^)]*\)\s+)?([A-Za-z_]\w*)\s*\(`)
	goTypePattern   = regexp.MustCompile(`(?m)^type\s+([A-Za-z_]\w*)\s+(struct|interface)\b`)
	goConstPattern  = regexp.MustCompile(`(?m)^\s*(?:const|var)\s+([A-Za-z_]\w*)\s*(?:[A-Za-z_\[\]\.]*\s*)?=`)
	goImportPattern = regexp.MustCompile(`"([^"]+)"`)
	goImportBlock   = regexp.MustCompile(`(?s)import\s*\(([^)]*)\)`)
	goCallPattern   = regexp.MustCompile(`\b([A-Za-z_]\w*)\s*\(`)
)

func (g *goExtractor) Extract(content string) (*rawResult, error) {
	res := &rawResult{}
	known := map[string]bool{}

	for _, m := range goFuncPattern.FindAllStringSubmatchIndex(content, -1) {
		name := content[m[4]:m[5]]
		kind := domain.KindFunction
		if m[2] != -1 {
			kind = domain.KindMethod
		}
		res.Symbols = append(res.Symbols, &domain.Symbol{Name: name, Kind: kind, StartOffset: m[0]})
		known[name] = true
	}
	for _, m := range goTypePattern.FindAllStringSubmatchIndex(content, -1) {
		name := content[m[2]:m[3]]
		kind := domain.KindStruct
		if content[m[4]:m[5]] == "interface" {
			kind = domain.KindInterface
		}
		res.Symbols = append(res.Symbols, &domain.Symbol{Name: name, Kind: kind, StartOffset: m[0]})
		known[name] = true
	}
	for _, m := range goConstPattern.FindAllStringSubmatchIndex(content, -1) {
		name := content[m[2]:m[3]]
		res.Symbols = append(res.Symbols, &domain.Symbol{Name: name, Kind: domain.KindConstant, StartOffset: m[0]})
		known[name] = true
	}

	if block := goImportBlock.FindString(content); block != "" {
		for _, m := range goImportPattern.FindAllStringSubmatch(block, -1) {
			res.Dependencies = append(res.Dependencies, m[1])
		}
	}

	for _, m := range goCallPattern.FindAllStringSubmatchIndex(content, -1) {
		name := content[m[2]:m[3]]
		if known[name] {
			res.References = append(res.References, pendingReference{ToSymbolName: name, Position: m[0]})
		}
	}

	return res, nil
}

// dynamicExtractor handles Python/JavaScript/TypeScript with a shared
// regex set (def/function/class declarations and import statements),
// since all three share enough surface syntax for a heuristic pass.
type dynamicExtractor struct {
	lang string
}

func newPythonExtractor() *dynamicExtractor     { return &dynamicExtractor{lang: "python"} }
func newJavaScriptExtractor() *dynamicExtractor { return &dynamicExtractor{lang: "javascript"} }
func newTypeScriptExtractor() *dynamicExtractor { return &dynamicExtractor{lang: "typescript"} }

func (d *dynamicExtractor) Languages() []string { return []string{d.lang} }
func (d *dynamicExtractor) Name() string        { return d.lang + "-regex" }

var (
	pyFuncPattern     = regexp.MustCompile(`(?m)^\s*def\s+([A-Za-z_]\w*)\s*\(`)
	pyClassPattern    = regexp.MustCompile(`(?m)^\s*class\s+([A-Za-z_]\w*)\s*[:\(]`)
	pyImportPattern   = regexp.MustCompile(`(?m)^\s*(?:from\s+([\w.]+)\s+import|import\s+([\w.]+))`)
	jsFuncPattern     = regexp.MustCompile(`(?m)\bfunction\s+([A-Za-z_$]\w*)\s*\(|\bconst\s+([A-Za-z_$]\w*)\s*=\s*(?:async\s*)?\(`)
	jsClassPattern    = regexp.MustCompile(`(?m)\bclass\s+([A-Za-z_$]\w*)\b`)
	jsImportPattern   = regexp.MustCompile(`(?m)\bimport\s+.*?from\s+['"]([^'"]+)['"]|\brequire\(['"]([^'"]+)['"]\)`)
	callPattern       = regexp.MustCompile(`\b([A-Za-z_$]\w*)\s*\(`)
)

func (d *dynamicExtractor) Extract(content string) (*rawResult, error) {
	res := &rawResult{}
	known := map[string]bool{}

	addSymbol := func(name string, kind domain.SymbolKind, offset int) {
		if name == "" {
			return
		}
		res.Symbols = append(res.Symbols, &domain.Symbol{Name: name, Kind: kind, StartOffset: offset})
		known[name] = true
	}

	switch d.lang {
	case "python":
		for _, m := range pyFuncPattern.FindAllStringSubmatchIndex(content, -1) {
			addSymbol(content[m[2]:m[3]], domain.KindFunction, m[0])
		}
		for _, m := range pyClassPattern.FindAllStringSubmatchIndex(content, -1) {
			addSymbol(content[m[2]:m[3]], domain.KindClass, m[0])
		}
		for _, m := range pyImportPattern.FindAllStringSubmatch(content, -1) {
			if m[1] != "" {
				res.Dependencies = append(res.Dependencies, m[1])
			} else if m[2] != "" {
				res.Dependencies = append(res.Dependencies, m[2])
			}
		}
	default: // javascript, typescript
		for _, m := range jsFuncPattern.FindAllStringSubmatchIndex(content, -1) {
			name := groupOrEmpty(content, m, 2)
			if name == "" {
				name = groupOrEmpty(content, m, 4)
			}
			addSymbol(name, domain.KindFunction, m[0])
		}
		for _, m := range jsClassPattern.FindAllStringSubmatchIndex(content, -1) {
			addSymbol(content[m[2]:m[3]], domain.KindClass, m[0])
		}
		for _, m := range jsImportPattern.FindAllStringSubmatch(content, -1) {
			if m[1] != "" {
				res.Dependencies = append(res.Dependencies, m[1])
			} else if m[2] != "" {
				res.Dependencies = append(res.Dependencies, m[2])
			}
		}
	}

	for _, m := range callPattern.FindAllStringSubmatchIndex(content, -1) {
		name := content[m[2]:m[3]]
		if known[name] {
			res.References = append(res.References, pendingReference{ToSymbolName: name, Position: m[0]})
		}
	}

	return res, nil
}

func groupOrEmpty(content string, m []int, idx int) string {
	start, end := m[idx], m[idx+1]
	if start < 0 || end < 0 {
		return ""
	}
	return content[start:end]
}
