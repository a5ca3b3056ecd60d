package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
	"github.com/jayminwest/kotadb-sub013/internal/extractor"
	"github.com/jayminwest/kotadb-sub013/internal/logging"
)

// FileStore is the subset of the sqlite store the indexer writes to.
type FileStore interface {
	FileContentHash(ctx context.Context, repositoryID, path string) (string, error)
	FileIDByPath(ctx context.Context, repositoryID, path string) (string, bool, error)
	UpsertFile(ctx context.Context, file *domain.IndexedFile, symbols []*domain.Symbol, refs []*domain.Reference, deps []*domain.Dependency) error
	SetFileDependencies(ctx context.Context, fileID string, deps []*domain.Dependency) error
}

// indexRepository walks workDir, running C3's per-file steps (spec
// 4.2 steps 1-5) and reporting incremental stats via onProgress. It
// stops early once shouldCancel reports true between files.
//
// Dependency identifiers are package-level (an import path, a module
// name) and only resolvable to a to_file_id once every file's path is
// known, so the walk runs in two passes: the first upserts each
// changed file's content/symbols/references, the second resolves
// dependency identifiers against the full path set and writes the
// indexed_dependencies edges.
func indexRepository(ctx context.Context, store FileStore, pipeline *extractor.Pipeline, repositoryID, workDir string, shouldCancel func() bool, onProgress func(domain.IndexJobStats)) (domain.IndexJobStats, error) {
	var stats domain.IndexJobStats

	paths, err := discoverFiles(workDir)
	if err != nil {
		return stats, err
	}
	pathIndex := newDependencyIndex(paths)

	type pending struct {
		path string
		deps []string
	}
	var toResolve []pending

	for _, relPath := range paths {
		if shouldCancel() {
			return stats, errCancelled
		}

		language := extractor.DetectLanguage(relPath)
		if language == "" {
			continue
		}

		content, err := os.ReadFile(filepath.Join(workDir, relPath)) // #nosec G304 -- relPath enumerated from workDir itself
		if err != nil {
			logging.Warnf("jobs", "reading %s: %v", relPath, err)
			continue
		}

		hash := contentHash(content)
		existingHash, err := store.FileContentHash(ctx, repositoryID, relPath)
		if err != nil {
			logging.Warnf("jobs", "checking content hash for %s: %v", relPath, err)
			continue
		}
		if existingHash == hash {
			continue // G3: unchanged content is a no-op
		}

		result, err := pipeline.Run(ctx, language, string(content))
		if err != nil {
			logging.Warnf("jobs", "extracting %s: %v", relPath, err)
			continue
		}

		file := &domain.IndexedFile{
			RepositoryID: repositoryID,
			Path:         relPath,
			Content:      string(content),
			Language:     language,
			Dependencies: result.Dependencies,
			ContentHash:  hash,
		}
		if err := store.UpsertFile(ctx, file, result.Symbols, result.References, nil); err != nil {
			logging.Warnf("jobs", "upserting %s: %v", relPath, err)
			continue
		}

		stats.FilesIndexed++
		stats.SymbolsExtracted += len(result.Symbols)
		stats.ReferencesFound += len(result.References)
		onProgress(stats)

		if len(result.Dependencies) > 0 {
			toResolve = append(toResolve, pending{path: relPath, deps: result.Dependencies})
		}
	}

	for _, p := range toResolve {
		fileID, ok, err := store.FileIDByPath(ctx, repositoryID, p.path)
		if err != nil || !ok {
			continue
		}
		deps := resolveDependencies(ctx, store, repositoryID, p.path, p.deps, pathIndex)
		if len(deps) == 0 {
			continue
		}
		if err := store.SetFileDependencies(ctx, fileID, deps); err != nil {
			logging.Warnf("jobs", "setting dependencies for %s: %v", p.path, err)
			continue
		}
		stats.DependenciesExtracted += len(deps)
		onProgress(stats)
	}

	return stats, nil
}

// discoverFiles walks workDir and returns every regular file's path
// relative to workDir, skipping version-control metadata.
func discoverFiles(workDir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" || d.Name() == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(workDir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	return paths, err
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// dependencyIndex resolves a best-effort mapping from a raw dependency
// identifier (an import path, module name, or relative specifier) to
// the repo-relative path it most plausibly names, so C3's
// package-level identifiers can also populate the file-to-file
// Dependency edges the query layer's graph traversal (C6) walks.
type dependencyIndex struct {
	byStem map[string]string // stem (no extension, slash or dot separated) -> full relative path
}

func newDependencyIndex(paths []string) *dependencyIndex {
	idx := &dependencyIndex{byStem: make(map[string]string, len(paths))}
	for _, p := range paths {
		stem := strings.TrimSuffix(p, filepath.Ext(p))
		idx.byStem[stem] = p
		idx.byStem[strings.ReplaceAll(stem, "/", ".")] = p
	}
	return idx
}

func (idx *dependencyIndex) resolve(dep string) (string, bool) {
	dep = strings.TrimPrefix(dep, "./")
	dep = strings.TrimPrefix(dep, "/")
	if p, ok := idx.byStem[dep]; ok {
		return p, true
	}
	// Suffix match: an import like "internal/widget" should match a
	// file ending in ".../internal/widget" even under a module prefix
	// the dependency identifier doesn't carry.
	for stem, p := range idx.byStem {
		if strings.HasSuffix(stem, "/"+dep) || strings.HasSuffix(stem, "."+dep) {
			return p, true
		}
	}
	return "", false
}

func resolveDependencies(ctx context.Context, store FileStore, repositoryID, fromPath string, rawDeps []string, idx *dependencyIndex) []*domain.Dependency {
	var out []*domain.Dependency
	seen := map[string]bool{}
	for _, dep := range rawDeps {
		targetPath, ok := idx.resolve(dep)
		if !ok || targetPath == fromPath || seen[targetPath] {
			continue
		}
		targetID, ok, err := store.FileIDByPath(ctx, repositoryID, targetPath)
		if err != nil || !ok {
			continue
		}
		seen[targetPath] = true
		out = append(out, &domain.Dependency{Kind: domain.DepImport, ToFileID: targetID})
	}
	return out
}
