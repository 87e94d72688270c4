// -----------------------------------------------------------------------
// Scan - Bounded walk of the clone producing a classified file inventory
// -----------------------------------------------------------------------

package tools

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/models"
)

// FileCategory buckets inventory entries for prompt assembly.
type FileCategory string

const (
	CategoryCode   FileCategory = "code"
	CategoryDocs   FileCategory = "docs"
	CategoryConfig FileCategory = "config"
	CategoryOther  FileCategory = "other"
)

// FileEntry is one file in the inventory. Path is repo-relative with forward
// slashes regardless of platform.
type FileEntry struct {
	Path     string
	Size     int64
	Depth    int // 0 = repository root
	Category FileCategory
}

// Inventory is the scan result.
type Inventory struct {
	Files     []FileEntry
	Truncated bool // File cap hit; the inventory is a prefix of the tree
}

// CountByCategory tallies inventory entries per category.
func (inv *Inventory) CountByCategory() map[FileCategory]int {
	counts := make(map[FileCategory]int)
	for _, f := range inv.Files {
		counts[f.Category]++
	}
	return counts
}

// CodeFiles returns only the code entries, in inventory order.
func (inv *Inventory) CodeFiles() []FileEntry {
	var code []FileEntry
	for _, f := range inv.Files {
		if f.Category == CategoryCode {
			code = append(code, f)
		}
	}
	return code
}

// Directories never worth documenting
var builtinIgnoreDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	"node_modules": {},
	"vendor":       {},
	"__pycache__":  {},
	".venv":        {},
	"venv":         {},
	"env":          {},
	".tox":         {},
	"dist":         {},
	"build":        {},
	"target":       {},
	".idea":        {},
	".vscode":      {},
	".pytest_cache": {},
	".mypy_cache":  {},
	"coverage":     {},
	".next":        {},
	".nuxt":        {},
}

var codeExtensions = map[string]struct{}{
	".py": {}, ".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {}, ".mjs": {}, ".cjs": {},
	".go": {}, ".java": {}, ".kt": {}, ".rb": {}, ".rs": {}, ".php": {},
	".c": {}, ".h": {}, ".cpp": {}, ".hpp": {}, ".cc": {}, ".cs": {},
	".swift": {}, ".scala": {}, ".sh": {}, ".sql": {},
}

var docExtensions = map[string]struct{}{
	".md": {}, ".rst": {}, ".txt": {}, ".adoc": {},
}

var configExtensions = map[string]struct{}{
	".json": {}, ".yaml": {}, ".yml": {}, ".toml": {}, ".ini": {}, ".cfg": {},
	".env": {}, ".properties": {}, ".xml": {},
}

// Scanner walks a clone within configured bounds.
type Scanner struct {
	logger     arbor.ILogger
	maxDepth   int
	maxFiles   int
	ignoreDirs map[string]struct{}
}

// NewScanner merges the configured ignore directories with the built-in set
func NewScanner(config *common.ScannerConfig, logger arbor.ILogger) *Scanner {
	ignore := make(map[string]struct{}, len(builtinIgnoreDirs)+len(config.IgnoreDirs))
	for dir := range builtinIgnoreDirs {
		ignore[dir] = struct{}{}
	}
	for _, dir := range config.IgnoreDirs {
		ignore[dir] = struct{}{}
	}

	return &Scanner{
		logger:     logger,
		maxDepth:   config.MaxDepth,
		maxFiles:   config.MaxFiles,
		ignoreDirs: ignore,
	}
}

// Scan walks the clone breadth-first so the inventory prefers shallow files
// when the file cap truncates it. Entries within a depth level are sorted by
// path for deterministic output.
func (s *Scanner) Scan(repoDir string) (*Inventory, error) {
	inv := &Inventory{}

	type dirEntry struct {
		path  string
		depth int
	}
	queue := []dirEntry{{path: repoDir, depth: 0}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(current.path)
		if err != nil {
			if current.depth == 0 {
				return nil, models.WrapStageError(models.ErrIO, "failed to read repository root", err)
			}
			s.logger.Warn().Err(err).Str("dir", current.path).Msg("Skipping unreadable directory")
			continue
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			name := entry.Name()

			if entry.IsDir() {
				if _, ignored := s.ignoreDirs[name]; ignored {
					continue
				}
				if strings.HasPrefix(name, ".") && name != "." {
					continue // Hidden directories carry tooling, not source
				}
				if current.depth+1 > s.maxDepth {
					continue
				}
				queue = append(queue, dirEntry{path: filepath.Join(current.path, name), depth: current.depth + 1})
				continue
			}

			if inv.Truncated {
				continue
			}
			if len(inv.Files) >= s.maxFiles {
				inv.Truncated = true
				continue
			}

			info, err := entry.Info()
			if err != nil {
				continue
			}

			abs := filepath.Join(current.path, name)
			rel, err := filepath.Rel(repoDir, abs)
			if err != nil {
				continue
			}

			inv.Files = append(inv.Files, FileEntry{
				Path:     filepath.ToSlash(rel),
				Size:     info.Size(),
				Depth:    current.depth,
				Category: Classify(name),
			})
		}
	}

	counts := inv.CountByCategory()
	s.logger.Info().
		Int("total", len(inv.Files)).
		Int("code", counts[CategoryCode]).
		Int("docs", counts[CategoryDocs]).
		Int("config", counts[CategoryConfig]).
		Bool("truncated", inv.Truncated).
		Msg("Repository scanned")

	return inv, nil
}

// Classify buckets a file name into a category by extension. Extensionless
// well-known files (Dockerfile, Makefile) count as config.
func Classify(name string) FileCategory {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := codeExtensions[ext]; ok {
		return CategoryCode
	}
	if _, ok := docExtensions[ext]; ok {
		return CategoryDocs
	}
	if _, ok := configExtensions[ext]; ok {
		return CategoryConfig
	}

	switch name {
	case "Dockerfile", "Makefile", "Procfile", "Vagrantfile":
		return CategoryConfig
	case "LICENSE", "NOTICE", "AUTHORS", "CHANGELOG":
		return CategoryDocs
	}

	return CategoryOther
}
