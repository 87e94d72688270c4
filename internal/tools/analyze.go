// -----------------------------------------------------------------------
// Analyze - Structural extraction from selected code files
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

// StructureKind labels an extracted program structure.
type StructureKind string

const (
	StructureFunction StructureKind = "function"
	StructureClass    StructureKind = "class"
	StructureMethod   StructureKind = "method"
)

// Structure is one extracted declaration.
type Structure struct {
	Kind      StructureKind
	Name      string
	Line      int      // 1-based line of the declaration
	Docstring string   // First line of the docstring, when one follows the declaration
	Params    []string // Parameter names for functions and methods
	Methods   []string // Method names for classes
}

// Import is one recorded dependency edge. Symbol is set for from-style and
// named imports; a bare module import leaves it empty.
type Import struct {
	Module string
	Symbol string
}

// FileAnalysis is the structural summary of one code file. A file that could
// not be read carries Error and nothing else; the stage never fails on a
// single bad file.
type FileAnalysis struct {
	Path       string
	Language   string
	Structures []Structure
	Imports    []Import
	Content    string // Raw file content, reused by the comments variant
	Error      string // Set when the file could not be read or parsed
}

// Extractor pulls declarations and imports out of one language's source text.
type Extractor interface {
	Language() string
	Extract(content string) ([]Structure, []Import)
}

// Analyzer selects the most significant code files and extracts their
// structure with per-language extractors.
type Analyzer struct {
	logger     arbor.ILogger
	maxFiles   int
	extractors map[string]Extractor // keyed by extension
}

// NewAnalyzer registers the built-in extractors
func NewAnalyzer(config *common.AnalyzerConfig, logger arbor.ILogger) *Analyzer {
	python := NewPythonExtractor()
	js := NewBraceExtractor("JavaScript")
	ts := NewBraceExtractor("TypeScript")

	return &Analyzer{
		logger:   logger,
		maxFiles: config.MaxFiles,
		extractors: map[string]Extractor{
			".py":  python,
			".js":  js,
			".jsx": js,
			".mjs": js,
			".cjs": js,
			".ts":  ts,
			".tsx": ts,
		},
	}
}

// Select orders the inventory's code files by significance and returns at
// most maxFiles of them: root-level files first, then larger files, ties
// broken alphabetically.
func (a *Analyzer) Select(inv *Inventory) []FileEntry {
	code := inv.CodeFiles()

	sort.SliceStable(code, func(i, j int) bool {
		iRoot, jRoot := code[i].Depth == 0, code[j].Depth == 0
		if iRoot != jRoot {
			return iRoot
		}
		if code[i].Size != code[j].Size {
			return code[i].Size > code[j].Size
		}
		return code[i].Path < code[j].Path
	})

	if len(code) > a.maxFiles {
		code = code[:a.maxFiles]
	}
	return code
}

// Analyze extracts structure from the selected files. A repository with no
// analyzable code files is a terminal condition: there is nothing to
// document.
func (a *Analyzer) Analyze(repoDir string, inv *Inventory) ([]FileAnalysis, error) {
	selected := a.Select(inv)
	if len(selected) == 0 {
		return nil, models.NewStageError(models.ErrNoAnalyzableFiles, "")
	}

	analyses := make([]FileAnalysis, 0, len(selected))
	for _, entry := range selected {
		data, err := os.ReadFile(filepath.Join(repoDir, filepath.FromSlash(entry.Path)))
		if err != nil {
			a.logger.Warn().Err(err).Str("path", entry.Path).Msg("File could not be read, recording error stub")
			analyses = append(analyses, FileAnalysis{
				Path:     entry.Path,
				Language: languageOf(entry.Path),
				Error:    err.Error(),
			})
			continue
		}
		content := string(data)

		analysis := FileAnalysis{
			Path:     entry.Path,
			Language: languageOf(entry.Path),
			Content:  content,
		}
		if extractor, ok := a.extractors[strings.ToLower(filepath.Ext(entry.Path))]; ok {
			analysis.Language = extractor.Language()
			analysis.Structures, analysis.Imports = extractor.Extract(content)
		}
		analyses = append(analyses, analysis)
	}

	a.logger.Info().
		Int("files", len(analyses)).
		Msg("Structural analysis complete")

	return analyses, nil
}

// languageOf names the language for extensions without a registered
// extractor; these files contribute their content but no structure list.
func languageOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "Go"
	case ".java":
		return "Java"
	case ".rb":
		return "Ruby"
	case ".rs":
		return "Rust"
	case ".php":
		return "PHP"
	case ".c", ".h":
		return "C"
	case ".cpp", ".hpp", ".cc":
		return "C++"
	case ".cs":
		return "C#"
	case ".kt":
		return "Kotlin"
	case ".swift":
		return "Swift"
	case ".scala":
		return "Scala"
	case ".sh":
		return "Shell"
	case ".sql":
		return "SQL"
	default:
		return "Unknown"
	}
}
