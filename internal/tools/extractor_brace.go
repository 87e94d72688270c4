// -----------------------------------------------------------------------
// Brace Extractor - Pattern-based scanner for brace-delimited languages
// -----------------------------------------------------------------------

package tools

import (
	"regexp"
	"strings"
)

var (
	braceFunctionRe = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][A-Za-z0-9_$]*)\s*\(([^)]*)`)
	braceArrowRe    = regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=\s*(?:async\s*)?(?:\(([^)]*)\)|([A-Za-z_$][A-Za-z0-9_$]*))\s*=>`)
	braceClassRe    = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][A-Za-z0-9_$]*)`)

	braceImportRe     = regexp.MustCompile(`^\s*import\s+(?:\{([^}]+)\}|([A-Za-z_$][A-Za-z0-9_$]*))\s+from\s+['"]([^'"]+)['"]`)
	braceImportBareRe = regexp.MustCompile(`^\s*import\s+['"]([^'"]+)['"]`)
	braceRequireRe    = regexp.MustCompile(`^\s*(?:const|let|var)\s+(?:\{([^}]+)\}|([A-Za-z_$][A-Za-z0-9_$]*))\s*=\s*require\(['"]([^'"]+)['"]\)`)
)

// BraceExtractor scans JavaScript and TypeScript sources line by line for
// function declarations, arrow-function bindings, classes, and ES6 or
// CommonJS imports. It is a pattern scanner, not a parser: declarations
// hidden inside strings or comments can slip through, which is acceptable
// for documentation input.
type BraceExtractor struct {
	language string
}

func NewBraceExtractor(language string) *BraceExtractor {
	return &BraceExtractor{language: language}
}

func (e *BraceExtractor) Language() string {
	return e.language
}

func (e *BraceExtractor) Extract(content string) ([]Structure, []Import) {
	var structures []Structure
	var imports []Import

	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "*") {
			continue
		}

		if match := braceImportRe.FindStringSubmatch(line); match != nil {
			imports = append(imports, moduleImports(match[1], match[2], match[3])...)
			continue
		}
		if match := braceImportBareRe.FindStringSubmatch(line); match != nil {
			imports = append(imports, Import{Module: match[1]})
			continue
		}
		if match := braceRequireRe.FindStringSubmatch(line); match != nil {
			imports = append(imports, moduleImports(match[1], match[2], match[3])...)
			continue
		}

		if match := braceClassRe.FindStringSubmatch(line); match != nil {
			structures = append(structures, Structure{Kind: StructureClass, Name: match[1], Line: i + 1})
			continue
		}
		if match := braceFunctionRe.FindStringSubmatch(line); match != nil {
			structures = append(structures, Structure{
				Kind:   StructureFunction,
				Name:   match[1],
				Line:   i + 1,
				Params: parseParams(match[2]),
			})
			continue
		}
		if match := braceArrowRe.FindStringSubmatch(line); match != nil {
			params := match[2]
			if params == "" && match[3] != "" {
				params = match[3]
			}
			structures = append(structures, Structure{
				Kind:   StructureFunction,
				Name:   match[1],
				Line:   i + 1,
				Params: parseParams(params),
			})
		}
	}

	return structures, imports
}

// moduleImports expands one import statement into Import records: named
// bindings become one record per symbol, a default or whole-module binding
// becomes a single record.
func moduleImports(named, binding, module string) []Import {
	if named != "" {
		var out []Import
		for _, symbol := range strings.Split(named, ",") {
			name := importedName(symbol)
			if name != "" {
				out = append(out, Import{Module: module, Symbol: name})
			}
		}
		return out
	}
	return []Import{{Module: module, Symbol: binding}}
}
