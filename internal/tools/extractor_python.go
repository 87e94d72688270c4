// -----------------------------------------------------------------------
// Python Extractor - Indentation-tracking declaration scanner
// -----------------------------------------------------------------------

package tools

import (
	"regexp"
	"strings"
)

var (
	pythonDeclRe       = regexp.MustCompile(`^(\s*)(?:async\s+)?(def|class)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	pythonImportRe     = regexp.MustCompile(`^\s*import\s+(.+)`)
	pythonFromImportRe = regexp.MustCompile(`^\s*from\s+([.\w]+)\s+import\s+(.+)`)
)

// PythonExtractor finds def and class declarations by tracking indentation:
// a def indented under an open class is a method, a top-level def is a
// function. The extractor also records the declaration's parameter names,
// the first docstring line, class method names, and module imports.
type PythonExtractor struct{}

func NewPythonExtractor() *PythonExtractor {
	return &PythonExtractor{}
}

func (e *PythonExtractor) Language() string {
	return "Python"
}

func (e *PythonExtractor) Extract(content string) ([]Structure, []Import) {
	var structures []Structure
	var imports []Import

	lines := strings.Split(content, "\n")

	// Indent of the innermost open class and its index in structures;
	// classIndent is -1 when not inside a class
	classIndent := -1
	classIdx := -1

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if match := pythonFromImportRe.FindStringSubmatch(line); match != nil {
			module := match[1]
			symbols := strings.Trim(strings.TrimSpace(match[2]), "()")
			for _, symbol := range strings.Split(symbols, ",") {
				name := importedName(symbol)
				if name != "" {
					imports = append(imports, Import{Module: module, Symbol: name})
				}
			}
			continue
		}
		if match := pythonImportRe.FindStringSubmatch(line); match != nil {
			for _, module := range strings.Split(match[1], ",") {
				name := importedName(module)
				if name != "" {
					imports = append(imports, Import{Module: name})
				}
			}
			continue
		}

		match := pythonDeclRe.FindStringSubmatch(line)
		if match == nil {
			// A non-blank line at or left of the class indent closes the class
			if classIndent >= 0 && indentWidth(line) <= classIndent {
				classIndent = -1
				classIdx = -1
			}
			continue
		}

		indent := len(match[1])
		keyword := match[2]
		name := match[3]

		if classIndent >= 0 && indent <= classIndent {
			classIndent = -1
			classIdx = -1
		}

		switch keyword {
		case "class":
			structures = append(structures, Structure{
				Kind:      StructureClass,
				Name:      name,
				Line:      i + 1,
				Docstring: docstringAfter(lines, i),
			})
			classIndent = indent
			classIdx = len(structures) - 1
		case "def":
			kind := StructureFunction
			if classIndent >= 0 && indent > classIndent {
				kind = StructureMethod
				if classIdx >= 0 {
					structures[classIdx].Methods = append(structures[classIdx].Methods, name)
				}
			}
			structures = append(structures, Structure{
				Kind:      kind,
				Name:      name,
				Line:      i + 1,
				Docstring: docstringAfter(lines, i),
				Params:    parseParams(paramText(line)),
			})
		}
	}

	return structures, imports
}

// importedName strips an "as" alias and whitespace from one import clause
// entry, returning the imported name itself.
func importedName(entry string) string {
	entry = strings.TrimSpace(entry)
	if idx := strings.Index(entry, " as "); idx >= 0 {
		entry = entry[:idx]
	}
	return strings.TrimSpace(entry)
}

// paramText returns the text between the declaration's parentheses on the
// same line. A signature spanning lines yields the portion on the first line.
func paramText(line string) string {
	open := strings.Index(line, "(")
	if open < 0 {
		return ""
	}
	rest := line[open+1:]
	if close := strings.Index(rest, ")"); close >= 0 {
		return rest[:close]
	}
	return rest
}

// parseParams splits a parameter list into bare names, dropping type
// annotations, defaults, and star prefixes.
func parseParams(raw string) []string {
	var params []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if idx := strings.IndexAny(name, ":="); idx >= 0 {
			name = strings.TrimSpace(name[:idx])
		}
		name = strings.TrimLeft(name, "*")
		if name != "" {
			params = append(params, name)
		}
	}
	return params
}

// docstringAfter returns the first line of a docstring opening directly
// below the declaration at index i, or an empty string.
func docstringAfter(lines []string, i int) string {
	for j := i + 1; j < len(lines); j++ {
		trimmed := strings.TrimSpace(lines[j])
		if trimmed == "" {
			continue
		}

		var quote string
		switch {
		case strings.HasPrefix(trimmed, `"""`):
			quote = `"""`
		case strings.HasPrefix(trimmed, "'''"):
			quote = "'''"
		default:
			return ""
		}

		body := strings.TrimPrefix(trimmed, quote)
		if idx := strings.Index(body, quote); idx >= 0 {
			return strings.TrimSpace(body[:idx])
		}
		if first := strings.TrimSpace(body); first != "" {
			return first
		}
		// Opening quotes alone: the first content line follows
		for k := j + 1; k < len(lines); k++ {
			next := strings.TrimSpace(lines[k])
			if next == "" {
				continue
			}
			if idx := strings.Index(next, quote); idx >= 0 {
				next = strings.TrimSpace(next[:idx])
			}
			return next
		}
		return ""
	}
	return ""
}

func indentWidth(line string) int {
	width := 0
	for _, r := range line {
		if r == ' ' {
			width++
		} else if r == '\t' {
			width += 4
		} else {
			break
		}
	}
	return width
}
