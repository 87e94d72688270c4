// -----------------------------------------------------------------------
// Generate - Documentation synthesis through the language model
// -----------------------------------------------------------------------

package tools

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/interfaces"
	"github.com/ternarybob/describo/internal/models"
)

const retryBaseDelay = 500 * time.Millisecond

// Usage accumulates model telemetry across a job.
type Usage struct {
	Calls        int
	InputTokens  int
	OutputTokens int
}

// Generator turns the scan and analysis results into documentation. It owns
// the retry policy for transient model failures; the LLM service itself
// never retries.
type Generator struct {
	llm         interfaces.LLMService
	logger      arbor.ILogger
	maxRetries  int
	readmeLimit int
}

// NewGenerator creates a generator over the given model service
func NewGenerator(llm interfaces.LLMService, config *common.Config, logger arbor.ILogger) *Generator {
	return &Generator{
		llm:         llm,
		logger:      logger,
		maxRetries:  config.Model.MaxRetries,
		readmeLimit: config.Generator.ReadmeLimit,
	}
}

// GenerateDocs produces the repository documentation markdown.
func (g *Generator) GenerateDocs(ctx context.Context, sourceURL string, inv *Inventory, analyses []FileAnalysis, readme string, usage *Usage) (string, error) {
	prompt := g.BuildDocsPrompt(sourceURL, inv, analyses, readme)

	completion, err := g.complete(ctx, prompt, usage)
	if err != nil {
		return "", err
	}
	return completion.Text, nil
}

// CommentFile rewrites one source file with explanatory inline comments.
func (g *Generator) CommentFile(ctx context.Context, analysis FileAnalysis, usage *Usage) (string, error) {
	prompt := g.BuildCommentPrompt(analysis)

	completion, err := g.complete(ctx, prompt, usage)
	if err != nil {
		return "", err
	}

	return stripCodeFence(completion.Text), nil
}

// complete calls the model with retries for transient failures. The delay
// doubles per attempt with jitter so concurrent jobs do not retry in step.
func (g *Generator) complete(ctx context.Context, prompt string, usage *Usage) (*interfaces.Completion, error) {
	var lastErr error

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * (1 << (attempt - 1))
			delay += time.Duration(rand.Int63n(int64(retryBaseDelay)))
			g.logger.Warn().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying model call")
			select {
			case <-ctx.Done():
				return nil, models.WrapStageError(models.ErrModelUnavailable, "cancelled during retry wait", ctx.Err())
			case <-time.After(delay):
			}
		}

		completion, err := g.llm.Complete(ctx, prompt)
		if err == nil {
			if usage != nil {
				usage.Calls++
				usage.InputTokens += completion.InputTokens
				usage.OutputTokens += completion.OutputTokens
			}
			return completion, nil
		}

		lastErr = err
		var stageErr *models.StageError
		if !errors.As(err, &stageErr) || !stageErr.Retryable() {
			return nil, err
		}
	}

	return nil, lastErr
}

// BuildDocsPrompt assembles the documentation prompt from the inventory, the
// structural analysis, and a bounded slice of the repository's README.
func (g *Generator) BuildDocsPrompt(sourceURL string, inv *Inventory, analyses []FileAnalysis, readme string) string {
	var b strings.Builder

	b.WriteString("You are a senior engineer writing onboarding documentation for a code repository.\n\n")
	fmt.Fprintf(&b, "Repository: %s\n\n", sourceURL)

	counts := inv.CountByCategory()
	fmt.Fprintf(&b, "File inventory: %d files (%d code, %d docs, %d config, %d other)",
		len(inv.Files), counts[CategoryCode], counts[CategoryDocs], counts[CategoryConfig], counts[CategoryOther])
	if inv.Truncated {
		b.WriteString(" — listing truncated, repository is larger")
	}
	b.WriteString("\n\n")

	b.WriteString("Key files and their structure:\n")
	for _, analysis := range analyses {
		fmt.Fprintf(&b, "\n%s (%s)\n", analysis.Path, analysis.Language)
		if analysis.Error != "" {
			fmt.Fprintf(&b, "  analysis failed: %s\n", analysis.Error)
			continue
		}
		for _, s := range analysis.Structures {
			fmt.Fprintf(&b, "  - %s %s", s.Kind, s.Name)
			if len(s.Params) > 0 {
				fmt.Fprintf(&b, "(%s)", strings.Join(s.Params, ", "))
			}
			fmt.Fprintf(&b, " (line %d)", s.Line)
			if s.Docstring != "" {
				fmt.Fprintf(&b, ": %s", s.Docstring)
			}
			b.WriteString("\n")
			if s.Kind == StructureClass && len(s.Methods) > 0 {
				fmt.Fprintf(&b, "    methods: %s\n", strings.Join(s.Methods, ", "))
			}
		}
		if refs := importRefs(analysis.Imports, 5); len(refs) > 0 {
			fmt.Fprintf(&b, "  imports: %s\n", strings.Join(refs, ", "))
		}
	}
	b.WriteString("\n")

	if readme != "" {
		limit := g.readmeLimit
		if limit > 0 && len(readme) > limit {
			readme = readme[:limit]
		}
		b.WriteString("Existing README excerpt:\n")
		b.WriteString(readme)
		b.WriteString("\n\n")
	}

	b.WriteString("Write comprehensive markdown documentation for this repository covering: ")
	b.WriteString("purpose and overview, architecture, key components and their responsibilities, ")
	b.WriteString("setup instructions, and usage examples. ")
	b.WriteString("Output only the markdown document, starting with a top-level heading.")

	return b.String()
}

// BuildCommentPrompt assembles the per-file prompt for the comments variant.
func (g *Generator) BuildCommentPrompt(analysis FileAnalysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a senior %s engineer. Add clear, helpful inline comments to the following file.\n", analysis.Language)
	b.WriteString("Keep every line of the original code unchanged; only insert comment lines. ")
	b.WriteString("Comment the intent of functions, classes and non-obvious logic. ")
	b.WriteString("Output only the commented source code, with no surrounding explanation.\n\n")
	fmt.Fprintf(&b, "File: %s\n\n", analysis.Path)
	b.WriteString(analysis.Content)

	return b.String()
}

// importRefs renders at most limit imports as "module" or "module.symbol".
func importRefs(imports []Import, limit int) []string {
	var refs []string
	for _, imp := range imports {
		if len(refs) == limit {
			break
		}
		if imp.Symbol != "" {
			refs = append(refs, imp.Module+"."+imp.Symbol)
		} else {
			refs = append(refs, imp.Module)
		}
	}
	return refs
}

// FindReadme returns the content of the repository README from the
// inventory, preferring a root-level README.md.
func FindReadme(inv *Inventory, readFile func(path string) ([]byte, error)) string {
	var candidates []string
	for _, f := range inv.Files {
		base := strings.ToLower(f.Path)
		if strings.HasPrefix(base, "readme") && f.Depth == 0 {
			candidates = append(candidates, f.Path)
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	sort.Slice(candidates, func(i, j int) bool {
		// README.md beats README.rst beats anything else
		rank := func(p string) int {
			switch strings.ToLower(p) {
			case "readme.md":
				return 0
			case "readme.rst":
				return 1
			default:
				return 2
			}
		}
		return rank(candidates[i]) < rank(candidates[j])
	})

	data, err := readFile(candidates[0])
	if err != nil {
		return ""
	}
	return string(data)
}

// stripCodeFence removes a wrapping markdown code fence when the model adds
// one despite instructions.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return text
	}
	if strings.TrimSpace(lines[len(lines)-1]) != "```" {
		return text
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}
