package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/interfaces"
	"github.com/ternarybob/describo/internal/models"
)

// mockLLM returns queued responses or errors, recording each prompt.
type mockLLM struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (m *mockLLM) Complete(ctx context.Context, prompt string) (*interfaces.Completion, error) {
	idx := m.calls
	m.calls++
	m.prompts = append(m.prompts, prompt)

	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	text := "generated output"
	if idx < len(m.responses) {
		text = m.responses[idx]
	}
	return &interfaces.Completion{Text: text, InputTokens: 100, OutputTokens: 50}, nil
}

func (m *mockLLM) HealthCheck(ctx context.Context) error { return nil }
func (m *mockLLM) Close() error                          { return nil }

func testGeneratorConfig() *common.Config {
	config := common.NewDefaultConfig()
	config.Model.MaxRetries = 2
	config.Generator.ReadmeLimit = 3000
	return config
}

func TestGenerateDocsSuccess(t *testing.T) {
	llm := &mockLLM{responses: []string{"# My Project\n\nDocs."}}
	gen := NewGenerator(llm, testGeneratorConfig(), arbor.NewLogger())

	inv := &Inventory{Files: []FileEntry{
		{Path: "main.py", Size: 10, Category: CategoryCode},
	}}
	analyses := []FileAnalysis{{Path: "main.py", Language: "Python",
		Structures: []Structure{
			{Kind: StructureFunction, Name: "main", Line: 1, Params: []string{"argv"}, Docstring: "Entry point."},
			{Kind: StructureClass, Name: "App", Line: 5, Methods: []string{"run", "stop"}},
		},
		Imports: []Import{{Module: "os"}, {Module: "flask", Symbol: "Flask"}},
	}}

	usage := &Usage{}
	docs, err := gen.GenerateDocs(context.Background(), "https://github.com/acme/widget", inv, analyses, "# Readme", usage)
	require.NoError(t, err)

	assert.Equal(t, "# My Project\n\nDocs.", docs)
	assert.Equal(t, 1, usage.Calls)
	assert.Equal(t, 100, usage.InputTokens)
	assert.Equal(t, 50, usage.OutputTokens)

	prompt := llm.prompts[0]
	assert.Contains(t, prompt, "https://github.com/acme/widget")
	assert.Contains(t, prompt, "main.py")
	assert.Contains(t, prompt, "function main(argv)")
	assert.Contains(t, prompt, "Entry point.")
	assert.Contains(t, prompt, "methods: run, stop")
	assert.Contains(t, prompt, "imports: os, flask.Flask")
	assert.Contains(t, prompt, "# Readme")
}

func TestDocsPromptMarksFailedAnalyses(t *testing.T) {
	gen := NewGenerator(&mockLLM{}, testGeneratorConfig(), arbor.NewLogger())

	prompt := gen.BuildDocsPrompt("https://github.com/acme/widget", &Inventory{}, []FileAnalysis{
		{Path: "broken.py", Language: "Python", Error: "permission denied"},
	}, "")

	assert.Contains(t, prompt, "broken.py")
	assert.Contains(t, prompt, "analysis failed: permission denied")
}

func TestGenerateRetriesTransientErrors(t *testing.T) {
	llm := &mockLLM{
		errs:      []error{models.NewStageError(models.ErrModelUnavailable, ""), nil},
		responses: []string{"", "# Docs"},
	}
	gen := NewGenerator(llm, testGeneratorConfig(), arbor.NewLogger())

	docs, err := gen.GenerateDocs(context.Background(), "https://github.com/acme/widget", &Inventory{}, nil, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "# Docs", docs)
	assert.Equal(t, 2, llm.calls)
}

func TestGenerateDoesNotRetryRejection(t *testing.T) {
	llm := &mockLLM{
		errs: []error{models.NewStageError(models.ErrModelRejected, "bad request")},
	}
	gen := NewGenerator(llm, testGeneratorConfig(), arbor.NewLogger())

	_, err := gen.GenerateDocs(context.Background(), "https://github.com/acme/widget", &Inventory{}, nil, "", nil)
	require.Error(t, err)
	assert.Equal(t, 1, llm.calls)

	var stageErr *models.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, models.ErrModelRejected, stageErr.Kind)
}

func TestGenerateExhaustsRetryBudget(t *testing.T) {
	transient := models.NewStageError(models.ErrModelRateLimited, "")
	llm := &mockLLM{errs: []error{transient, transient, transient}}
	gen := NewGenerator(llm, testGeneratorConfig(), arbor.NewLogger())

	_, err := gen.GenerateDocs(context.Background(), "https://github.com/acme/widget", &Inventory{}, nil, "", nil)
	require.Error(t, err)
	assert.Equal(t, 3, llm.calls) // Initial attempt + 2 retries
}

func TestReadmeTruncatedInPrompt(t *testing.T) {
	config := testGeneratorConfig()
	config.Generator.ReadmeLimit = 10
	llm := &mockLLM{}
	gen := NewGenerator(llm, config, arbor.NewLogger())

	longReadme := strings.Repeat("x", 100)
	_, err := gen.GenerateDocs(context.Background(), "https://github.com/acme/widget", &Inventory{}, nil, longReadme, nil)
	require.NoError(t, err)

	assert.Contains(t, llm.prompts[0], strings.Repeat("x", 10))
	assert.NotContains(t, llm.prompts[0], strings.Repeat("x", 11))
}

func TestCommentFileStripsFence(t *testing.T) {
	llm := &mockLLM{responses: []string{"```python\n# commented\ndef main():\n    pass\n```"}}
	gen := NewGenerator(llm, testGeneratorConfig(), arbor.NewLogger())

	out, err := gen.CommentFile(context.Background(), FileAnalysis{
		Path:     "main.py",
		Language: "Python",
		Content:  "def main():\n    pass\n",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "# commented\ndef main():\n    pass", out)
}

func TestFindReadme(t *testing.T) {
	inv := &Inventory{Files: []FileEntry{
		{Path: "readme.rst", Depth: 0, Category: CategoryDocs},
		{Path: "README.md", Depth: 0, Category: CategoryDocs},
		{Path: "docs/README.md", Depth: 1, Category: CategoryDocs},
	}}

	content := FindReadme(inv, func(path string) ([]byte, error) {
		return []byte("content of " + path), nil
	})
	assert.Equal(t, "content of README.md", content)

	assert.Empty(t, FindReadme(&Inventory{}, func(string) ([]byte, error) { return nil, nil }))
}
