// -----------------------------------------------------------------------
// Pipeline - Fixed linear stage sequence executed by one worker per job
//
// fetch -> scan -> analyze -> generate -> publish -> cleanup
//
// Any stage error skips the remaining stages; cleanup always runs. The
// checkpoint callback fires at every stage boundary so the worker runtime
// can impose the soft deadline and observe job deletion.
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/models"
	"github.com/ternarybob/describo/internal/tools"
)

// Stage names recorded on the run state as execution advances.
const (
	StageFetch    = "fetch"
	StageScan     = "scan"
	StageAnalyze  = "analyze"
	StageGenerate = "generate"
	StagePublish  = "publish"
	StageCleanup  = "cleanup"
)

// RunState is owned by a single worker for one pipeline execution. Stages
// fill it in as they succeed.
type RunState struct {
	JobID          string
	SourceURL      string
	Credential     string
	Variant        models.Variant
	HasWriteAccess bool

	Stage     string
	Fetch     *tools.FetchResult
	Inventory *tools.Inventory
	Analyses  []tools.FileAnalysis
	Generated string
	Usage     tools.Usage

	ArtifactURL    string
	PullRequestURL string
	BundleURL      string
}

// Checkpoint runs at stage boundaries. A returned error aborts the pipeline:
// a *models.StageError becomes the job's terminal error, models.ErrJobNotFound
// means the job was deleted and the run is discarded silently.
type Checkpoint func(ctx context.Context) error

type fetcher interface {
	Fetch(ctx context.Context, jobID, sourceURL, credential string) (*tools.FetchResult, error)
}

type scanner interface {
	Scan(repoDir string) (*tools.Inventory, error)
}

type analyzer interface {
	Analyze(repoDir string, inv *tools.Inventory) ([]tools.FileAnalysis, error)
}

type generator interface {
	GenerateDocs(ctx context.Context, sourceURL string, inv *tools.Inventory, analyses []tools.FileAnalysis, readme string, usage *tools.Usage) (string, error)
	CommentFile(ctx context.Context, analysis tools.FileAnalysis, usage *tools.Usage) (string, error)
}

type publisher interface {
	PublishDocs(ctx context.Context, jobID, markdown string) (string, error)
	PublishComments(ctx context.Context, jobID, sourceURL, repoDir, credential string, hasWriteAccess bool, entries []tools.CommentedBundleEntry) (*tools.PublishResult, error)
}

type cleaner interface {
	Cleanup(jobID string)
}

// Pipeline wires the stage tools into the fixed sequence.
type Pipeline struct {
	fetcher   fetcher
	scanner   scanner
	analyzer  analyzer
	generator generator
	publisher publisher
	cleaner   cleaner
	logger    arbor.ILogger
}

// New assembles a pipeline from the stage tools
func New(f *tools.Fetcher, s *tools.Scanner, a *tools.Analyzer, g *tools.Generator, p *tools.Publisher, c *tools.Cleaner, logger arbor.ILogger) *Pipeline {
	return &Pipeline{
		fetcher:   f,
		scanner:   s,
		analyzer:  a,
		generator: g,
		publisher: p,
		cleaner:   c,
		logger:    logger,
	}
}

// Run executes the stages in order against the run state. It returns nil on
// success with the published URLs set on the state, or the terminal error.
// Cleanup runs on every exit path.
func (p *Pipeline) Run(ctx context.Context, state *RunState, checkpoint Checkpoint) error {
	defer func() {
		state.Stage = StageCleanup
		p.cleaner.Cleanup(state.JobID)
	}()

	// S1 Fetch
	state.Stage = StageFetch
	fetch, err := p.fetcher.Fetch(ctx, state.JobID, state.SourceURL, state.Credential)
	if err != nil {
		return err
	}
	state.Fetch = fetch

	if err := checkpoint(ctx); err != nil {
		return err
	}

	// S2 Scan
	state.Stage = StageScan
	inv, err := p.scanner.Scan(fetch.Dir)
	if err != nil {
		return err
	}
	state.Inventory = inv

	if err := checkpoint(ctx); err != nil {
		return err
	}

	// S3 Analyze
	state.Stage = StageAnalyze
	analyses, err := p.analyzer.Analyze(fetch.Dir, inv)
	if err != nil {
		return err
	}
	state.Analyses = analyses

	if err := checkpoint(ctx); err != nil {
		return err
	}

	// S4 Generate
	state.Stage = StageGenerate
	readme := tools.FindReadme(inv, func(path string) ([]byte, error) {
		return os.ReadFile(filepath.Join(fetch.Dir, filepath.FromSlash(path)))
	})
	generated, err := p.generator.GenerateDocs(ctx, state.SourceURL, inv, analyses, readme, &state.Usage)
	if err != nil {
		return err
	}
	state.Generated = generated

	if err := checkpoint(ctx); err != nil {
		return err
	}

	// S5 Publish
	state.Stage = StagePublish
	artifactURL, err := p.publisher.PublishDocs(ctx, state.JobID, generated)
	if err != nil {
		return err
	}
	state.ArtifactURL = artifactURL

	if state.Variant == models.VariantDocsComments {
		if err := p.publishComments(ctx, state); err != nil {
			return err
		}
	}

	p.logger.Info().
		Str("job_id", state.JobID).
		Str("artifact_url", state.ArtifactURL).
		Str("pull_request_url", state.PullRequestURL).
		Int("model_calls", state.Usage.Calls).
		Int("input_tokens", state.Usage.InputTokens).
		Int("output_tokens", state.Usage.OutputTokens).
		Msg("Pipeline completed")

	return nil
}

// publishComments produces the per-file commented sources and delivers them
// as a pull request or a bundle.
func (p *Pipeline) publishComments(ctx context.Context, state *RunState) error {
	entries := make([]tools.CommentedBundleEntry, 0, len(state.Analyses))
	for _, analysis := range state.Analyses {
		if ctx.Err() != nil {
			return models.WrapStageError(models.ErrDeadlineExceeded, "", ctx.Err())
		}
		if analysis.Error != "" {
			continue
		}

		commented, err := p.generator.CommentFile(ctx, analysis, &state.Usage)
		if err != nil {
			// One uncommentable file does not sink the variant
			var stageErr *models.StageError
			if errors.As(err, &stageErr) && stageErr.Retryable() {
				return err
			}
			p.logger.Warn().Err(err).Str("path", analysis.Path).Msg("Skipping file that could not be commented")
			continue
		}
		entries = append(entries, tools.CommentedBundleEntry{
			Path:      analysis.Path,
			Original:  analysis.Content,
			Commented: commented,
		})
	}

	result, err := p.publisher.PublishComments(ctx, state.JobID, state.SourceURL, state.Fetch.Dir, state.Credential, state.HasWriteAccess, entries)
	if err != nil {
		return err
	}

	state.PullRequestURL = result.PullRequestURL
	state.BundleURL = result.BundleURL
	return nil
}
