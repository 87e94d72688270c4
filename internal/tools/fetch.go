// -----------------------------------------------------------------------
// Fetch - Shallow clone of the target repository
// -----------------------------------------------------------------------

package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/models"
)

// Fetcher clones target repositories into the workspace. Clones are shallow
// (depth 1, single branch): history is never needed for documentation.
type Fetcher struct {
	logger        arbor.ILogger
	workspaceRoot string
	timeout       time.Duration
}

// NewFetcher creates a fetcher rooted at the workspace
func NewFetcher(config *common.Config, logger arbor.ILogger) *Fetcher {
	return &Fetcher{
		logger:        logger,
		workspaceRoot: config.Workspace.Root,
		timeout:       config.FetchTimeout(),
	}
}

// RepoDir returns the clone location for a job.
func (f *Fetcher) RepoDir(jobID string) string {
	return filepath.Join(f.workspaceRoot, "repos", jobID)
}

// FetchResult carries the clone location and snapshot metadata.
type FetchResult struct {
	Dir      string
	Branch   string
	Revision string
	Author   string
	Subject  string // First line of the head commit message
}

// Fetch clones the repository for the job and returns the clone directory
// with snapshot metadata. The credential, when present, is injected using
// the x-access-token convention and never logged.
func (f *Fetcher) Fetch(ctx context.Context, jobID, sourceURL, credential string) (*FetchResult, error) {
	dir := f.RepoDir(jobID)

	// A leftover clone from a previous delivery of the same job is stale
	if _, err := os.Stat(dir); err == nil {
		if err := os.RemoveAll(dir); err != nil {
			return nil, models.WrapStageError(models.ErrIO, "failed to clear stale clone", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return nil, models.WrapStageError(models.ErrIO, "failed to create clone directory", err)
	}

	cloneURL, err := common.InjectCredential(sourceURL, credential)
	if err != nil {
		return nil, models.WrapStageError(models.ErrInvalidSource, "", err)
	}

	cloneCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	f.logger.Info().
		Str("job_id", jobID).
		Str("source", sourceURL).
		Msg("Cloning repository")

	repo, err := git.PlainCloneContext(cloneCtx, dir, false, &git.CloneOptions{
		URL:          cloneURL,
		Depth:        1,
		SingleBranch: true,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, classifyCloneError(err, cloneCtx)
	}

	result := &FetchResult{Dir: dir}
	if head, err := repo.Head(); err == nil {
		result.Branch = head.Name().Short()
		result.Revision = head.Hash().String()
		if commit, err := repo.CommitObject(head.Hash()); err == nil {
			result.Author = commit.Author.Name
			result.Subject = strings.SplitN(commit.Message, "\n", 2)[0]
		}
	}

	f.logger.Info().
		Str("job_id", jobID).
		Str("branch", result.Branch).
		Str("revision", result.Revision).
		Dur("duration", time.Since(start)).
		Msg("Repository cloned")

	return result, nil
}

// classifyCloneError maps go-git failures onto the stage error taxonomy.
func classifyCloneError(err error, ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.WrapStageError(models.ErrFetchTimeout, "", err)
	}

	switch {
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return models.WrapStageError(models.ErrRepoNotFound, "", err)
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed):
		return models.WrapStageError(models.ErrAuthDenied, "", err)
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		return models.WrapStageError(models.ErrNoAnalyzableFiles, "repository is empty", err)
	}

	// Some servers answer 404 with a plain error string
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not found") {
		return models.WrapStageError(models.ErrRepoNotFound, "", err)
	}
	if strings.Contains(msg, "authentication") || strings.Contains(msg, "authorization") || strings.Contains(msg, "403") {
		return models.WrapStageError(models.ErrAuthDenied, "", err)
	}

	return models.WrapStageError(models.ErrNetwork, "", err)
}
