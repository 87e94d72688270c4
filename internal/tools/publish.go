// -----------------------------------------------------------------------
// Publish - Artifact delivery: local copy, gateway upload, PR or bundle
// -----------------------------------------------------------------------

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/interfaces"
	"github.com/ternarybob/describo/internal/models"
)

// CommentedBundleEntry is one file in the published comments bundle.
type CommentedBundleEntry struct {
	Path      string `json:"path"`
	Original  string `json:"original"`
	Commented string `json:"commented"`
}

// PublishResult records where the artifacts ended up.
type PublishResult struct {
	ArtifactURL    string // Gateway URL, or local path when the gateway stood down
	PullRequestURL string // Set only for the comments variant PR path
	BundleURL      string // Set only for the comments variant bundle path
}

// Publisher delivers finished artifacts. The docs artifact always gets a
// local durable copy; gateway upload is best-effort for the docs variant.
type Publisher struct {
	gateway       interfaces.ArtifactGateway
	codeHost      interfaces.CodeHost
	logger        arbor.ILogger
	workspaceRoot string
}

// NewPublisher creates a publisher over the gateway and code host
func NewPublisher(gateway interfaces.ArtifactGateway, codeHost interfaces.CodeHost, config *common.Config, logger arbor.ILogger) *Publisher {
	return &Publisher{
		gateway:       gateway,
		codeHost:      codeHost,
		logger:        logger,
		workspaceRoot: config.Workspace.Root,
	}
}

// DocsPath returns the local durable location of a job's documentation.
func (p *Publisher) DocsPath(jobID string) string {
	return filepath.Join(p.workspaceRoot, "docs", jobID)
}

// PublishDocs writes the markdown locally and uploads it through the
// gateway. A gateway failure is not fatal: the local path stands in.
func (p *Publisher) PublishDocs(ctx context.Context, jobID, markdown string) (string, error) {
	localPath := p.DocsPath(jobID)
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return "", models.WrapStageError(models.ErrPublishFailed, "failed to create docs directory", err)
	}
	if err := os.WriteFile(localPath, []byte(markdown), 0644); err != nil {
		return "", models.WrapStageError(models.ErrPublishFailed, "failed to write local artifact", err)
	}

	key := fmt.Sprintf("docs/%s", jobID)
	url, err := p.gateway.Put(ctx, key, []byte(markdown), "text/markdown")
	if err != nil {
		if !errors.Is(err, interfaces.ErrStoreNotConfigured) {
			p.logger.Warn().Err(err).Str("key", key).Msg("Gateway upload failed; local artifact stands in")
		}
		return localPath, nil
	}

	p.logger.Info().
		Str("job_id", jobID).
		Str("url", url).
		Msg("Documentation artifact published")

	return url, nil
}

// PublishComments delivers the commented files: a pull request when the
// caller has confirmed write access, otherwise a JSON bundle through the
// gateway. A failed PR falls back to the bundle; a failed bundle is
// terminal.
func (p *Publisher) PublishComments(ctx context.Context, jobID, sourceURL, repoDir, credential string, hasWriteAccess bool, entries []CommentedBundleEntry) (*PublishResult, error) {
	if len(entries) == 0 {
		return nil, models.NewStageError(models.ErrPublishFailed, "no commented files produced")
	}

	if hasWriteAccess && credential != "" {
		prURL, err := p.openPullRequest(ctx, sourceURL, repoDir, credential, entries)
		if err == nil {
			return &PublishResult{PullRequestURL: prURL}, nil
		}
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Pull request failed; falling back to bundle")
	}

	bundleURL, err := p.publishBundle(ctx, jobID, entries)
	if err != nil {
		return nil, err
	}
	return &PublishResult{BundleURL: bundleURL}, nil
}

func (p *Publisher) openPullRequest(ctx context.Context, sourceURL, repoDir, credential string, entries []CommentedBundleEntry) (string, error) {
	owner, repo, err := common.SplitOwnerRepo(sourceURL)
	if err != nil {
		return "", err
	}

	files := make([]interfaces.CommentedFile, len(entries))
	for i, entry := range entries {
		files[i] = interfaces.CommentedFile{Path: entry.Path, Content: entry.Commented}
	}

	spec := interfaces.PullRequestSpec{
		Owner:      owner,
		Repo:       repo,
		Branch:     fmt.Sprintf("ai-comments-%s", time.Now().UTC().Format("20060102-150405")),
		Title:      "Add AI-generated code comments",
		Body:       fmt.Sprintf("Adds explanatory inline comments to %d files.", len(files)),
		Credential: credential,
	}

	if err := p.codeHost.PublishBranch(ctx, repoDir, files, spec); err != nil {
		return "", err
	}
	return p.codeHost.OpenPullRequest(ctx, spec)
}

func (p *Publisher) publishBundle(ctx context.Context, jobID string, entries []CommentedBundleEntry) (string, error) {
	payload, err := json.Marshal(entries)
	if err != nil {
		return "", models.WrapStageError(models.ErrPublishFailed, "failed to encode bundle", err)
	}

	key := fmt.Sprintf("commented/%s", jobID)
	url, err := p.gateway.Put(ctx, key, payload, "application/json")
	if err != nil {
		if errors.Is(err, interfaces.ErrStoreNotConfigured) {
			// No PR and no store: keep a local copy so the work is not lost
			localPath := filepath.Join(p.workspaceRoot, "docs", jobID+".comments.json")
			if werr := os.WriteFile(localPath, payload, 0644); werr != nil {
				return "", models.WrapStageError(models.ErrPublishFailed, "no artifact store and local bundle write failed", werr)
			}
			return localPath, nil
		}
		return "", models.WrapStageError(models.ErrPublishFailed, "bundle upload failed", err)
	}

	p.logger.Info().
		Str("job_id", jobID).
		Str("url", url).
		Int("files", len(entries)).
		Msg("Comments bundle published")

	return url, nil
}
