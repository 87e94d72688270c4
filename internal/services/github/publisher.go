package github

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gogithub "github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"

	"github.com/ternarybob/describo/internal/interfaces"
)

// Commit identity used for all pushed branches
const (
	commitAuthorName  = "describo"
	commitAuthorEmail = "describo[bot]@users.noreply.github.com"
)

// Publisher implements the CodeHost interface against GitHub: it commits
// commented files to a branch in the local clone, pushes the branch, and
// opens a pull request through the REST API.
type Publisher struct {
	logger arbor.ILogger
}

// NewPublisher creates a GitHub publisher
func NewPublisher(logger arbor.ILogger) interfaces.CodeHost {
	return &Publisher{logger: logger}
}

// PublishBranch writes the commented files into the clone at repoDir,
// commits them on a fresh branch, and pushes the branch to origin.
func (p *Publisher) PublishBranch(ctx context.Context, repoDir string, files []interfaces.CommentedFile, spec interfaces.PullRequestSpec) error {
	if len(files) == 0 {
		return fmt.Errorf("no files to publish")
	}

	repo, err := git.PlainOpen(repoDir)
	if err != nil {
		return fmt.Errorf("failed to open repository at %s: %w", repoDir, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(spec.Branch)
	if err := worktree.Checkout(&git.CheckoutOptions{
		Branch: branchRef,
		Create: true,
	}); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", spec.Branch, err)
	}

	for _, file := range files {
		target := filepath.Join(repoDir, filepath.FromSlash(file.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", file.Path, err)
		}
		if err := os.WriteFile(target, []byte(file.Content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
		if _, err := worktree.Add(file.Path); err != nil {
			return fmt.Errorf("failed to stage %s: %w", file.Path, err)
		}
	}

	commit, err := worktree.Commit(spec.Title, &git.CommitOptions{
		Author: &object.Signature{
			Name:  commitAuthorName,
			Email: commitAuthorEmail,
			When:  time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	refSpec := config.RefSpec(fmt.Sprintf("%s:%s", branchRef, branchRef))
	if err := repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{refSpec},
		Auth: &githttp.BasicAuth{
			Username: "x-access-token",
			Password: spec.Credential,
		},
	}); err != nil {
		return fmt.Errorf("failed to push branch %s: %w", spec.Branch, err)
	}

	p.logger.Info().
		Str("branch", spec.Branch).
		Str("commit", commit.String()).
		Int("files", len(files)).
		Msg("Pushed commented branch")

	return nil
}

// OpenPullRequest creates the pull request and returns its HTML URL.
func (p *Publisher) OpenPullRequest(ctx context.Context, spec interfaces.PullRequestSpec) (string, error) {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: spec.Credential},
	)
	tc := oauth2.NewClient(ctx, ts)
	client := gogithub.NewClient(tc)

	base := spec.BaseBranch
	if base == "" {
		base = "main"
	}

	pr, _, err := client.PullRequests.Create(ctx, spec.Owner, spec.Repo, &gogithub.NewPullRequest{
		Title: gogithub.String(spec.Title),
		Head:  gogithub.String(spec.Branch),
		Base:  gogithub.String(base),
		Body:  gogithub.String(spec.Body),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create pull request: %w", err)
	}

	p.logger.Info().
		Str("owner", spec.Owner).
		Str("repo", spec.Repo).
		Str("url", pr.GetHTMLURL()).
		Msg("Pull request opened")

	return pr.GetHTMLURL(), nil
}
