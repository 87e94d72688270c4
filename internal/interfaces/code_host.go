// -----------------------------------------------------------------------
// Code Host - Pushing branches and opening pull requests
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
)

// CommentedFile pairs a repository-relative path with its rewritten content.
type CommentedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// PullRequestSpec describes a proposed change set.
type PullRequestSpec struct {
	Owner      string
	Repo       string
	BaseBranch string
	Branch     string
	Title      string
	Body       string
	Credential string
}

// CodeHost publishes commented files back to the hosting provider: commit the
// files to a new branch in the local clone, push it, and open a pull request.
type CodeHost interface {
	// PublishBranch commits files onto a new branch in the clone at repoDir
	// and pushes it to origin using the credential in spec.
	PublishBranch(ctx context.Context, repoDir string, files []CommentedFile, spec PullRequestSpec) error

	// OpenPullRequest creates the pull request and returns its URL.
	OpenPullRequest(ctx context.Context, spec PullRequestSpec) (string, error)
}
