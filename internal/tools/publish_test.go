package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/interfaces"
)

// mockGateway records uploads and optionally fails them.
type mockGateway struct {
	configured bool
	putErr     error
	puts       map[string][]byte
}

func (m *mockGateway) Configured() bool { return m.configured }

func (m *mockGateway) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if !m.configured {
		return "", interfaces.ErrStoreNotConfigured
	}
	if m.putErr != nil {
		return "", m.putErr
	}
	if m.puts == nil {
		m.puts = map[string][]byte{}
	}
	m.puts[key] = body
	return "https://bucket.s3.us-east-1.amazonaws.com/" + key, nil
}

func (m *mockGateway) Get(ctx context.Context, key string) ([]byte, error) {
	if !m.configured {
		return nil, interfaces.ErrStoreNotConfigured
	}
	body, ok := m.puts[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return body, nil
}

func (m *mockGateway) Delete(ctx context.Context, key string) error {
	if !m.configured {
		return interfaces.ErrStoreNotConfigured
	}
	return nil
}

// mockCodeHost can fail either the push or the PR creation.
type mockCodeHost struct {
	pushErr   error
	prErr     error
	published []interfaces.CommentedFile
}

func (m *mockCodeHost) PublishBranch(ctx context.Context, repoDir string, files []interfaces.CommentedFile, spec interfaces.PullRequestSpec) error {
	if m.pushErr != nil {
		return m.pushErr
	}
	m.published = files
	return nil
}

func (m *mockCodeHost) OpenPullRequest(ctx context.Context, spec interfaces.PullRequestSpec) (string, error) {
	if m.prErr != nil {
		return "", m.prErr
	}
	return "https://github.com/" + spec.Owner + "/" + spec.Repo + "/pull/1", nil
}

func newTestPublisher(t *testing.T, gateway interfaces.ArtifactGateway, host interfaces.CodeHost) (*Publisher, string) {
	t.Helper()
	config := common.NewDefaultConfig()
	config.Workspace.Root = t.TempDir()
	return NewPublisher(gateway, host, config, arbor.NewLogger()), config.Workspace.Root
}

func TestPublishDocsUploadsAndWritesLocal(t *testing.T) {
	gateway := &mockGateway{configured: true}
	pub, root := newTestPublisher(t, gateway, &mockCodeHost{})

	url, err := pub.PublishDocs(context.Background(), "job-1", "# Docs")
	require.NoError(t, err)

	assert.Equal(t, "https://bucket.s3.us-east-1.amazonaws.com/docs/job-1", url)
	assert.Equal(t, []byte("# Docs"), gateway.puts["docs/job-1"])

	local, err := os.ReadFile(filepath.Join(root, "docs", "job-1"))
	require.NoError(t, err)
	assert.Equal(t, "# Docs", string(local))
}

func TestPublishDocsUnconfiguredGatewayUsesLocalPath(t *testing.T) {
	pub, root := newTestPublisher(t, &mockGateway{configured: false}, &mockCodeHost{})

	url, err := pub.PublishDocs(context.Background(), "job-1", "# Docs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "docs", "job-1"), url)
}

func TestPublishDocsGatewayFailureIsNotFatal(t *testing.T) {
	gateway := &mockGateway{configured: true, putErr: errors.New("503")}
	pub, root := newTestPublisher(t, gateway, &mockCodeHost{})

	url, err := pub.PublishDocs(context.Background(), "job-1", "# Docs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "docs", "job-1"), url)
}

func TestPublishCommentsOpensPullRequest(t *testing.T) {
	host := &mockCodeHost{}
	pub, _ := newTestPublisher(t, &mockGateway{configured: true}, host)

	entries := []CommentedBundleEntry{{Path: "main.py", Original: "x", Commented: "# c\nx"}}
	result, err := pub.PublishComments(context.Background(), "job-1", "https://github.com/acme/widget", "/tmp/repo", "tok", true, entries)
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/acme/widget/pull/1", result.PullRequestURL)
	assert.Empty(t, result.BundleURL)
	require.Len(t, host.published, 1)
	assert.Equal(t, "# c\nx", host.published[0].Content)
}

func TestPublishCommentsPRFailureFallsBackToBundle(t *testing.T) {
	host := &mockCodeHost{prErr: errors.New("422 reference already exists")}
	gateway := &mockGateway{configured: true}
	pub, _ := newTestPublisher(t, gateway, host)

	entries := []CommentedBundleEntry{{Path: "main.py", Original: "x", Commented: "# c\nx"}}
	result, err := pub.PublishComments(context.Background(), "job-1", "https://github.com/acme/widget", "/tmp/repo", "tok", true, entries)
	require.NoError(t, err)

	assert.Empty(t, result.PullRequestURL)
	assert.Equal(t, "https://bucket.s3.us-east-1.amazonaws.com/commented/job-1", result.BundleURL)
	assert.Contains(t, string(gateway.puts["commented/job-1"]), "main.py")
}

func TestPublishCommentsNoWriteAccessGoesToBundle(t *testing.T) {
	host := &mockCodeHost{}
	gateway := &mockGateway{configured: true}
	pub, _ := newTestPublisher(t, gateway, host)

	entries := []CommentedBundleEntry{{Path: "main.py", Original: "x", Commented: "y"}}
	result, err := pub.PublishComments(context.Background(), "job-1", "https://github.com/acme/widget", "/tmp/repo", "tok", false, entries)
	require.NoError(t, err)

	assert.Empty(t, result.PullRequestURL)
	assert.NotEmpty(t, result.BundleURL)
	assert.Nil(t, host.published)
}

func TestPublishCommentsBundleFailureIsTerminal(t *testing.T) {
	gateway := &mockGateway{configured: true, putErr: errors.New("403")}
	pub, _ := newTestPublisher(t, gateway, &mockCodeHost{})

	entries := []CommentedBundleEntry{{Path: "main.py", Original: "x", Commented: "y"}}
	_, err := pub.PublishComments(context.Background(), "job-1", "https://github.com/acme/widget", "/tmp/repo", "tok", false, entries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish-failed")
}

func TestCleanupRemovesCloneKeepsDocs(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Workspace.Root = t.TempDir()

	repoDir := filepath.Join(config.Workspace.Root, "repos", "job-1")
	require.NoError(t, os.MkdirAll(repoDir, 0755))
	docsPath := filepath.Join(config.Workspace.Root, "docs", "job-1")
	require.NoError(t, os.MkdirAll(filepath.Dir(docsPath), 0755))
	require.NoError(t, os.WriteFile(docsPath, []byte("# Docs"), 0644))

	cleaner := NewCleaner(config, arbor.NewLogger())
	cleaner.Cleanup("job-1")

	_, err := os.Stat(repoDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(docsPath)
	assert.NoError(t, err)

	cleaner.RemoveDocs("job-1")
	_, err = os.Stat(docsPath)
	assert.True(t, os.IsNotExist(err))
}
