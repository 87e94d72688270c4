package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/interfaces"
)

func TestUnconfiguredStoreDegrades(t *testing.T) {
	store, err := NewS3Store(&common.ArtifactStoreConfig{}, arbor.NewLogger())
	require.NoError(t, err)

	assert.False(t, store.Configured())

	_, err = store.Put(context.Background(), "docs/job-1.md", []byte("# Title"), "text/markdown")
	assert.ErrorIs(t, err, interfaces.ErrStoreNotConfigured)

	_, err = store.Get(context.Background(), "docs/job-1.md")
	assert.ErrorIs(t, err, interfaces.ErrStoreNotConfigured)

	err = store.Delete(context.Background(), "docs/job-1.md")
	assert.ErrorIs(t, err, interfaces.ErrStoreNotConfigured)
}

func TestObjectURL(t *testing.T) {
	s := &S3Store{config: &common.ArtifactStoreConfig{
		Bucket: "my-bucket",
		Region: "us-east-1",
	}}
	assert.Equal(t,
		"https://my-bucket.s3.us-east-1.amazonaws.com/docs/job-1.md",
		s.ObjectURL("docs/job-1.md"))

	s = &S3Store{config: &common.ArtifactStoreConfig{
		Bucket:   "my-bucket",
		Region:   "us-east-1",
		Endpoint: "https://minio.internal:9000/",
	}}
	assert.Equal(t,
		"https://minio.internal:9000/my-bucket/docs/job-1.md",
		s.ObjectURL("docs/job-1.md"))
}
