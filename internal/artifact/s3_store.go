// -----------------------------------------------------------------------
// S3 Store - Artifact gateway backed by an S3-compatible bucket
// -----------------------------------------------------------------------

package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/interfaces"
)

// S3Store implements the ArtifactGateway interface over an S3-compatible
// bucket. With no bucket configured the store is a no-op: Configured()
// reports false and every operation returns ErrStoreNotConfigured, which
// callers treat as graceful degradation.
type S3Store struct {
	s3           *s3.S3
	uploader     *s3manager.Uploader
	config       *common.ArtifactStoreConfig
	logger       arbor.ILogger
	cacheControl string
}

// NewS3Store creates the artifact gateway. An empty bucket name yields an
// unconfigured store rather than an error.
func NewS3Store(config *common.ArtifactStoreConfig, logger arbor.ILogger) (interfaces.ArtifactGateway, error) {
	if config.Bucket == "" {
		logger.Info().Msg("Artifact store not configured; publishing degrades to local output")
		return &S3Store{config: config, logger: logger}, nil
	}

	cfg := &aws.Config{}
	if config.Region != "" {
		cfg = cfg.WithRegion(config.Region)
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(config.AccessKeyID, config.SecretAccessKey, ""))
	}
	if config.Endpoint != "" {
		cfg = cfg.WithEndpoint(config.Endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating AWS session: %w", err)
	}

	cacheControl := config.CacheControl
	if cacheControl == "" {
		cacheControl = "max-age=3600"
	}

	logger.Info().
		Str("bucket", config.Bucket).
		Str("region", config.Region).
		Msg("Artifact store configured")

	return &S3Store{
		s3:           s3.New(sess),
		uploader:     s3manager.NewUploader(sess),
		config:       config,
		logger:       logger,
		cacheControl: cacheControl,
	}, nil
}

// Configured reports whether uploads will reach a real bucket.
func (s *S3Store) Configured() bool {
	return s.uploader != nil
}

// Put uploads body under key and returns the public object URL.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if !s.Configured() {
		return "", interfaces.ErrStoreNotConfigured
	}

	input := &s3manager.UploadInput{
		Body:         bytes.NewReader(body),
		Bucket:       aws.String(s.config.Bucket),
		Key:          aws.String(key),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(s.cacheControl),
	}
	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return "", fmt.Errorf("error putting artifact %s: %w", key, err)
	}

	url := s.ObjectURL(key)
	s.logger.Info().
		Str("bucket", s.config.Bucket).
		Str("key", key).
		Int("bytes", len(body)).
		Msg("Uploaded artifact")

	return url, nil
}

// Get downloads the object under key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	if !s.Configured() {
		return nil, interfaces.ErrStoreNotConfigured
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	}
	output, err := s.s3.GetObjectWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("error getting artifact %s: %w", key, err)
	}
	defer output.Body.Close()

	body, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading artifact %s: %w", key, err)
	}
	return body, nil
}

// Delete removes the object under key. Missing keys are not an error.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if !s.Configured() {
		return interfaces.ErrStoreNotConfigured
	}

	input := &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	}
	if _, err := s.s3.DeleteObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf("error deleting artifact %s: %w", key, err)
	}
	return nil
}

// ObjectURL builds the public URL for an uploaded key. A custom endpoint
// (S3-compatible stores) uses path-style addressing.
func (s *S3Store) ObjectURL(key string) string {
	if s.config.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(s.config.Endpoint, "/"), s.config.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.config.Bucket, s.config.Region, key)
}
