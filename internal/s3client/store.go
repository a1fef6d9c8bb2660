// Package s3client publishes run artifacts (reports and failure screenshots)
// to an S3-compatible bucket under a per-run key prefix, so a failure email can
// link to them.
package s3client

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config locates the artifact bucket.
type Config struct {
	// Endpoint of an S3-compatible service. Empty means AWS S3. A custom
	// endpoint is addressed path-style.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// PublicURL is where the bucket's objects are served from, e.g.
	// "https://artifacts.example.com/linkcheck".
	PublicURL string
}

// Store writes run artifacts to one bucket.
type Store struct {
	api       *s3.Client
	bucket    string
	publicURL string
}

// New connects a Store. Credentials fall back to the default AWS chain when
// no static keys are given.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" || cfg.PublicURL == "" {
		return nil, fmt.Errorf("s3client: bucket and public URL are required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3client: load AWS config: %w", err)
	}

	api := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newStore(api, cfg.Bucket, cfg.PublicURL), nil
}

func newStore(api *s3.Client, bucket, publicURL string) *Store {
	return &Store{api: api, bucket: bucket, publicURL: strings.TrimSuffix(publicURL, "/")}
}

// artifact is one object of a run.
type artifact struct {
	name         string
	contentType  string
	cacheControl string
	body         []byte
}

const (
	// Screenshots never change once written; reports are rewritten on retries.
	cacheImmutable = "public, max-age=31536000, immutable"
	cacheReport    = "no-cache"
)

// put writes a under the run's prefix and returns its public URL. Objects are
// public-read because the links are opened from email.
func (s *Store) put(ctx context.Context, runID string, a artifact) (string, error) {
	key := RunPrefix(runID) + a.name
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(a.body),
		ContentType:  aws.String(a.contentType),
		CacheControl: aws.String(a.cacheControl),
		ACL:          types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("s3client: upload %s: %w", key, err)
	}
	return s.URL(key), nil
}

// URL returns the public URL of key.
func (s *Store) URL(key string) string {
	return s.publicURL + "/" + strings.TrimPrefix(key, "/")
}
