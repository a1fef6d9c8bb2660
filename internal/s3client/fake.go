package s3client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// NewFake returns a Store backed by an in-memory gofakes3 server with bucket
// already created. Public URLs point at the fake's path-style endpoint, so
// uploaded artifacts can be fetched over HTTP. The server stops when t ends.
func NewFake(t testing.TB, bucket string) *Store {
	t.Helper()

	ts := httptest.NewServer(gofakes3.New(s3mem.New()).Server())
	t.Cleanup(ts.Close)

	store, err := New(context.Background(), Config{
		Endpoint:        ts.URL,
		Region:          "us-east-1",
		AccessKeyID:     "fake-key",
		SecretAccessKey: "fake-secret",
		Bucket:          bucket,
		PublicURL:       ts.URL + "/" + bucket,
	})
	if err != nil {
		t.Fatalf("s3client: fake store: %v", err)
	}
	if _, err := store.api.CreateBucket(context.Background(), &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("s3client: create fake bucket: %v", err)
	}
	return store
}
