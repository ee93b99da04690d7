// Package storage defines the blob store interface crawl artifacts are
// written through. The abstraction keeps the capture pipeline independent of
// the destination (local filesystem, Google Cloud Storage, or memory).
package storage

import (
	"context"
	"io"
)

// Provider is the common interface for a blob store. PutObject persists data
// under the given object path and returns the resulting URI (file://, gs://,
// or memory:// depending on the backend).
type Provider interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// NoOpProvider discards all writes. It is useful for dry runs where pages are
// crawled and classified but no artifacts are kept.
type NoOpProvider struct{}

// PutObject for NoOpProvider drops the data and returns an empty URI.
func (n *NoOpProvider) PutObject(_ context.Context, _ string, _ string, _ io.Reader) (string, error) {
	return "", nil
}
