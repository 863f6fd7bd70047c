package storage

import (
	"context"
	"io"
	"time"
)

// BlobStore is the object storage surface used for delivery files.
type BlobStore interface {
	Upload(ctx context.Context, path, contentType string, body io.Reader) error
	SignedURL(ctx context.Context, path string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, paths ...string) error
}
