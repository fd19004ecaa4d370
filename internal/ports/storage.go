// Package ports declares the interfaces the pipeline depends on. Adapters
// under internal/adapters and internal/repositories implement them.
package ports

import (
	"context"
	"io"
	"time"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// ObjectKey is the ref to use for later reads. localfs echoes the input
	// key; gdrive returns the Drive file ID.
	ObjectKey string
	Size      int64
}

type SignedURLOutput struct {
	URL       string
	ExpiresAt time.Time
}

// StorageProvider is the Asset Store: durable blobs addressed by opaque refs.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	// DeleteObject is idempotent: a missing object is not an error.
	DeleteObject(ctx context.Context, objectKey string) error
	Exists(ctx context.Context, objectKey string) (bool, error)

	// GetSignedURL returns a time-limited read URL for objectKey.
	GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (SignedURLOutput, error)
}
