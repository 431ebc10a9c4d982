// Package blob abstracts durable byte storage for file content, addressed by
// opaque keys. Two backends: local disk for single-node runs and an
// S3-compatible object store for everything else.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no blob exists for a key.
var ErrNotFound = errors.New("blob not found")

// Store is the byte-storage contract shared by both binaries.
type Store interface {
	// Put writes the full content of r under key. size may be -1 when
	// unknown; contentType is advisory.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Open returns a reader for the blob at key, or ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the blob at key. Deleting a missing blob is not an
	// error; the sweeper relies on that.
	Delete(ctx context.Context, key string) error

	// Backend names the storage backend for file metadata rows.
	Backend() string
}
