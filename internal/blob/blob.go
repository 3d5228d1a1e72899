// Package blob abstracts artifact storage for export snapshots, with
// filesystem and S3-compatible implementations.
package blob

import "context"

// Store reads and writes opaque artifacts. Implementations must be safe for
// concurrent use.
type Store interface {
	// Upload writes data under container/key, overwriting any previous
	// object.
	Upload(ctx context.Context, container, key string, data []byte, contentType string) error

	// Download returns the object's bytes.
	Download(ctx context.Context, container, key string) ([]byte, error)
}
