package driven

import (
	"context"
	"time"
)

// ObjectStore is durable blob storage for source archives and extracted
// assets. Keys are caller-defined and stable for the life of a run.
type ObjectStore interface {
	// Put stores bytes under a key with a content type, overwriting any
	// previous object. Safe to repeat: asset keys are deterministic.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get retrieves the bytes stored under a key
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether an object is stored under the key
	Exists(ctx context.Context, key string) (bool, error)

	// PresignGet issues a time-limited retrieval URL for a stored object
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)

	// Ping checks if the storage backend is healthy
	Ping(ctx context.Context) error
}
