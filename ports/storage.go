package ports

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Storage.Get when the key holds no value
var ErrNotFound = errors.New("storage: key not found")

// Storage is the durable key-value store holding the session credential and
// the cached user snapshot. Multi-key writes and deletes are atomic: no
// reader may observe one key of a batch changed without the others.
type Storage interface {
	// Get retrieves a value by key, or ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set stores a single key
	Set(ctx context.Context, key, value string) error

	// SetMany stores all entries as one atomic write
	SetMany(ctx context.Context, values map[string]string) error

	// Delete removes the given keys as one atomic operation.
	// Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}
