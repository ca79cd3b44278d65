// Package objstore defines the durable blob storage contract used by the
// table-hosting service, along with its concrete backends.
//
// A Store holds opaque byte blobs under string keys and reports per-key
// change metadata. The metadata's Version field is an opaque token: callers
// compare it for equality to detect changes and must not interpret it
// otherwise. Backends: in-memory (tests and development), local directory,
// Badger, and Google Cloud Storage.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable indicates a backend I/O failure (network, throttling,
// filesystem). It is propagated as-is; retry policy belongs to the caller or
// the backend SDK, never to this package.
var ErrUnavailable = errors.New("storage unavailable")

// Metadata describes the current stored state of a single key.
type Metadata struct {
	// Version is an opaque change token. It changes on every successful
	// Put and is only ever compared for equality.
	Version     string
	ModTime     time.Time
	Size        int64
	ContentType string
}

// Store is the blob storage contract. All methods are safe for concurrent
// use. Absent keys are reported through the ok return value, not as errors;
// only backend failures produce a non-nil error, wrapping ErrUnavailable.
//
// A successful Put must be observed atomically by subsequent Get and Meta
// calls: readers see either the previous blob or the new one, never a
// partial write, and the version token must differ after the write.
type Store interface {
	// Exists reports whether a blob is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
	// Meta returns the change metadata for key. ok is false if the key
	// is absent.
	Meta(ctx context.Context, key string) (Metadata, bool, error)
	// Get returns the blob and its metadata. ok is false if the key is
	// absent.
	Get(ctx context.Context, key string) ([]byte, Metadata, bool, error)
	// Put stores data under key, overwriting unconditionally, and returns
	// the metadata of the just-written blob.
	Put(ctx context.Context, key string, data []byte, contentType string) (Metadata, error)
	// Delete removes the blob under key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
	// List enumerates stored keys, filtered by prefix and suffix (either
	// may be empty). Order is unspecified unless a backend documents one.
	List(ctx context.Context, prefix, suffix string) ([]string, error)
	// Close releases backend resources.
	Close() error
}

// DeleteAll removes every blob whose key matches the prefix and suffix
// filters. It is built from List plus per-key Delete and is meant for bulk
// cleanup only; single-table code paths delete keys directly.
func DeleteAll(ctx context.Context, s Store, prefix, suffix string) error {
	keys, err := s.List(ctx, prefix, suffix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %q: %w", key, err)
		}
	}
	return nil
}
