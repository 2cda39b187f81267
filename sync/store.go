package sync

import (
	"context"
	"io"
	"iter"
	"time"
)

// ObjectInfo describes a listed object, or a common prefix when Dir is set.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string // normalized: no quotes, lowercase
	Dir          bool
}

// Store is a single bucket of the object store.
type Store interface {
	// List lazily yields everything under prefix. A non-empty delimiter
	// folds deeper keys into Dir entries. The sequence is single-use.
	List(ctx context.Context, prefix, delimiter string) iter.Seq2[ObjectInfo, error]
	// Get opens the object for streaming.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Put stores r as the complete object at key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Stat returns metadata for an existing object, or (nil, nil) if absent.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
}

// StoreOpener returns the Store for a bucket. Stores share one client.
type StoreOpener func(bucket string) Store
