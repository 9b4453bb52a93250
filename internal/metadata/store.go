package metadata

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrBucketTypeNotFound      = errors.New("bucket type not found")
	ErrBucketTypeAlreadyExists = errors.New("bucket type already exists")
	ErrInvalidBucketTypeName   = errors.New("invalid bucket type name")
	ErrKeyNotFound             = errors.New("key not found")
)

// Store defines the interface for bucket-type metadata storage
type Store interface {
	// CreateBucketType registers a new bucket type
	CreateBucketType(ctx context.Context, bt *BucketTypeMetadata) error

	// GetBucketType retrieves metadata for a bucket type
	GetBucketType(ctx context.Context, name string) (*BucketTypeMetadata, error)

	// UpdateBucketType updates an existing bucket type's metadata
	UpdateBucketType(ctx context.Context, bt *BucketTypeMetadata) error

	// DeleteBucketType removes a bucket type
	DeleteBucketType(ctx context.Context, name string) error

	// ListBucketTypes lists all registered bucket types
	ListBucketTypes(ctx context.Context) ([]*BucketTypeMetadata, error)

	// Close releases the underlying engine
	Close() error

	// IsReady reports whether the store can serve requests
	IsReady() bool
}

// RawKV provides low-level key-value access to the underlying storage engine.
// It is implemented by both BadgerStore and PebbleStore, allowing subsystems
// that walk the node's keyspace (the local enumerator in particular) to operate
// independently of which engine is in use.
type RawKV interface {
	// GetRaw retrieves a value by exact key. Returns ErrKeyNotFound if absent.
	GetRaw(ctx context.Context, key string) ([]byte, error)

	// PutRaw stores a key-value pair.
	PutRaw(ctx context.Context, key string, value []byte) error

	// DeleteRaw removes a key. Returns ErrKeyNotFound if absent.
	DeleteRaw(ctx context.Context, key string) error

	// ScanKeys returns up to limit keys sharing the given prefix in
	// lexicographic order, starting strictly after the "after" key (or at the
	// first key in the prefix if after is empty). The second return value is
	// the continuation marker to pass as "after" on the next call; it is empty
	// when the prefix is exhausted. Each scan runs in its own short-lived
	// read transaction so callers may pause between pages without pinning
	// engine resources.
	ScanKeys(ctx context.Context, prefix, after string, limit int) ([]string, string, error)
}
