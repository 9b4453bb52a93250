package buckettype

import (
	"context"
	"errors"
	"fmt"

	"github.com/driftkv/driftkv/internal/metadata"
)

// DefaultType is the reserved bucket type. It exists implicitly: requests
// naming it (or naming no type at all) never consult the metadata store.
const DefaultType = "default"

// ErrUnknownBucketType is returned when a request names a bucket type that is
// not registered (or not active). Callers must reject the request before any
// enumeration is started.
var ErrUnknownBucketType = errors.New("no such bucket type")

// BucketRef addresses a bucket, optionally qualified by a bucket type.
// A zero Type is the backward-compatible untyped form and addresses the
// default namespace.
type BucketRef struct {
	Type   string `json:"type,omitempty"`
	Bucket string `json:"bucket"`
}

// IsTyped reports whether the reference carries an explicit bucket type.
func (r BucketRef) IsTyped() bool {
	return r.Type != ""
}

func (r BucketRef) String() string {
	if r.Type == "" {
		return r.Bucket
	}
	return r.Type + "/" + r.Bucket
}

// Combine builds the bucket reference for a (type, bucket) pair. The default
// or absent type yields the bare form; anything else the pair form. This is
// the only place request addressing logic lives: every transport must route
// through it so both front-ends address data identically.
func Combine(typ, bucket string) BucketRef {
	if typ == "" || typ == DefaultType {
		return BucketRef{Bucket: bucket}
	}
	return BucketRef{Type: typ, Bucket: bucket}
}

// Resolver validates caller-supplied bucket type identifiers against the
// metadata store. It is read-only and safe for concurrent use.
type Resolver struct {
	store metadata.Store
}

// NewResolver creates a resolver backed by the given metadata store.
func NewResolver(store metadata.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve normalizes and validates a bucket type identifier. An empty
// identifier and the literal "default" short-circuit without a store lookup.
// Any other identifier must be registered and active.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	if name == "" || name == DefaultType {
		return DefaultType, nil
	}

	bt, err := r.store.GetBucketType(ctx, name)
	if err != nil {
		if errors.Is(err, metadata.ErrBucketTypeNotFound) {
			return "", fmt.Errorf("%w: %s", ErrUnknownBucketType, name)
		}
		return "", fmt.Errorf("failed to resolve bucket type %q: %w", name, err)
	}

	if !bt.Active {
		return "", fmt.Errorf("%w: %s (not active)", ErrUnknownBucketType, name)
	}

	return bt.Name, nil
}
