package buckettype

import (
	"context"
	"testing"
	"time"

	"github.com/driftkv/driftkv/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore is a minimal metadata.Store that records lookups, so tests can
// verify the default-type fast path never touches the store.
type countingStore struct {
	metadata.Store
	types   map[string]*metadata.BucketTypeMetadata
	lookups int
}

func newCountingStore(types ...*metadata.BucketTypeMetadata) *countingStore {
	m := make(map[string]*metadata.BucketTypeMetadata)
	for _, bt := range types {
		m[bt.Name] = bt
	}
	return &countingStore{types: m}
}

func (s *countingStore) GetBucketType(ctx context.Context, name string) (*metadata.BucketTypeMetadata, error) {
	s.lookups++
	bt, ok := s.types[name]
	if !ok {
		return nil, metadata.ErrBucketTypeNotFound
	}
	return bt, nil
}

func TestResolveDefaultFastPath(t *testing.T) {
	store := newCountingStore()
	resolver := NewResolver(store)
	ctx := context.Background()

	typ, err := resolver.Resolve(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultType, typ)

	typ, err = resolver.Resolve(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, DefaultType, typ)

	// Neither form may consult the metadata store
	assert.Equal(t, 0, store.lookups)
}

func TestResolveRegisteredType(t *testing.T) {
	store := newCountingStore(&metadata.BucketTypeMetadata{
		Name:      "indexes",
		Active:    true,
		CreatedAt: time.Now(),
	})
	resolver := NewResolver(store)

	typ, err := resolver.Resolve(context.Background(), "indexes")
	require.NoError(t, err)
	assert.Equal(t, "indexes", typ)
	assert.Equal(t, 1, store.lookups)
}

func TestResolveUnknownType(t *testing.T) {
	resolver := NewResolver(newCountingStore())

	_, err := resolver.Resolve(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownBucketType)
}

func TestResolveInactiveType(t *testing.T) {
	store := newCountingStore(&metadata.BucketTypeMetadata{
		Name:   "parked",
		Active: false,
	})
	resolver := NewResolver(store)

	_, err := resolver.Resolve(context.Background(), "parked")
	assert.ErrorIs(t, err, ErrUnknownBucketType)
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name   string
		typ    string
		bucket string
		want   BucketRef
	}{
		{"Absent type", "", "users", BucketRef{Bucket: "users"}},
		{"Default type", "default", "users", BucketRef{Bucket: "users"}},
		{"Explicit type", "indexes", "users", BucketRef{Type: "indexes", Bucket: "users"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Combine(tt.typ, tt.bucket)
			assert.Equal(t, tt.want, got)

			// Idempotence: same inputs, same output
			assert.Equal(t, got, Combine(tt.typ, tt.bucket))
		})
	}
}

func TestBucketRefString(t *testing.T) {
	assert.Equal(t, "users", Combine("", "users").String())
	assert.Equal(t, "indexes/users", Combine("indexes", "users").String())
	assert.False(t, Combine("default", "users").IsTyped())
	assert.True(t, Combine("indexes", "users").IsTyped())
}
