package stream

import (
	"context"
	"testing"
	"time"

	"github.com/driftkv/driftkv/internal/buckettype"
	"github.com/driftkv/driftkv/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStore struct {
	metadata.Store
	types map[string]*metadata.BucketTypeMetadata
}

func (s *staticStore) GetBucketType(ctx context.Context, name string) (*metadata.BucketTypeMetadata, error) {
	bt, ok := s.types[name]
	if !ok {
		return nil, metadata.ErrBucketTypeNotFound
	}
	return bt, nil
}

func testManager(enum Enumerator) *Manager {
	store := &staticStore{types: map[string]*metadata.BucketTypeMetadata{
		"indexes": {Name: "indexes", Active: true},
	}}
	return NewManager(buckettype.NewResolver(store), enum, nil)
}

func TestOpenKeyStream(t *testing.T) {
	enum := &fakeEnumerator{}
	mgr := testManager(enum)

	sess, act, err := mgr.OpenKeyStream(context.Background(), "indexes", "users", time.Minute)
	require.NoError(t, err)
	assert.IsType(t, StreamHandle{}, act)
	assert.Equal(t, Streaming, sess.State())
}

// Validation failure must never start an enumeration.
func TestOpenKeyStreamUnknownType(t *testing.T) {
	enum := &fakeEnumerator{}
	mgr := testManager(enum)

	_, _, err := mgr.OpenKeyStream(context.Background(), "ghost", "users", time.Minute)
	assert.ErrorIs(t, err, buckettype.ErrUnknownBucketType)
	assert.Equal(t, 0, enum.startCalls)
}

func TestOpenBucketStreamDefaultType(t *testing.T) {
	enum := &fakeEnumerator{}
	mgr := testManager(enum)

	sess, act, err := mgr.OpenBucketStream(context.Background(), "", time.Minute)
	require.NoError(t, err)
	assert.IsType(t, StreamHandle{}, act)
	assert.Equal(t, ListBuckets, sess.req.Kind)
	assert.False(t, sess.req.Ref.IsTyped())
}

// The fast path returns the full set in one call with no token minted.
func TestCollectBuckets(t *testing.T) {
	enum := &fakeEnumerator{collected: []string{"b1", "b2"}}
	mgr := testManager(enum)

	names, err := mgr.CollectBuckets(context.Background(), "default", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2"}, names)
	assert.Equal(t, 0, enum.startCalls)
	assert.Empty(t, enum.token)
}

func TestCollectBucketsUnknownType(t *testing.T) {
	enum := &fakeEnumerator{collected: []string{"b1"}}
	mgr := testManager(enum)

	_, err := mgr.CollectBuckets(context.Background(), "ghost", time.Minute)
	assert.ErrorIs(t, err, buckettype.ErrUnknownBucketType)
}
