package metadata

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPebbleStore(t *testing.T) *PebbleStore {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	store, err := NewPebbleStore(PebbleOptions{
		DataDir: t.TempDir(),
		Logger:  logger,
	})
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })
	return store
}

func TestPebbleBucketTypeCRUD(t *testing.T) {
	store := setupPebbleStore(t)
	ctx := context.Background()

	bt := &BucketTypeMetadata{
		Name:      "sessions",
		Active:    true,
		CreatedAt: time.Now(),
	}

	require.NoError(t, store.CreateBucketType(ctx, bt))
	assert.ErrorIs(t, store.CreateBucketType(ctx, bt), ErrBucketTypeAlreadyExists)

	got, err := store.GetBucketType(ctx, "sessions")
	require.NoError(t, err)
	assert.Equal(t, "sessions", got.Name)

	_, err = store.GetBucketType(ctx, "missing")
	assert.ErrorIs(t, err, ErrBucketTypeNotFound)

	require.NoError(t, store.DeleteBucketType(ctx, "sessions"))
	assert.ErrorIs(t, store.DeleteBucketType(ctx, "sessions"), ErrBucketTypeNotFound)
}

func TestPebbleScanKeysPagination(t *testing.T) {
	store := setupPebbleStore(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		key := fmt.Sprintf("b:default:bucket-%02d", i)
		require.NoError(t, store.PutRaw(ctx, key, []byte{}))
	}

	keys, next, err := store.ScanKeys(ctx, "b:default:", "", 5)
	require.NoError(t, err)
	assert.Len(t, keys, 5)
	assert.Equal(t, "b:default:bucket-04", next)

	keys, next, err = store.ScanKeys(ctx, "b:default:", next, 100)
	require.NoError(t, err)
	assert.Len(t, keys, 7)
	assert.Equal(t, "", next)
	assert.Equal(t, "b:default:bucket-05", keys[0])
}

func TestPebblePrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("b:default;"), prefixEnd([]byte("b:default:")))
	assert.Equal(t, []byte{0x01}, prefixEnd([]byte{0x00}))
	assert.Nil(t, prefixEnd([]byte{0xff, 0xff}))
}
