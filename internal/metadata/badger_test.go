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

func setupBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	store, err := NewBadgerStore(BadgerOptions{
		DataDir:           t.TempDir(),
		SyncWrites:        false,
		CompactionEnabled: false,
		Logger:            logger,
	})
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadgerBucketTypeCRUD(t *testing.T) {
	store := setupBadgerStore(t)
	ctx := context.Background()

	bt := &BucketTypeMetadata{
		Name:      "indexes",
		Active:    true,
		CreatedAt: time.Now(),
	}

	require.NoError(t, store.CreateBucketType(ctx, bt))

	// Duplicate creation fails
	err := store.CreateBucketType(ctx, bt)
	assert.ErrorIs(t, err, ErrBucketTypeAlreadyExists)

	got, err := store.GetBucketType(ctx, "indexes")
	require.NoError(t, err)
	assert.Equal(t, "indexes", got.Name)
	assert.True(t, got.Active)

	got.Active = false
	require.NoError(t, store.UpdateBucketType(ctx, got))

	got, err = store.GetBucketType(ctx, "indexes")
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = store.GetBucketType(ctx, "missing")
	assert.ErrorIs(t, err, ErrBucketTypeNotFound)

	require.NoError(t, store.DeleteBucketType(ctx, "indexes"))
	err = store.DeleteBucketType(ctx, "indexes")
	assert.ErrorIs(t, err, ErrBucketTypeNotFound)
}

func TestBadgerListBucketTypes(t *testing.T) {
	store := setupBadgerStore(t)
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta", "gamma"} {
		require.NoError(t, store.CreateBucketType(ctx, &BucketTypeMetadata{
			Name:      name,
			Active:    true,
			CreatedAt: time.Now(),
		}))
	}

	types, err := store.ListBucketTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, 3)

	names := make([]string, 0, len(types))
	for _, bt := range types {
		names = append(names, bt.Name)
	}
	assert.ElementsMatch(t, []string{"alpha", "beta", "gamma"}, names)
}

func TestBadgerRawKV(t *testing.T) {
	store := setupBadgerStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutRaw(ctx, "k:default:logs:entry-1", []byte("v1")))

	val, err := store.GetRaw(ctx, "k:default:logs:entry-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), val)

	_, err = store.GetRaw(ctx, "k:default:logs:absent")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, store.DeleteRaw(ctx, "k:default:logs:entry-1"))
	err = store.DeleteRaw(ctx, "k:default:logs:entry-1")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestBadgerScanKeysPagination(t *testing.T) {
	store := setupBadgerStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		key := fmt.Sprintf("k:default:logs:entry-%03d", i)
		require.NoError(t, store.PutRaw(ctx, key, []byte("x")))
	}
	// Keys outside the prefix must not appear
	require.NoError(t, store.PutRaw(ctx, "k:default:other:entry-000", []byte("x")))

	var all []string
	after := ""
	pages := 0
	for {
		keys, next, err := store.ScanKeys(ctx, "k:default:logs:", after, 10)
		require.NoError(t, err)
		all = append(all, keys...)
		pages++
		if next == "" {
			break
		}
		after = next
	}

	assert.Equal(t, 25, len(all))
	assert.Equal(t, 3, pages)
	assert.Equal(t, "k:default:logs:entry-000", all[0])
	assert.Equal(t, "k:default:logs:entry-024", all[24])
}

func TestBadgerScanKeysCanceledContext(t *testing.T) {
	store := setupBadgerStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.ScanKeys(ctx, "k:", "", 10)
	assert.Error(t, err)
}
