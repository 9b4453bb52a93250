package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/cockroachdb/pebble/v2"
	"github.com/sirupsen/logrus"
)

// PebbleStore implements the Store and RawKV interfaces using Pebble
// (CockroachDB's LSM engine). Unlike BadgerDB, Pebble's WAL survives crashes
// without corrupting the MANIFEST.
type PebbleStore struct {
	db     *pebble.DB
	ready  atomic.Bool
	logger *logrus.Logger
}

// PebbleOptions contains configuration options for PebbleStore
type PebbleOptions struct {
	DataDir string
	Logger  *logrus.Logger
}

// NewPebbleStore creates a new Pebble-backed metadata store
func NewPebbleStore(opts PebbleOptions) (*PebbleStore, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	dbPath := filepath.Join(opts.DataDir, "metadata")
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}

	cache := pebble.NewCache(128 << 20) // 128 MB block cache
	defer cache.Unref()

	pebbleOpts := &pebble.Options{
		Cache:  cache,
		Logger: &pebbleLogger{logger: opts.Logger},
	}

	db, err := pebble.Open(dbPath, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}

	store := &PebbleStore{
		db:     db,
		logger: opts.Logger,
	}
	store.ready.Store(true)

	opts.Logger.WithField("path", dbPath).Info("Pebble metadata store initialized")
	return store, nil
}

// prefixEnd returns the exclusive upper bound for a prefix scan in Pebble.
// It increments the last byte of the prefix; returns nil if all bytes overflow.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // all bytes overflowed, no upper bound
}

// pebbleGet reads a single key from Pebble and returns a safe copy of the value.
func (s *PebbleStore) pebbleGet(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	data := make([]byte, len(val))
	copy(data, val)
	_ = closer.Close()
	return data, nil
}

// ==================== Bucket Type Operations ====================

// CreateBucketType registers a new bucket type
func (s *PebbleStore) CreateBucketType(ctx context.Context, bt *BucketTypeMetadata) error {
	if bt == nil || bt.Name == "" {
		return ErrInvalidBucketTypeName
	}

	key := bucketTypeKey(bt.Name)
	if _, err := s.pebbleGet(key); err == nil {
		return ErrBucketTypeAlreadyExists
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return err
	}

	data, err := json.Marshal(bt)
	if err != nil {
		return fmt.Errorf("failed to marshal bucket type: %w", err)
	}

	return s.db.Set(key, data, pebble.Sync)
}

// GetBucketType retrieves metadata for a bucket type
func (s *PebbleStore) GetBucketType(ctx context.Context, name string) (*BucketTypeMetadata, error) {
	if name == "" {
		return nil, ErrInvalidBucketTypeName
	}

	data, err := s.pebbleGet(bucketTypeKey(name))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrBucketTypeNotFound
		}
		return nil, err
	}

	var bt BucketTypeMetadata
	if err := json.Unmarshal(data, &bt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bucket type: %w", err)
	}
	return &bt, nil
}

// UpdateBucketType updates an existing bucket type's metadata
func (s *PebbleStore) UpdateBucketType(ctx context.Context, bt *BucketTypeMetadata) error {
	if bt == nil || bt.Name == "" {
		return ErrInvalidBucketTypeName
	}

	key := bucketTypeKey(bt.Name)
	if _, err := s.pebbleGet(key); err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrBucketTypeNotFound
		}
		return err
	}

	data, err := json.Marshal(bt)
	if err != nil {
		return fmt.Errorf("failed to marshal bucket type: %w", err)
	}

	return s.db.Set(key, data, pebble.Sync)
}

// DeleteBucketType removes a bucket type
func (s *PebbleStore) DeleteBucketType(ctx context.Context, name string) error {
	if name == "" {
		return ErrInvalidBucketTypeName
	}

	key := bucketTypeKey(name)
	if _, err := s.pebbleGet(key); err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrBucketTypeNotFound
		}
		return err
	}

	return s.db.Delete(key, pebble.Sync)
}

// ListBucketTypes lists all registered bucket types
func (s *PebbleStore) ListBucketTypes(ctx context.Context) ([]*BucketTypeMetadata, error) {
	prefix := bucketTypePrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var types []*BucketTypeMetadata
	for iter.First(); iter.Valid(); iter.Next() {
		var bt BucketTypeMetadata
		if err := json.Unmarshal(iter.Value(), &bt); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bucket type: %w", err)
		}
		types = append(types, &bt)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	return types, nil
}

// ==================== Raw KV Operations ====================

// GetRaw retrieves a value by exact key
func (s *PebbleStore) GetRaw(ctx context.Context, key string) ([]byte, error) {
	data, err := s.pebbleGet([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return data, nil
}

// PutRaw stores a key-value pair
func (s *PebbleStore) PutRaw(ctx context.Context, key string, value []byte) error {
	return s.db.Set([]byte(key), value, pebble.NoSync)
}

// DeleteRaw removes a key
func (s *PebbleStore) DeleteRaw(ctx context.Context, key string) error {
	if _, err := s.pebbleGet([]byte(key)); err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrKeyNotFound
		}
		return err
	}
	return s.db.Delete([]byte(key), pebble.NoSync)
}

// ScanKeys returns one page of keys under prefix, starting after the marker.
func (s *PebbleStore) ScanKeys(ctx context.Context, prefix, after string, limit int) ([]string, string, error) {
	if limit <= 0 {
		limit = 1000
	}

	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	lower := []byte(prefix)
	if after != "" {
		// Resume strictly after the marker
		lower = append([]byte(after), 0)
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixEnd([]byte(prefix)),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var keys []string
	var next string
	for iter.First(); iter.Valid(); iter.Next() {
		if len(keys) >= limit {
			next = keys[len(keys)-1]
			return keys, next, iter.Error()
		}
		keys = append(keys, string(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, "", err
	}

	return keys, "", nil
}

// ==================== Maintenance ====================

// Close closes the Pebble store
func (s *PebbleStore) Close() error {
	s.ready.Store(false)
	return s.db.Close()
}

// IsReady reports whether the store can serve requests
func (s *PebbleStore) IsReady() bool {
	return s.ready.Load()
}

// pebbleLogger adapts logrus to pebble's Logger interface (Infof + Fatalf).
type pebbleLogger struct {
	logger *logrus.Logger
}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("[Pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("[Pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatalf("[Pebble] "+format, args...)
}
