package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// BadgerStore implements the Store and RawKV interfaces using BadgerDB
type BadgerStore struct {
	db     *badger.DB
	ready  atomic.Bool
	logger *logrus.Logger
}

// BadgerOptions contains configuration options for BadgerStore
type BadgerOptions struct {
	DataDir           string
	SyncWrites        bool // If true, every write is synced to disk (slower but safer)
	CompactionEnabled bool // Enable automatic value-log GC
	Logger            *logrus.Logger
}

// NewBadgerStore creates a new BadgerDB-backed metadata store
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	dbPath := filepath.Join(opts.DataDir, "metadata")

	badgerOpts := badger.DefaultOptions(dbPath).
		WithLogger(newBadgerLogger(opts.Logger)).
		WithSyncWrites(opts.SyncWrites).
		WithIndexCacheSize(100 << 20). // 100MB index cache
		WithNumVersionsToKeep(1)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	store := &BadgerStore{
		db:     db,
		logger: opts.Logger,
	}

	store.ready.Store(true)

	if opts.CompactionEnabled {
		go store.runGC()
	}

	opts.Logger.WithField("path", dbPath).Info("BadgerDB metadata store initialized")

	return store, nil
}

// DB returns the underlying BadgerDB instance
func (s *BadgerStore) DB() *badger.DB {
	return s.db
}

// ==================== Key Naming Scheme ====================

func bucketTypeKey(name string) []byte {
	return []byte(fmt.Sprintf("type:%s", name))
}

func bucketTypePrefix() []byte {
	return []byte("type:")
}

// ==================== Bucket Type Operations ====================

// CreateBucketType registers a new bucket type
func (s *BadgerStore) CreateBucketType(ctx context.Context, bt *BucketTypeMetadata) error {
	if bt == nil || bt.Name == "" {
		return ErrInvalidBucketTypeName
	}

	data, err := json.Marshal(bt)
	if err != nil {
		return fmt.Errorf("failed to marshal bucket type: %w", err)
	}

	key := bucketTypeKey(bt.Name)
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return ErrBucketTypeAlreadyExists
		}
		return txn.Set(key, data)
	})
}

// GetBucketType retrieves metadata for a bucket type
func (s *BadgerStore) GetBucketType(ctx context.Context, name string) (*BucketTypeMetadata, error) {
	if name == "" {
		return nil, ErrInvalidBucketTypeName
	}

	var bt BucketTypeMetadata
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(bucketTypeKey(name))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrBucketTypeNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &bt)
		})
	})
	if err != nil {
		return nil, err
	}

	return &bt, nil
}

// UpdateBucketType updates an existing bucket type's metadata
func (s *BadgerStore) UpdateBucketType(ctx context.Context, bt *BucketTypeMetadata) error {
	if bt == nil || bt.Name == "" {
		return ErrInvalidBucketTypeName
	}

	data, err := json.Marshal(bt)
	if err != nil {
		return fmt.Errorf("failed to marshal bucket type: %w", err)
	}

	key := bucketTypeKey(bt.Name)
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrBucketTypeNotFound
			}
			return err
		}
		return txn.Set(key, data)
	})
}

// DeleteBucketType removes a bucket type
func (s *BadgerStore) DeleteBucketType(ctx context.Context, name string) error {
	if name == "" {
		return ErrInvalidBucketTypeName
	}

	key := bucketTypeKey(name)
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrBucketTypeNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

// ListBucketTypes lists all registered bucket types
func (s *BadgerStore) ListBucketTypes(ctx context.Context) ([]*BucketTypeMetadata, error) {
	var types []*BucketTypeMetadata

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = bucketTypePrefix()

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var bt BucketTypeMetadata
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &bt)
			})
			if err != nil {
				return err
			}
			types = append(types, &bt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return types, nil
}

// ==================== Raw KV Operations ====================

// GetRaw retrieves a value by exact key
func (s *BadgerStore) GetRaw(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// PutRaw stores a key-value pair
func (s *BadgerStore) PutRaw(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// DeleteRaw removes a key
func (s *BadgerStore) DeleteRaw(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		return txn.Delete([]byte(key))
	})
}

// ScanKeys returns one page of keys under prefix, starting after the marker.
// Each call opens a fresh read transaction so the caller may block on
// flow control between pages without holding iterator resources.
func (s *BadgerStore) ScanKeys(ctx context.Context, prefix, after string, limit int) ([]string, string, error) {
	if limit <= 0 {
		limit = 1000
	}

	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	var keys []string
	var next string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		seekKey := opts.Prefix
		if after != "" {
			seekKey = []byte(after)
		}

		for it.Seek(seekKey); it.ValidForPrefix(opts.Prefix); it.Next() {
			k := string(it.Item().Key())

			// Seek lands on the marker itself; scanning resumes after it
			if after != "" && k == after {
				continue
			}

			if len(keys) >= limit {
				next = keys[len(keys)-1]
				return nil
			}
			keys = append(keys, k)
		}

		// Prefix exhausted within this page
		next = ""
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	return keys, next, nil
}

// ==================== Maintenance ====================

// Close closes the BadgerDB store
func (s *BadgerStore) Close() error {
	s.ready.Store(false)
	return s.db.Close()
}

// IsReady reports whether the store can serve requests
func (s *BadgerStore) IsReady() bool {
	return s.ready.Load()
}

// runGC runs value-log garbage collection periodically
func (s *BadgerStore) runGC() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		if !s.ready.Load() {
			return
		}

		err := s.db.RunValueLogGC(0.5)
		if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			s.logger.WithError(err).Debug("BadgerDB GC pass failed")
		}
	}
}

// badgerLogger adapts logrus to BadgerDB's logger interface
type badgerLogger struct {
	logger *logrus.Logger
}

func newBadgerLogger(logger *logrus.Logger) *badgerLogger {
	return &badgerLogger{logger: logger}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf("[BadgerDB] "+format, args...)
}
