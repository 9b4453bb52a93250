package enumerator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/driftkv/driftkv/internal/buckettype"
	"github.com/driftkv/driftkv/internal/metadata"
	"github.com/driftkv/driftkv/internal/stream"
)

// Keyspace layout of a DriftKV node, shared by the local engine and the
// seeding helpers:
//
//	k:<type>:<bucket>:<key>   one entry per stored key
//	b:<type>:<bucket>         bucket index entry, written on first put
//
// Untyped references address the "default" type namespace.

// DataKey builds the storage key for one (ref, key) pair.
func DataKey(ref buckettype.BucketRef, key string) string {
	return dataKeyPrefix(ref) + key
}

// BucketIndexKey builds the bucket-index entry for a bucket.
func BucketIndexKey(typ, bucket string) string {
	return bucketIndexPrefix(typ) + bucket
}

func dataKeyPrefix(ref buckettype.BucketRef) string {
	typ := ref.Type
	if typ == "" {
		typ = buckettype.DefaultType
	}
	return fmt.Sprintf("k:%s:%s:", typ, ref.Bucket)
}

func bucketIndexPrefix(typ string) string {
	if typ == "" {
		typ = buckettype.DefaultType
	}
	return fmt.Sprintf("b:%s:", typ)
}

// Seed writes one key into the node keyspace and maintains the bucket index.
// Used by tooling and tests; the listing service itself never writes data.
func Seed(ctx context.Context, kv metadata.RawKV, ref buckettype.BucketRef, key string, value []byte) error {
	if err := kv.PutRaw(ctx, DataKey(ref, key), value); err != nil {
		return err
	}
	typ := ref.Type
	if typ == "" {
		typ = buckettype.DefaultType
	}
	return kv.PutRaw(ctx, BucketIndexKey(typ, ref.Bucket), nil)
}

// Local enumerates the node's own keyspace through the metadata engine's raw
// scan surface. Each job paginates in short-lived read transactions, pausing
// on the flow-control gate between pages, so a slow client never pins engine
// resources.
type Local struct {
	kv        metadata.RawKV
	batchSize int
	logger    *logrus.Logger
	jobs      *registry
}

// NewLocal creates a local enumeration engine on top of a raw KV store.
func NewLocal(kv metadata.RawKV, batchSize int, logger *logrus.Logger) *Local {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Local{
		kv:        kv,
		batchSize: batchSize,
		logger:    logger,
		jobs:      newRegistry(),
	}
}

// Start begins an asynchronous scan and returns its token immediately.
func (l *Local) Start(ctx context.Context, req stream.Request, sink chan<- stream.Msg) (stream.Token, error) {
	token := stream.NewToken()

	// The job outlives the Start call; only its own deadline or an explicit
	// Cancel may stop it.
	jobCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		jobCtx, cancel = context.WithTimeout(jobCtx, req.Timeout)
	} else {
		jobCtx, cancel = context.WithCancel(jobCtx)
	}
	l.jobs.add(token, cancel)

	go l.run(jobCtx, newJob(token, sink), req)

	return token, nil
}

// Ack releases the flow control attached to a batch.
func (l *Local) Ack(h *stream.AckHandle) {
	h.Ack()
}

// Cancel requests best-effort termination of a running job.
func (l *Local) Cancel(token stream.Token) {
	l.jobs.cancel(token)
}

func (l *Local) run(ctx context.Context, j *job, req stream.Request) {
	defer l.jobs.remove(j.token)

	var prefix string
	switch req.Kind {
	case stream.ListKeys:
		prefix = dataKeyPrefix(req.Ref)
	case stream.ListBuckets:
		prefix = bucketIndexPrefix(req.Ref.Type)
	default:
		j.fail(fmt.Sprintf("unsupported request kind %d", req.Kind))
		return
	}

	after := ""
	for {
		keys, next, err := l.kv.ScanKeys(ctx, prefix, after, l.batchSize)
		if err != nil {
			l.finishWithError(ctx, j, err)
			return
		}

		if len(keys) > 0 {
			items := make([]string, len(keys))
			for i, k := range keys {
				items[i] = k[len(prefix):]
			}
			if !j.emitBatch(ctx, items) {
				l.finishWithError(ctx, j, ctx.Err())
				return
			}
		}

		if next == "" {
			j.finish()
			return
		}
		after = next
	}
}

// finishWithError maps a job failure onto the terminal Err message. An
// explicit Cancel produces no terminal at all; the session already closed.
func (l *Local) finishWithError(ctx context.Context, j *job, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	reason := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	l.logger.WithFields(logrus.Fields{
		"token":  string(j.token),
		"reason": reason,
	}).Debug("Local enumeration failed")
	j.fail(reason)
}

// CollectBuckets returns the complete bucket name set for a type in one
// blocking call. No token, no flow control.
func (l *Local) CollectBuckets(ctx context.Context, bucketType string, timeout time.Duration) ([]string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	prefix := bucketIndexPrefix(bucketType)
	names := []string{}
	after := ""
	for {
		keys, next, err := l.kv.ScanKeys(ctx, prefix, after, l.batchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bucket index: %w", err)
		}
		for _, k := range keys {
			names = append(names, k[len(prefix):])
		}
		if next == "" {
			return names, nil
		}
		after = next
	}
}
