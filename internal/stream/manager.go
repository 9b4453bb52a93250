package stream

import (
	"context"
	"time"

	"github.com/driftkv/driftkv/internal/buckettype"
	"github.com/driftkv/driftkv/internal/metrics"
)

// Manager validates listing requests and opens stream sessions. It is the
// single entry point both transport adapters use, so addressing and
// validation behave identically on the HTTP and binary front-ends.
type Manager struct {
	resolver *buckettype.Resolver
	enum     Enumerator
	mtr      *metrics.Streaming
}

// NewManager creates a session manager. mtr may be nil.
func NewManager(resolver *buckettype.Resolver, enum Enumerator, mtr *metrics.Streaming) *Manager {
	return &Manager{
		resolver: resolver,
		enum:     enum,
		mtr:      mtr,
	}
}

// OpenKeyStream validates the bucket type and starts a streaming list-keys
// session. Validation failure returns before any enumeration starts; the
// error wraps buckettype.ErrUnknownBucketType for unregistered types.
func (m *Manager) OpenKeyStream(ctx context.Context, typeName, bucket string, timeout time.Duration) (*Session, Action, error) {
	typ, err := m.resolver.Resolve(ctx, typeName)
	if err != nil {
		return nil, nil, err
	}

	sess := NewSession(m.enum, m.mtr)
	act, err := sess.Start(ctx, Request{
		Kind:    ListKeys,
		Ref:     buckettype.Combine(typ, bucket),
		Timeout: timeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return sess, act, nil
}

// OpenBucketStream validates the bucket type and starts a streaming
// list-buckets session.
func (m *Manager) OpenBucketStream(ctx context.Context, typeName string, timeout time.Duration) (*Session, Action, error) {
	typ, err := m.resolver.Resolve(ctx, typeName)
	if err != nil {
		return nil, nil, err
	}

	sess := NewSession(m.enum, m.mtr)
	act, err := sess.Start(ctx, Request{
		Kind:    ListBuckets,
		Ref:     buckettype.Combine(typ, ""),
		Timeout: timeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return sess, act, nil
}

// CollectBuckets is the non-streaming list-buckets fast path: one blocking
// call, the full name set in one result, no session token and no flow
// control. Validation is identical to the streaming path.
func (m *Manager) CollectBuckets(ctx context.Context, typeName string, timeout time.Duration) ([]string, error) {
	typ, err := m.resolver.Resolve(ctx, typeName)
	if err != nil {
		return nil, err
	}
	return m.enum.CollectBuckets(ctx, typ, timeout)
}
