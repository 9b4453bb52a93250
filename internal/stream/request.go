package stream

import (
	"context"
	"time"

	"github.com/driftkv/driftkv/internal/buckettype"
)

// Kind selects what a listing request enumerates.
type Kind int

const (
	// ListKeys enumerates the keys of one bucket.
	ListKeys Kind = iota
	// ListBuckets enumerates the bucket names of one type namespace.
	ListBuckets
)

func (k Kind) String() string {
	switch k {
	case ListKeys:
		return "keys"
	case ListBuckets:
		return "buckets"
	default:
		return "unknown"
	}
}

// Request describes one enumeration. Immutable once a session starts.
type Request struct {
	Kind Kind

	// Ref addresses the target. For ListKeys both fields are meaningful; for
	// ListBuckets only the type qualifier is (Bucket is empty).
	Ref buckettype.BucketRef

	// Timeout bounds the enumerator's execution, not the session. A timeout
	// inside the enumerator surfaces as an Err message.
	Timeout time.Duration
}

// Enumerator is the collaborator that executes enumeration jobs. The session
// layer never blocks on it except through message arrival on the sink channel
// handed to Start.
type Enumerator interface {
	// Start begins an asynchronous enumeration and returns its correlation
	// token immediately. All messages for the job are delivered to sink in
	// production order, ending with exactly one Done or Err.
	Start(ctx context.Context, req Request, sink chan<- Msg) (Token, error)

	// Ack releases the flow control attached to a batch, permitting the
	// enumerator to produce the next one. Must be called exactly once per
	// handle, before the session consumes its next message.
	Ack(h *AckHandle)

	// Cancel requests best-effort early termination of a running job. After
	// Cancel the enumerator may still deliver in-flight messages; they are
	// dropped by the closed session.
	Cancel(token Token)

	// CollectBuckets is the synchronous non-streaming path: it returns the
	// complete bucket name set for a type in one call, with no token and no
	// flow control.
	CollectBuckets(ctx context.Context, bucketType string, timeout time.Duration) ([]string, error)
}
