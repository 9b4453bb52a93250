package audit

import "context"

// Statuses a listing request moves through
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Transports
const (
	TransportHTTP     = "http"
	TransportProtocol = "protocol"
)

// Record is one row in the listing audit log. A streaming request writes one
// record when it starts and one when it reaches its terminal outcome; the
// non-streaming fast path writes a single terminal record.
type Record struct {
	ID         int64  `json:"id"`
	Token      string `json:"token,omitempty"` // empty for the fast path
	Kind       string `json:"kind"`            // keys or buckets
	BucketType string `json:"bucket_type"`
	Bucket     string `json:"bucket,omitempty"`
	Transport  string `json:"transport"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"` // terminal error reason
	Items      int64  `json:"items"`
	DurationMs int64  `json:"duration_ms"`
	Timestamp  int64  `json:"timestamp"`
}

// Filters narrows GetRecords results
type Filters struct {
	Kind      string
	Status    string
	Transport string
	Page      int
	PageSize  int
}

// Store persists audit records
type Store interface {
	LogRecord(ctx context.Context, rec *Record) error
	GetRecords(ctx context.Context, filters *Filters) ([]*Record, int, error)
	Close() error
}
