// Package enumerator provides the enumeration engines behind listing
// sessions: a local engine scanning the node's own keyspace and a remote
// engine enumerating an S3-compatible endpoint. Both speak the message and
// flow-control protocol consumed by internal/stream.
package enumerator

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/driftkv/driftkv/internal/config"
	"github.com/driftkv/driftkv/internal/metadata"
	"github.com/driftkv/driftkv/internal/stream"
)

// New creates the enumeration engine selected by cfg. kv is only required by
// the local engine.
func New(cfg config.EnumeratorConfig, kv metadata.RawKV, logger *logrus.Logger) (stream.Enumerator, error) {
	switch cfg.Engine {
	case "local", "":
		if kv == nil {
			return nil, fmt.Errorf("local enumerator requires a raw KV store")
		}
		return NewLocal(kv, cfg.BatchSize, logger), nil
	case "s3":
		return NewS3(cfg.S3, cfg.BatchSize, logger), nil
	default:
		return nil, fmt.Errorf("unknown enumerator engine %q", cfg.Engine)
	}
}
