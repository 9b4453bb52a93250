package audit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Manager handles audit logging for listing requests. Logging is best-effort:
// a failed insert is logged and swallowed, never failing the request.
type Manager struct {
	store  Store
	logger *logrus.Logger
}

// NewManager creates a new audit manager
func NewManager(store Store, logger *logrus.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
	}
}

// LogRecord records an audit record
func (m *Manager) LogRecord(ctx context.Context, rec *Record) {
	if m == nil || rec == nil {
		return
	}

	if rec.Kind == "" || rec.Status == "" {
		m.logger.Warn("Audit record missing required fields")
		return
	}

	if err := m.store.LogRecord(ctx, rec); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"kind":   rec.Kind,
			"status": rec.Status,
			"token":  rec.Token,
		}).Error("Failed to log audit record")
		return
	}

	m.logger.WithFields(logrus.Fields{
		"kind":      rec.Kind,
		"status":    rec.Status,
		"token":     rec.Token,
		"transport": rec.Transport,
	}).Debug("Audit record logged")
}

// SessionStarted records the opening of a streaming session.
func (m *Manager) SessionStarted(ctx context.Context, token, kind, bucketType, bucket, transport, remoteAddr string) {
	m.LogRecord(ctx, &Record{
		Token:      token,
		Kind:       kind,
		BucketType: bucketType,
		Bucket:     bucket,
		Transport:  transport,
		RemoteAddr: remoteAddr,
		Status:     StatusStarted,
	})
}

// SessionFinished records a terminal outcome. reason is empty on success.
func (m *Manager) SessionFinished(ctx context.Context, token, kind, bucketType, bucket, transport string, items int64, started time.Time, reason string) {
	status := StatusCompleted
	if reason != "" {
		status = StatusFailed
	}
	m.LogRecord(ctx, &Record{
		Token:      token,
		Kind:       kind,
		BucketType: bucketType,
		Bucket:     bucket,
		Transport:  transport,
		Status:     status,
		Reason:     reason,
		Items:      items,
		DurationMs: time.Since(started).Milliseconds(),
	})
}

// GetRecords retrieves audit records with filters
func (m *Manager) GetRecords(ctx context.Context, filters *Filters) ([]*Record, int, error) {
	records, total, err := m.store.GetRecords(ctx, filters)
	if err != nil {
		m.logger.WithError(err).Error("Failed to retrieve audit records")
		return nil, 0, err
	}
	return records, total, nil
}

// Close closes the underlying audit store
func (m *Manager) Close() error {
	if m == nil || m.store == nil {
		return nil
	}
	return m.store.Close()
}
