package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAudit(t *testing.T) *Manager {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewManager(store, logger)
}

func TestAuditSessionLifecycle(t *testing.T) {
	mgr := setupAudit(t)
	ctx := context.Background()

	mgr.SessionStarted(ctx, "tok-1", "keys", "default", "users", TransportHTTP, "127.0.0.1:1234")
	mgr.SessionFinished(ctx, "tok-1", "keys", "default", "users", TransportHTTP, 42, time.Now().Add(-time.Second), "")

	records, total, err := mgr.GetRecords(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, records, 2)

	// Newest first
	assert.Equal(t, StatusCompleted, records[0].Status)
	assert.Equal(t, int64(42), records[0].Items)
	assert.GreaterOrEqual(t, records[0].DurationMs, int64(900))
	assert.Equal(t, StatusStarted, records[1].Status)
}

func TestAuditFailedSession(t *testing.T) {
	mgr := setupAudit(t)
	ctx := context.Background()

	mgr.SessionFinished(ctx, "tok-2", "buckets", "indexes", "", TransportProtocol, 0, time.Now(), "timeout")

	records, total, err := mgr.GetRecords(ctx, &Filters{Status: StatusFailed})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, "timeout", records[0].Reason)
	assert.Equal(t, TransportProtocol, records[0].Transport)
}

func TestAuditFilters(t *testing.T) {
	mgr := setupAudit(t)
	ctx := context.Background()

	mgr.SessionStarted(ctx, "a", "keys", "default", "b1", TransportHTTP, "")
	mgr.SessionStarted(ctx, "b", "buckets", "default", "", TransportHTTP, "")
	mgr.SessionStarted(ctx, "c", "keys", "default", "b2", TransportProtocol, "")

	records, total, err := mgr.GetRecords(ctx, &Filters{Kind: "keys"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, records, 2)

	records, total, err = mgr.GetRecords(ctx, &Filters{Kind: "keys", Transport: TransportProtocol})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, "c", records[0].Token)
}

func TestAuditIgnoresInvalidRecords(t *testing.T) {
	mgr := setupAudit(t)
	ctx := context.Background()

	mgr.LogRecord(ctx, nil)
	mgr.LogRecord(ctx, &Record{}) // missing kind and status

	_, total, err := mgr.GetRecords(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, total)
}
