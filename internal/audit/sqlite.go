package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQLiteStore creates a new SQLite-based audit log store
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	logger.Info("Audit log SQLite store initialized")
	return store, nil
}

// initSchema creates the listing_audit table and indexes if they don't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS listing_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token TEXT,
		kind TEXT NOT NULL,
		bucket_type TEXT NOT NULL,
		bucket TEXT,
		transport TEXT NOT NULL,
		remote_addr TEXT,
		status TEXT NOT NULL,
		reason TEXT,
		items INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_listing_audit_timestamp ON listing_audit(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_listing_audit_token ON listing_audit(token);
	CREATE INDEX IF NOT EXISTS idx_listing_audit_kind ON listing_audit(kind);
	CREATE INDEX IF NOT EXISTS idx_listing_audit_status ON listing_audit(status);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}

	return nil
}

// LogRecord persists one audit record
func (s *SQLiteStore) LogRecord(ctx context.Context, rec *Record) error {
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().Unix()
	}

	query := `
	INSERT INTO listing_audit (
		token, kind, bucket_type, bucket, transport, remote_addr,
		status, reason, items, duration_ms, timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.Token, rec.Kind, rec.BucketType, rec.Bucket, rec.Transport,
		rec.RemoteAddr, rec.Status, rec.Reason, rec.Items, rec.DurationMs,
		rec.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	return nil
}

// GetRecords retrieves audit records with filters, newest first
func (s *SQLiteStore) GetRecords(ctx context.Context, filters *Filters) ([]*Record, int, error) {
	if filters == nil {
		filters = &Filters{}
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 50
	}
	if filters.PageSize > 100 {
		filters.PageSize = 100
	}

	var conds []string
	var args []interface{}
	if filters.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, filters.Kind)
	}
	if filters.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filters.Status)
	}
	if filters.Transport != "" {
		conds = append(conds, "transport = ?")
		args = append(args, filters.Transport)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM listing_audit"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit records: %w", err)
	}

	query := `
	SELECT id, token, kind, bucket_type, bucket, transport, remote_addr,
	       status, reason, items, duration_ms, timestamp
	FROM listing_audit` + where + `
	ORDER BY timestamp DESC, id DESC
	LIMIT ? OFFSET ?`
	args = append(args, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		err := rows.Scan(&rec.ID, &rec.Token, &rec.Kind, &rec.BucketType,
			&rec.Bucket, &rec.Transport, &rec.RemoteAddr, &rec.Status,
			&rec.Reason, &rec.Items, &rec.DurationMs, &rec.Timestamp)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
