// Package store provides a SQLite-backed query history log. Every question
// answered by the service is recorded with its scope and answer so operators
// can review what the corpus was asked and how it responded, across restarts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Kind classifies a history entry by the operation that produced it.
type Kind string

const (
	// KindQuery is a corpus-wide retrieval query.
	KindQuery Kind = "query"
	// KindDocumentQuery is a query scoped to one document.
	KindDocumentQuery Kind = "document_query"
	// KindSummary is a document summarization request.
	KindSummary Kind = "summary"
	// KindSynthesis is a multi-paper synthesis request.
	KindSynthesis Kind = "synthesis"
)

// Record is one logged question/answer pair.
type Record struct {
	// Kind classifies the operation.
	Kind Kind
	// DocumentID is the scope document, empty for corpus-wide operations.
	DocumentID string
	// Query is the question or request text.
	Query string
	// Answer is the generated response text.
	Answer string
	// CreatedAt is when the record was persisted.
	CreatedAt time.Time
}

// HistoryStore persists and retrieves query history. Implementations must
// be safe for concurrent use.
type HistoryStore interface {
	// Append persists a single record.
	Append(ctx context.Context, rec Record) error
	// Recent returns the most recent n records, newest-first.
	Recent(ctx context.Context, n int) ([]Record, error)
	// RecentForDocument returns the most recent n records scoped to a
	// document, newest-first.
	RecentForDocument(ctx context.Context, documentID string, n int) ([]Record, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a HistoryStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the query history database.
// It resolves to ~/.paperlens/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".paperlens")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS query_history (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    kind         TEXT    NOT NULL,
    document_id  TEXT    NOT NULL DEFAULT '',
    query        TEXT    NOT NULL,
    answer       TEXT    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_query_history_created
    ON query_history (created_at);
CREATE INDEX IF NOT EXISTS idx_query_history_document_created
    ON query_history (document_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists a single record. A zero CreatedAt is filled with now.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	ts := rec.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	const q = `INSERT INTO query_history (kind, document_id, query, answer, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, string(rec.Kind), rec.DocumentID, rec.Query, rec.Answer, ts.Unix()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n records, newest-first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Record, error) {
	const q = `
SELECT kind, document_id, query, answer, created_at
FROM   query_history
ORDER  BY created_at DESC, id DESC
LIMIT  ?`
	return s.queryRecords(ctx, q, n)
}

// RecentForDocument returns the most recent n records for one document,
// newest-first.
func (s *SQLiteStore) RecentForDocument(ctx context.Context, documentID string, n int) ([]Record, error) {
	const q = `
SELECT kind, document_id, query, answer, created_at
FROM   query_history
WHERE  document_id = ?
ORDER  BY created_at DESC, id DESC
LIMIT  ?`
	return s.queryRecords(ctx, q, documentID, n)
}

// queryRecords runs a history select and scans the rows.
func (s *SQLiteStore) queryRecords(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query history: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		var kind string
		var ts int64
		if err := rows.Scan(&kind, &rec.DocumentID, &rec.Query, &rec.Answer, &ts); err != nil {
			return nil, fmt.Errorf("store: history scan: %w", err)
		}
		rec.Kind = Kind(kind)
		rec.CreatedAt = time.Unix(ts, 0)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: history rows: %w", err)
	}
	return recs, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
