package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore is a CollectionStore backed by a local SQLite database, so
// pointers survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and migrates the schema.
// Use ":memory:" in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per-connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS active_collections (
    session_id   TEXT    PRIMARY KEY,
    collection   TEXT    NOT NULL,
    chunk_count  INTEGER NOT NULL,
    source       TEXT    NOT NULL DEFAULT '',
    updated_at   INTEGER NOT NULL  -- Unix nanoseconds
);
CREATE TABLE IF NOT EXISTS ingestions (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   TEXT    NOT NULL,
    collection   TEXT    NOT NULL,
    chunk_count  INTEGER NOT NULL,
    source       TEXT    NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ingestions_created ON ingestions (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// SetActive logs the ingestion and upserts the session pointer in one
// transaction.
func (s *SQLiteStore) SetActive(ctx context.Context, ac ActiveCollection) error {
	session, err := NormalizeSession(ac.SessionID)
	if err != nil {
		return err
	}
	if ac.UpdatedAt.IsZero() {
		ac.UpdatedAt = time.Now()
	}
	ts := ac.UpdatedAt.UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const logQ = `INSERT INTO ingestions (session_id, collection, chunk_count, source, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, logQ, session, ac.Collection, ac.ChunkCount, ac.Source, ts); err != nil {
		return fmt.Errorf("store: log ingestion: %w", err)
	}

	const upsertQ = `
INSERT INTO active_collections (session_id, collection, chunk_count, source, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
    collection  = excluded.collection,
    chunk_count = excluded.chunk_count,
    source      = excluded.source,
    updated_at  = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, upsertQ, session, ac.Collection, ac.ChunkCount, ac.Source, ts); err != nil {
		return fmt.Errorf("store: set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Active returns the session's current pointer.
func (s *SQLiteStore) Active(ctx context.Context, sessionID string) (ActiveCollection, error) {
	session, err := NormalizeSession(sessionID)
	if err != nil {
		return ActiveCollection{}, err
	}

	const q = `SELECT collection, chunk_count, source, updated_at FROM active_collections WHERE session_id = ?`
	ac := ActiveCollection{SessionID: session}
	var ts int64
	err = s.db.QueryRowContext(ctx, q, session).Scan(&ac.Collection, &ac.ChunkCount, &ac.Source, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return ActiveCollection{}, ErrNoActiveCollection
	}
	if err != nil {
		return ActiveCollection{}, fmt.Errorf("store: active: %w", err)
	}
	ac.UpdatedAt = time.Unix(0, ts)
	return ac, nil
}

// Recent returns the newest n ingestion log entries.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]ActiveCollection, error) {
	const q = `
SELECT session_id, collection, chunk_count, source, created_at
FROM   ingestions
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var out []ActiveCollection
	for rows.Next() {
		var ac ActiveCollection
		var ts int64
		if err := rows.Scan(&ac.SessionID, &ac.Collection, &ac.ChunkCount, &ac.Source, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		ac.UpdatedAt = time.Unix(0, ts)
		out = append(out, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return out, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
