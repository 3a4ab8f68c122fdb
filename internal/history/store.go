// Package history keeps a local log of recognition outcomes in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Sources of a recognition
const (
	SourceWebcam = "webcam"
	SourceUpload = "upload"
)

// Entry is one recognition outcome
type Entry struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"-"` // bearer token or caller address; never served
	Source    string    `json:"source"`
	Frames    int       `json:"frames"`
	RawText   string    `json:"raw_text"`
	Result    string    `json:"result"`
	Filtered  bool      `json:"filtered"`
	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Store wraps a SQLite-backed recognition log
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open creates or opens the database at path
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS recognitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT,
    source TEXT NOT NULL,
    frames INTEGER NOT NULL,
    raw_text TEXT,
    result TEXT NOT NULL,
    filtered INTEGER NOT NULL,
    latency_ms INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recognitions_created ON recognitions(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources
func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes e, stamping CreatedAt when unset
func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recognitions(session_id, source, frames, raw_text, result, filtered, latency_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Source, e.Frames, e.RawText, e.Result, e.Filtered, e.LatencyMS, e.CreatedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert recognition: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, source, frames, raw_text, result, filtered, latency_ms, created_at
		 FROM recognitions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recognitions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var session, raw sql.NullString
		var created int64
		if err := rows.Scan(&e.ID, &session, &e.Source, &e.Frames, &raw, &e.Result, &e.Filtered, &e.LatencyMS, &created); err != nil {
			return nil, err
		}
		e.SessionID = session.String
		e.RawText = raw.String
		e.CreatedAt = time.UnixMilli(created).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries created before cutoff and returns how many were removed
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recognitions WHERE created_at < ?`, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune recognitions: %w", err)
	}
	return res.RowsAffected()
}

// HealthCheck pings the database
func (s *Store) HealthCheck(ctx context.Context) (bool, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return false, err
	}
	return true, nil
}
