package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS mode_history (
  key        TEXT PRIMARY KEY,
  entries    JSON NOT NULL DEFAULT '[]',
  updated_at TEXT NOT NULL
);`

// SQLiteStore keeps rings as JSON arrays in a SQLite table, so empty entries survive a round trip
type SQLiteStore struct {
	db       *sql.DB
	capacity int
}

// OpenSQLiteStore opens (and creates if needed) the database at path
func OpenSQLiteStore(ctx context.Context, path string, capacity int) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(pctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to bootstrap sqlite: %w", err)
	}

	return &SQLiteStore{db: db, capacity: capacity}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, key string) (*Ring, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT entries FROM mode_history WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return NewRing(s.capacity), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history %s: %w", key, err)
	}

	var entries []string
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history %s: %w", key, err)
	}

	ring := NewRing(s.capacity)
	for _, entry := range entries {
		ring.Push(entry)
	}
	return ring, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key string, ring *Ring) error {
	raw, err := json.Marshal(ring.Entries())
	if err != nil {
		return fmt.Errorf("failed to encode history %s: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO mode_history (key, entries, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET entries = excluded.entries, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save history %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
