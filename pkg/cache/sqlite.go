package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStorage keeps all cached entity blobs in a single SQLite database,
// one row per kind. It is handy when a bot already ships a database file.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at path and prepares the
// cache table.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS entity_cache (
		kind       TEXT PRIMARY KEY,
		data       BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Load returns the blob stored for a kind, if any.
func (s *SQLiteStorage) Load(kind string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM entity_cache WHERE kind = ?`, kind).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load cache row: %w", err)
	}
	return data, true, nil
}

// Save stores the blob for a kind, replacing any previous value.
func (s *SQLiteStorage) Save(kind string, data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO entity_cache (kind, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		kind, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save cache row: %w", err)
	}
	return nil
}

// UpdatedAt reports when a kind was last saved.
func (s *SQLiteStorage) UpdatedAt(kind string) (time.Time, bool, error) {
	var at time.Time
	err := s.db.QueryRow(`SELECT updated_at FROM entity_cache WHERE kind = ?`, kind).Scan(&at)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("load cache timestamp: %w", err)
	}
	return at, true, nil
}

// Close closes the underlying database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
