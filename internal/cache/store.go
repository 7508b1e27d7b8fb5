package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key        TEXT PRIMARY KEY,
		status     INTEGER NOT NULL,
		headers    TEXT NOT NULL,
		body       BLOB,
		generation TEXT NOT NULL,
		stored_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)
`

// Entry is one cached response.
type Entry struct {
	Status int
	Header http.Header
	Body   []byte
}

// Store persists last-known-good responses keyed by request identity, scoped
// to a named cache generation.
type Store struct {
	db         *sql.DB
	generation string
}

// OpenStore opens (or creates) the cache database at path and activates the
// given generation: all entries belonging to prior generations are deleted
// in one atomic sweep, so stale-version entries are never served after an
// update.
func OpenStore(path, generation string) (*Store, error) {
	if generation == "" {
		return nil, fmt.Errorf("cache generation cannot be empty")
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	s := &Store{db: db, generation: generation}
	if err := s.activate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// activate sweeps entries from prior generations
// FUNCTIONAL DISCOVERY: A single DELETE inside a transaction gives the
// atomic rollover; readers either see the old generation or none of it
func (s *Store) activate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin generation sweep: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.Exec(`DELETE FROM cache_entries WHERE generation != ?`, s.generation)
	if err != nil {
		return fmt.Errorf("failed to sweep prior generations: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit generation sweep: %w", err)
	}

	if swept, err := result.RowsAffected(); err == nil && swept > 0 {
		log.Printf("Cache generation %s activated, %d stale entries swept", s.generation, swept)
	}
	return nil
}

// Put stores a response under the current generation, replacing any previous
// entry for the key.
func (s *Store) Put(key string, status int, header http.Header, body []byte) error {
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal cached headers: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO cache_entries (key, status, headers, body, generation)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			status = excluded.status,
			headers = excluded.headers,
			body = excluded.body,
			generation = excluded.generation,
			stored_at = CURRENT_TIMESTAMP`,
		key, status, string(headerJSON), body, s.generation,
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Get returns the entry for key within the current generation.
func (s *Store) Get(key string) (*Entry, bool, error) {
	var (
		status     int
		headerJSON string
		body       []byte
	)
	err := s.db.QueryRow(
		`SELECT status, headers, body FROM cache_entries WHERE key = ? AND generation = ?`,
		key, s.generation,
	).Scan(&status, &headerJSON, &body)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	header := http.Header{}
	if err := json.Unmarshal([]byte(headerJSON), &header); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached headers: %w", err)
	}
	return &Entry{Status: status, Header: header, Body: body}, true, nil
}

// Close shuts down the store.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close cache store: %w", err)
	}
	return nil
}
