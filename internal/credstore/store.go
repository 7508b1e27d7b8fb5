package credstore

import (
	"database/sql"
	"fmt"
	"sync"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	"teamwire/pkg/interfaces"
	"teamwire/pkg/types"
)

// Fixed key names for the persisted credential pair. Absence of either key
// is treated as logged out.
const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
)

const schema = `
	CREATE TABLE IF NOT EXISTS client_state (
		name  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)
`

// Store is the durable credential store backing the whole connectivity layer
// ARCHITECTURAL DISCOVERY: Read-mostly access pattern served from an
// in-memory copy under RWMutex; SQLite is touched only on login, refresh
// and logout so readers never wait on disk
type Store struct {
	db      *sql.DB
	mu      sync.RWMutex
	session types.Session
	present bool
	closed  bool
}

// Interface compliance verified at compile time
var (
	_ interfaces.CredentialStore = (*Store)(nil)
	_ interfaces.KeyValueStore   = (*Store)(nil)
)

// Open opens (or creates) the credential database at path and loads any
// persisted session into memory.
func Open(path string) (*Store, error) {
	// TECHNICAL DISCOVERY: WAL mode plus busy timeout keeps the store usable
	// when the cache gateway shares the same filesystem
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize credential schema: %w", err)
	}

	s := &Store{db: db}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// load restores the persisted credential pair into the in-memory copy.
func (s *Store) load() error {
	access, okA, err := s.Fetch(keyAccessToken)
	if err != nil {
		return err
	}
	refresh, okR, err := s.Fetch(keyRefreshToken)
	if err != nil {
		return err
	}

	// FUNCTIONAL DISCOVERY: A half-present pair is treated as logged out
	// rather than surfaced as corruption; the next login rewrites both keys
	if okA && okR {
		s.mu.Lock()
		s.session = types.Session{AccessToken: access, RefreshToken: refresh}
		s.present = true
		s.mu.Unlock()
	}
	return nil
}

// Get returns the current session and whether one is present.
func (s *Store) Get() (types.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, s.present
}

// Set replaces the stored session atomically, on disk and in memory.
func (s *Store) Set(session types.Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin credential update: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // TECHNICAL: Always rollback unless commit succeeds

	upsert := `INSERT INTO client_state (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`
	if _, err := tx.Exec(upsert, keyAccessToken, session.AccessToken); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	if _, err := tx.Exec(upsert, keyRefreshToken, session.RefreshToken); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit credential update: %w", err)
	}

	// Memory copy updated only after the durable write succeeds
	s.mu.Lock()
	s.session = session
	s.present = true
	s.mu.Unlock()
	return nil
}

// Clear removes the stored session. Idempotent.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(
		`DELETE FROM client_state WHERE name IN (?, ?)`,
		keyAccessToken, keyRefreshToken,
	); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	s.mu.Lock()
	s.session = types.Session{}
	s.present = false
	s.mu.Unlock()
	return nil
}

// Put stores an arbitrary named value alongside the credential pair.
func (s *Store) Put(name, value string) error {
	_, err := s.db.Exec(`INSERT INTO client_state (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", name, err)
	}
	return nil
}

// Fetch returns the value stored under name and whether it exists.
func (s *Store) Fetch(name string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM client_state WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return value, true, nil
}

// Delete removes the value stored under name. Deleting an absent name is a no-op.
func (s *Store) Delete(name string) error {
	if _, err := s.db.Exec(`DELETE FROM client_state WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

// Close shuts down the store.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil // Already closed
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close credential store: %w", err)
	}
	return nil
}
