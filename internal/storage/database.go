package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// Store is a durable key-value store backed by a single sqlite table.
// Values are JSON documents or bare strings. Watchers registered with
// Watch are notified after every successful mutation of their key.
type Store struct {
	conn *sql.DB

	watchMu  sync.Mutex
	watchers map[string]map[int]func(key string)
	watchSeq int
}

// Open creates a new database connection, applies pragmas and ensures the
// schema is up to date.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite allows a single writer; a pool of one keeps the driver from
	// returning SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to exec pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		conn:     db,
		watchers: make(map[string]map[int]func(key string)),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Get returns the raw value stored under key. The second return is false
// when the key is absent.
func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores a raw value under key, creating or replacing it.
func (s *Store) Set(key, value string) error {
	_, err := s.conn.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}
	s.notify(key)
	return nil
}

// Remove deletes a key. Removing an absent key is not an error.
func (s *Store) Remove(key string) error {
	_, err := s.conn.Exec(`DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to remove key %q: %w", key, err)
	}
	s.notify(key)
	return nil
}

// GetJSON unmarshals the value stored under key into v. The return is false
// when the key is absent, leaving v untouched.
func (s *Store) GetJSON(key string, v any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("failed to decode key %q: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals v and stores it under key.
func (s *Store) SetJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode key %q: %w", key, err)
	}
	return s.Set(key, string(raw))
}

// Apply writes and removes the given keys in a single transaction, so an
// import replaces the dataset atomically with no partial merge.
func (s *Store) Apply(set map[string]string, remove []string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	now := time.Now().UTC()
	for key, value := range set {
		if _, err := tx.Exec(`
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to set key %q: %w", key, err)
		}
	}
	for _, key := range remove {
		if _, err := tx.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to remove key %q: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	for key := range set {
		s.notify(key)
	}
	for _, key := range remove {
		s.notify(key)
	}
	return nil
}

// Reset deletes every key. Irreversible.
func (s *Store) Reset() error {
	keys, err := s.Keys()
	if err != nil {
		return err
	}
	if _, err := s.conn.Exec(`DELETE FROM kv`); err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}
	for _, key := range keys {
		s.notify(key)
	}
	return nil
}

// Keys returns all stored keys.
func (s *Store) Keys() ([]string, error) {
	rows, err := s.conn.Query(`SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key row: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Watch registers fn to run after every mutation of key. The returned
// function unsubscribes. Callbacks run synchronously on the mutating
// goroutine and must not write back to the store.
func (s *Store) Watch(key string, fn func(key string)) func() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	s.watchSeq++
	id := s.watchSeq
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[int]func(key string))
	}
	s.watchers[key][id] = fn

	return func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		delete(s.watchers[key], id)
	}
}

func (s *Store) notify(key string) {
	s.watchMu.Lock()
	fns := make([]func(key string), 0, len(s.watchers[key]))
	for _, fn := range s.watchers[key] {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}

// MarkDataUpdated stamps the data-modified marker used by sync comparisons.
// It must be called after every mutation that affects synchronized data.
func (s *Store) MarkDataUpdated(t time.Time) error {
	return s.Set(KeyDataUpdatedAt, t.UTC().Format(time.RFC3339))
}

// DataUpdatedAt returns the data-modified marker, or false when no
// synchronized data has ever been written (fresh install).
func (s *Store) DataUpdatedAt() (time.Time, bool, error) {
	raw, ok, err := s.Get(KeyDataUpdatedAt)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse data_updated_at: %w", err)
	}
	return t, true, nil
}
