package pipeline

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/chazu/altair/pkg/bytecode"
)

// ErrNotCached is returned by Store.Get for unknown hashes.
var ErrNotCached = errors.New("code object not cached")

// Store is a SQLite-backed cache of compiled code objects, keyed by the
// content hash of their serialized form.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenStore opens (creating if necessary) a cache database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// Wait for locks instead of failing when another process compiles
	// into the same cache.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS code_objects (
			hash TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			data BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create code_objects table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Put serializes code and stores it under its content hash, which it
// returns. Storing the same code object twice is a no-op.
func (s *Store) Put(code *bytecode.CodeObject) ([sha256.Size]byte, error) {
	data, err := bytecode.Marshal(code)
	if err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("serialize %q: %w", code.Name, err)
	}
	hash := sha256.Sum256(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO code_objects (hash, name, data) VALUES (?, ?, ?)",
		hex.EncodeToString(hash[:]), code.Name, data,
	)
	if err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("store %q: %w", code.Name, err)
	}
	return hash, nil
}

// Get loads the code object stored under hash, or ErrNotCached.
func (s *Store) Get(hash [sha256.Size]byte) (*bytecode.CodeObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.db.QueryRow(
		"SELECT data FROM code_objects WHERE hash = ?",
		hex.EncodeToString(hash[:]),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("load %x: %w", hash[:8], err)
	}
	return bytecode.Unmarshal(data)
}

// Has reports whether a code object is stored under hash.
func (s *Store) Has(hash [sha256.Size]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM code_objects WHERE hash = ?",
		hex.EncodeToString(hash[:]),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
