// Package sqlite provides a SQLite-backed storage repository.
//
// The kv table uses a composite primary key (namespace, key) that mirrors the
// key space used by the BBolt and in-memory backends.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/vdutts/vault/storage"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (namespace, key)
)`

const upsert = `
INSERT INTO kv(namespace, key, value) VALUES(?, ?, ?)
ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`

// Store implements storage.Repository backed by SQLite.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by db, creating the schema if needed.
func NewRepository(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewRepositoryFromFile opens a SQLite database at path and returns a new Repository.
func NewRepositoryFromFile(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One writer at a time keeps batches serialised.
	db.SetMaxOpenConns(1)
	s, err := NewRepository(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database. Later calls return
// storage.ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return storage.ErrClosed
	}
	return s.db.Close()
}

func (s *Store) Get(namespace, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	var value []byte
	err := s.db.QueryRow("SELECT value FROM kv WHERE namespace = ? AND key = ?", namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", namespace, key, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Put(namespace, key string, value []byte) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	_, err := s.db.Exec(upsert, namespace, key, value)
	return err
}

func (s *Store) Delete(namespace, key string) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	_, err := s.db.Exec("DELETE FROM kv WHERE namespace = ? AND key = ?", namespace, key)
	return err
}

type sqliteBatchTx struct {
	tx        *sql.Tx
	namespace string
}

func (b *sqliteBatchTx) Put(key string, value []byte) error {
	_, err := b.tx.Exec(upsert, b.namespace, key, value)
	return err
}

func (b *sqliteBatchTx) Delete(key string) error {
	_, err := b.tx.Exec("DELETE FROM kv WHERE namespace = ? AND key = ?", b.namespace, key)
	return err
}

// Batch executes fn within a SQL transaction. On error, all writes are rolled back.
func (s *Store) Batch(namespace string, fn func(tx storage.BatchTx) error) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteBatchTx{tx: tx, namespace: namespace}); err != nil {
		return err
	}
	return tx.Commit()
}
