// Package storage provides the device-local key/value abstraction behind the
// PIN credential store.
package storage

import "errors"

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrClosed is returned by backends after Close.
	ErrClosed = errors.New("storage closed")
)

// BatchTx provides Put and Delete within an atomic transaction.
// The namespace is scoped to the batch, so methods don't require it.
// Delete of a missing key is a no-op.
type BatchTx interface {
	Put(key string, value []byte) error
	Delete(key string) error
}

// Repository is a durable key/value surface. Keys live in a namespace so a
// single database can hold more than one gate.
type Repository interface {
	Get(namespace string, key string) ([]byte, error)
	Put(namespace string, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(namespace string, key string) error
	// Batch executes fn atomically. If fn returns an error no write is kept.
	Batch(namespace string, fn func(tx BatchTx) error) error
}
