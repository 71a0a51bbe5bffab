// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"sync"

	"github.com/vdutts/vault/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte

	// failWrites, when set, is returned by every write. Tests use it to
	// simulate an unavailable medium.
	failWrites error
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]map[string][]byte)}
}

// FailWrites makes every subsequent Put, Delete and Batch return err.
// Passing nil restores normal behaviour.
func (r *Repository) FailWrites(err error) {
	r.mu.Lock()
	r.failWrites = err
	r.mu.Unlock()
}

func cloneValue(v []byte) []byte {
	if v == nil {
		return nil
	}
	return append([]byte(nil), v...)
}

func (r *Repository) Get(namespace, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.data[namespace]
	if !ok {
		return nil, storage.ErrNotFound
	}
	v, ok := ns[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneValue(v), nil
}

func (r *Repository) Put(namespace, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites != nil {
		return r.failWrites
	}
	r.putLocked(namespace, key, value)
	return nil
}

func (r *Repository) putLocked(namespace, key string, value []byte) {
	if _, ok := r.data[namespace]; !ok {
		r.data[namespace] = make(map[string][]byte)
	}
	r.data[namespace][key] = cloneValue(value)
}

func (r *Repository) Delete(namespace, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites != nil {
		return r.failWrites
	}
	r.deleteLocked(namespace, key)
	return nil
}

func (r *Repository) deleteLocked(namespace, key string) {
	if ns, ok := r.data[namespace]; ok {
		delete(ns, key)
	}
}

// Batch executes fn within a batch transaction. On error, all writes are rolled back.
func (r *Repository) Batch(namespace string, fn func(tx storage.BatchTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites != nil {
		return r.failWrites
	}

	snapshot := r.snapshot(namespace)

	tx := &memoryBatchTx{repo: r, namespace: namespace}
	if err := fn(tx); err != nil {
		r.restore(namespace, snapshot)
		return err
	}
	return nil
}

func (r *Repository) snapshot(namespace string) map[string][]byte {
	original, ok := r.data[namespace]
	if !ok {
		return nil
	}
	cp := make(map[string][]byte, len(original))
	for k, v := range original {
		cp[k] = cloneValue(v)
	}
	return cp
}

func (r *Repository) restore(namespace string, snapshot map[string][]byte) {
	if snapshot == nil {
		delete(r.data, namespace)
	} else {
		r.data[namespace] = snapshot
	}
}

type memoryBatchTx struct {
	repo      *Repository
	namespace string
}

func (tx *memoryBatchTx) Put(key string, value []byte) error {
	tx.repo.putLocked(tx.namespace, key, value)
	return nil
}

func (tx *memoryBatchTx) Delete(key string) error {
	tx.repo.deleteLocked(tx.namespace, key)
	return nil
}
