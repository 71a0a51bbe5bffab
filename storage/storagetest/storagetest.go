// Package storagetest holds conformance checks shared by every storage backend.
package storagetest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdutts/vault/storage"
)

// Run exercises repo against the storage.Repository contract.
func Run(t *testing.T, repo storage.Repository) {
	t.Helper()

	t.Run("PutAndGet", func(t *testing.T) {
		require.NoError(t, repo.Put("ns1", "k1", []byte("v1")))
		got, err := repo.Get("ns1", "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)

		// Returned slices must not alias stored data.
		got[0] = 'X'
		again, err := repo.Get("ns1", "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), again)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, repo.Put("ns1", "k2", []byte("old")))
		require.NoError(t, repo.Put("ns1", "k2", []byte("new")))
		got, err := repo.Get("ns1", "k2")
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), got)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.Get("nonexistent", "k1")
		assert.True(t, errors.Is(err, storage.ErrNotFound))

		_, err = repo.Get("ns1", "nonexistent")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("NamespaceIsolation", func(t *testing.T) {
		require.NoError(t, repo.Put("nsA", "shared", []byte("a")))
		require.NoError(t, repo.Put("nsB", "shared", []byte("b")))
		a, err := repo.Get("nsA", "shared")
		require.NoError(t, err)
		b, err := repo.Get("nsB", "shared")
		require.NoError(t, err)
		assert.Equal(t, []byte("a"), a)
		assert.Equal(t, []byte("b"), b)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		require.NoError(t, repo.Put("ns1", "gone", []byte("x")))
		require.NoError(t, repo.Delete("ns1", "gone"))
		require.NoError(t, repo.Delete("ns1", "gone"))
		require.NoError(t, repo.Delete("never-created", "gone"))
		_, err := repo.Get("ns1", "gone")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("BatchCommit", func(t *testing.T) {
		require.NoError(t, repo.Put("batch", "stale", []byte("x")))
		err := repo.Batch("batch", func(tx storage.BatchTx) error {
			if err := tx.Put("a", []byte("1")); err != nil {
				return err
			}
			if err := tx.Put("b", []byte("2")); err != nil {
				return err
			}
			return tx.Delete("stale")
		})
		require.NoError(t, err)

		a, err := repo.Get("batch", "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), a)
		b, err := repo.Get("batch", "b")
		require.NoError(t, err)
		assert.Equal(t, []byte("2"), b)
		_, err = repo.Get("batch", "stale")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("BatchRollback", func(t *testing.T) {
		require.NoError(t, repo.Put("rollback", "keep", []byte("orig")))
		boom := errors.New("boom")
		err := repo.Batch("rollback", func(tx storage.BatchTx) error {
			if err := tx.Put("keep", []byte("changed")); err != nil {
				return err
			}
			if err := tx.Put("new", []byte("n")); err != nil {
				return err
			}
			if err := tx.Delete("keep"); err != nil {
				return err
			}
			return boom
		})
		assert.True(t, errors.Is(err, boom))

		keep, err := repo.Get("rollback", "keep")
		require.NoError(t, err)
		assert.Equal(t, []byte("orig"), keep)
		_, err = repo.Get("rollback", "new")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
}

// RunClosed checks that repo rejects every operation with storage.ErrClosed
// once closeRepo has returned.
func RunClosed(t *testing.T, repo storage.Repository, closeRepo func() error) {
	t.Helper()
	require.NoError(t, repo.Put("ns1", "k1", []byte("v1")))
	require.NoError(t, closeRepo())

	_, err := repo.Get("ns1", "k1")
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.ErrorIs(t, repo.Put("ns1", "k2", []byte("v2")), storage.ErrClosed)
	assert.ErrorIs(t, repo.Delete("ns1", "k1"), storage.ErrClosed)
	assert.ErrorIs(t, repo.Batch("ns1", func(tx storage.BatchTx) error {
		return tx.Put("k3", []byte("v3"))
	}), storage.ErrClosed)
	assert.ErrorIs(t, closeRepo(), storage.ErrClosed)
}
