package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdutts/vault/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewRepositoryFromFile(filepath.Join(t.TempDir(), "gate-test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStorage(t *testing.T) {
	storagetest.Run(t, newTestStore(t))
}

func TestSQLiteStorage_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.sqlite")

	s, err := NewRepositoryFromFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Put("device", "session-backup", []byte("tok-1")))
	require.NoError(t, s.Close())

	s, err = NewRepositoryFromFile(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get("device", "session-backup")
	require.NoError(t, err)
	assert.Equal(t, []byte("tok-1"), got)
}

func TestSQLiteStorage_Closed(t *testing.T) {
	s, err := NewRepositoryFromFile(filepath.Join(t.TempDir(), "closed.sqlite"))
	require.NoError(t, err)
	storagetest.RunClosed(t, s, s.Close)
}
