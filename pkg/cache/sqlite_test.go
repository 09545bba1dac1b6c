package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStorage_RoundTrip(t *testing.T) {
	s := newTestSQLite(t)

	require.NoError(t, s.Save("users", []byte(`[{"id":7}]`)))

	data, ok, err := s.Load("users")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[{"id":7}]`, string(data))
}

func TestSQLiteStorage_MissingKindIsNotAnError(t *testing.T) {
	s := newTestSQLite(t)

	_, ok, err := s.Load("forums")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStorage_SaveReplaces(t *testing.T) {
	s := newTestSQLite(t)

	require.NoError(t, s.Save("users", []byte(`["old"]`)))
	require.NoError(t, s.Save("users", []byte(`["new"]`)))

	data, ok, err := s.Load("users")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `["new"]`, string(data))
}

func TestSQLiteStorage_UpdatedAt(t *testing.T) {
	s := newTestSQLite(t)

	_, ok, err := s.UpdatedAt("users")
	require.NoError(t, err)
	assert.False(t, ok, "unsaved kind has no timestamp")

	require.NoError(t, s.Save("users", []byte(`[]`)))

	at, ok, err := s.UpdatedAt("users")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, at.IsZero())
}

func TestSQLiteStorage_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.Save("workrooms", []byte(`["w"]`)))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer reopened.Close()

	data, ok, err := reopened.Load("workrooms")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `["w"]`, string(data))
}
