package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorage_RoundTrip(t *testing.T) {
	s := NewFileStorage(t.TempDir(), "ryver_")

	require.NoError(t, s.Save("users", []byte(`[{"id":1}]`)))

	data, ok, err := s.Load("users")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[{"id":1}]`, string(data))
}

func TestFileStorage_MissingKindIsNotAnError(t *testing.T) {
	s := NewFileStorage(t.TempDir(), "ryver_")

	data, ok, err := s.Load("forums")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestFileStorage_SaveReplaces(t *testing.T) {
	s := NewFileStorage(t.TempDir(), "ryver_")

	require.NoError(t, s.Save("teams", []byte(`["old"]`)))
	require.NoError(t, s.Save("teams", []byte(`["new"]`)))

	data, ok, err := s.Load("teams")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `["new"]`, string(data))
}

func TestFileStorage_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	s := NewFileStorage(dir, "")

	require.NoError(t, s.Save("users", []byte(`[]`)))

	_, ok, err := s.Load("users")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStorage_KindsAreIndependent(t *testing.T) {
	s := NewFileStorage(t.TempDir(), "ryver_")

	require.NoError(t, s.Save("users", []byte(`["u"]`)))
	require.NoError(t, s.Save("workrooms", []byte(`["w"]`)))

	users, ok, err := s.Load("users")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `["u"]`, string(users))

	teams, ok, err := s.Load("workrooms")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `["w"]`, string(teams))
}
