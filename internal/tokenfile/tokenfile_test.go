package tokenfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileNotFound(t *testing.T) {
	values, err := Load("/nonexistent/path/token.json")
	assert.Nil(t, values)
	assert.NoError(t, err)
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	require.NoError(t, os.WriteFile(path, []byte("not json"), FilePerms))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deep", "token.json")

	require.NoError(t, Save(path, map[string]string{"k": "v"}))

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSave_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	require.NoError(t, Save(path, map[string]string{"k": "v"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	original := map[string]string{"a": "1", "b": ""}
	require.NoError(t, Save(path, original))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	require.NoError(t, Save(path, map[string]string{"k": "v"}))
	require.NoError(t, Save(path, map[string]string{"k": "w"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "token.json", entries[0].Name())
}

func TestStore_GetMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "token.json"), nil)

	v, err := s.Get("key")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestStore_SetThenGet(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "token.json"), nil)

	require.NoError(t, s.Set("IonSession|AccessToken", "abc123"))

	v, err := s.Get("IonSession|AccessToken")
	require.NoError(t, err)
	assert.Equal(t, "abc123", v)
}

func TestStore_SetPreservesOtherKeys(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "token.json"), nil)

	require.NoError(t, s.Set("one", "1"))
	require.NoError(t, s.Set("two", "2"))
	require.NoError(t, s.Set("one", ""))

	one, err := s.Get("one")
	require.NoError(t, err)
	assert.Empty(t, one)

	two, err := s.Get("two")
	require.NoError(t, err)
	assert.Equal(t, "2", two)
}

func TestStore_SetReplacesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), FilePerms))

	s := NewStore(path, nil)

	_, err := s.Get("k")
	require.Error(t, err)

	require.NoError(t, s.Set("k", "v"))

	v, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
