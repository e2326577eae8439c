package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `json:"name" yaml:"name"`
	N    int    `json:"n" yaml:"n"`
}

func TestWriteJSONAtomic_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "f.json")

	require.NoError(t, WriteJSONAtomic(path, sample{Name: "a", N: 1}, 0o644))

	var out sample
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, sample{Name: "a", N: 1}, out)
}

func TestWriteJSONAtomic_PreservesPreviousOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.json")
	require.NoError(t, WriteJSONAtomic(path, sample{Name: "first", N: 1}, 0o644))

	// Simulate a value that cannot be marshaled; the original file must
	// remain untouched (spec §8 property 2).
	err := WriteJSONAtomic(path, make(chan int), 0o644)
	require.Error(t, err)

	var out sample
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, "first", out.Name)
}

func TestReadJSON_MissingFileIsNotFoundError(t *testing.T) {
	dir := t.TempDir()
	var out sample
	err := ReadJSON(filepath.Join(dir, "missing.json"), &out)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteYAMLAtomic_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.yaml")
	require.NoError(t, WriteYAMLAtomic(path, sample{Name: "b", N: 2}, 0o644))

	var out sample
	require.NoError(t, ReadYAML(path, &out))
	assert.Equal(t, sample{Name: "b", N: 2}, out)
}

func TestTryAcquire_SecondCallerFails(t *testing.T) {
	dir := t.TempDir()
	paths := New(dir)

	lock1, ok, err := TryAcquire(paths)
	require.NoError(t, err)
	require.True(t, ok)
	defer lock1.Release()

	_, ok2, err := TryAcquire(paths)
	require.NoError(t, err)
	assert.False(t, ok2, "a second daemon must not acquire the lock")
}
