package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cccc-dev/cccc/internal/storage"
)

func TestRegister_ListAndGet(t *testing.T) {
	paths := storage.New(t.TempDir())
	r := New(paths)

	require.NoError(t, r.Register(Entry{GroupID: "g_a", Dir: paths.GroupDir("g_a"), Title: "Alpha"}))
	require.NoError(t, r.Register(Entry{GroupID: "g_b", Dir: paths.GroupDir("g_b"), Title: "Beta"}))

	entries, err := r.List()
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	e, ok, err := r.Get("g_a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alpha", e.Title)

	_, ok, err = r.Get("g_missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetActive_RequiresRegisteredGroup(t *testing.T) {
	paths := storage.New(t.TempDir())
	r := New(paths)

	err := r.SetActive("g_unregistered")
	require.Error(t, err)

	require.NoError(t, r.Register(Entry{GroupID: "g_a", Dir: paths.GroupDir("g_a")}))
	require.NoError(t, r.SetActive("g_a"))

	active, err := r.Active()
	require.NoError(t, err)
	assert.Equal(t, "g_a", active)
}

func TestUnregister_ClearsActivePointer(t *testing.T) {
	paths := storage.New(t.TempDir())
	r := New(paths)

	require.NoError(t, r.Register(Entry{GroupID: "g_a", Dir: paths.GroupDir("g_a")}))
	require.NoError(t, r.SetActive("g_a"))
	require.NoError(t, r.Unregister("g_a"))

	active, err := r.Active()
	require.NoError(t, err)
	assert.Equal(t, "", active)
}

func TestReconcile_FindsAndOptionallyRemovesMissingGroups(t *testing.T) {
	home := t.TempDir()
	paths := storage.New(home)
	r := New(paths)

	require.NoError(t, r.Register(Entry{GroupID: "g_ok", Dir: paths.GroupDir("g_ok")}))
	require.NoError(t, r.Register(Entry{GroupID: "g_missing", Dir: paths.GroupDir("g_missing")}))
	require.NoError(t, r.SetActive("g_missing"))

	require.NoError(t, os.MkdirAll(paths.GroupDir("g_ok"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(paths.GroupDir("g_ok"), "group.yaml"), []byte("group_id: g_ok\n"), 0o644))

	res, err := r.Reconcile(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"g_missing"}, res.Missing)
	assert.Empty(t, res.Removed)

	entries, err := r.List()
	require.NoError(t, err)
	assert.Len(t, entries, 2, "non-removing reconcile must not purge entries")

	res, err = r.Reconcile(true)
	require.NoError(t, err)
	assert.Equal(t, []string{"g_missing"}, res.Removed)

	entries, err = r.List()
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	active, err := r.Active()
	require.NoError(t, err)
	assert.Equal(t, "", active, "removing the active group must clear the pointer")
}
