package delivery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cccc-dev/cccc/internal/storage"
)

func TestLoadPreamble_FallsBackToDefaultWithoutOverride(t *testing.T) {
	paths := storage.New(t.TempDir())
	got, err := LoadPreamble(paths, "g_1")
	require.NoError(t, err)
	assert.Equal(t, defaultPreamble, got)
}

func TestLoadPreamble_UsesGroupOverrideWhenPresent(t *testing.T) {
	paths := storage.New(t.TempDir())
	require.NoError(t, os.MkdirAll(paths.PromptsDir("g_1"), 0o755))
	override := filepath.Join(paths.PromptsDir("g_1"), preambleFileName)
	require.NoError(t, os.WriteFile(override, []byte("custom preamble\n"), 0o644))

	got, err := LoadPreamble(paths, "g_1")
	require.NoError(t, err)
	assert.Equal(t, "custom preamble\n", got)
}

func TestPreambleSent_NeedsSentAndClearRoundTrip(t *testing.T) {
	paths := storage.New(t.TempDir())

	needs, err := NeedsPreamble(paths, "g_1", "a_1", "sess_1")
	require.NoError(t, err)
	assert.True(t, needs, "never-sent actor needs the preamble")

	require.NoError(t, MarkPreambleSent(paths, "g_1", "a_1", "sess_1"))

	needs, err = NeedsPreamble(paths, "g_1", "a_1", "sess_1")
	require.NoError(t, err)
	assert.False(t, needs, "same session should not need it again")

	needs, err = NeedsPreamble(paths, "g_1", "a_1", "sess_2")
	require.NoError(t, err)
	assert.True(t, needs, "a new session key re-primes")

	require.NoError(t, ClearPreambleSent(paths, "g_1", "a_1"))
	needs, err = NeedsPreamble(paths, "g_1", "a_1", "sess_1")
	require.NoError(t, err)
	assert.True(t, needs, "clearing forgets the prior session entirely")
}
