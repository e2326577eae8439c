package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cccc-dev/cccc/internal/config"
	"github.com/cccc-dev/cccc/internal/storage"
)

func termCfg() config.TerminalConfig {
	return config.TerminalConfig{PerActorBytes: 10 * 1024 * 1024, MaxBytesCap: 50 * 1024 * 1024}
}

func TestNewManager_SeedsDefaultsWhenNoSettingsFile(t *testing.T) {
	paths := storage.New(t.TempDir())
	mgr, err := NewManager(paths, termCfg(), nil)
	require.NoError(t, err)

	s := mgr.Get()
	assert.Equal(t, int64(10*1024*1024), s.TerminalTranscript.PerActorBytes)
	assert.Equal(t, int64(50*1024*1024), s.TerminalTranscript.MaxBytesCap)
	assert.False(t, s.TracingEnabled)
}

func TestUpdate_PersistsAndClampsToHardCap(t *testing.T) {
	paths := storage.New(t.TempDir())
	mgr, err := NewManager(paths, termCfg(), nil)
	require.NoError(t, err)

	huge := int64(500 * 1024 * 1024)
	updated, err := mgr.Update(Patch{PerActorBytes: &huge})
	require.NoError(t, err)
	assert.Equal(t, int64(hardMaxBytesCap), updated.TerminalTranscript.PerActorBytes)
	assert.Equal(t, int64(hardMaxBytesCap), updated.TerminalTranscript.MaxBytesCap)

	reloaded, err := loadSettings(paths, termCfg())
	require.NoError(t, err)
	assert.Equal(t, int64(hardMaxBytesCap), reloaded.TerminalTranscript.PerActorBytes)
}

func TestUpdate_EnableTracingWithoutEndpointFails(t *testing.T) {
	paths := storage.New(t.TempDir())
	mgr, err := NewManager(paths, termCfg(), nil)
	require.NoError(t, err)

	enabled := true
	_, err = mgr.Update(Patch{TracingEnabled: &enabled})
	assert.Error(t, err)
	assert.False(t, mgr.Get().TracingEnabled, "settings should not report tracing enabled when the tracer failed to start")
}

func TestArgsToPatch_CoercesJSONNumbers(t *testing.T) {
	p, err := argsToPatch(map[string]any{
		"per_actor_bytes": float64(1024),
		"max_bytes_cap":   float64(2048),
		"otlp_endpoint":   "collector:4318",
	})
	require.NoError(t, err)
	require.NotNil(t, p.PerActorBytes)
	require.NotNil(t, p.MaxBytesCap)
	assert.Equal(t, int64(1024), *p.PerActorBytes)
	assert.Equal(t, int64(2048), *p.MaxBytesCap)
	assert.Equal(t, "collector:4318", *p.OTLPEndpoint)
}
