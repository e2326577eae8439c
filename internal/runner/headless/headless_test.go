package headless

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_IsIdempotentOnStartedAt(t *testing.T) {
	r := NewRegistry()
	s1 := r.Start("g_1", "a_1")
	s2 := r.Start("g_1", "a_1")
	assert.Equal(t, s1.StartedAt, s2.StartedAt)
}

func TestStop_KeepsLastAckedMessageVisible(t *testing.T) {
	r := NewRegistry()
	r.Start("g_1", "a_1")
	r.AckMessage("g_1", "a_1", "ev_5")
	r.Stop("g_1", "a_1")

	s, ok := r.Get("g_1", "a_1")
	require.True(t, ok)
	assert.Equal(t, StatusStopped, s.Status)
	assert.Equal(t, "ev_5", s.LastMessageIDAcked)
	assert.False(t, r.IsRunning("g_1", "a_1"))
}

func TestRemove_DropsState(t *testing.T) {
	r := NewRegistry()
	r.Start("g_1", "a_1")
	r.Remove("g_1", "a_1")

	_, ok := r.Get("g_1", "a_1")
	assert.False(t, ok)
}
