package pty

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cccc-dev/cccc/internal/group"
)

func TestFormatSubmit_Disciplines(t *testing.T) {
	assert.Equal(t, "hi\n", FormatSubmit("hi", group.SubmitEnter))
	assert.Equal(t, "hi\x1b\r", FormatSubmit("hi", group.SubmitCtrlEnter))
	assert.Equal(t, "\x1b[200~hi\x1b[201~", FormatSubmit("hi", group.SubmitPaste))
}

func TestNormalizeCommand_CodexGetsEnvInheritFlag_WithoutMutatingInput(t *testing.T) {
	original := []string{"codex"}
	out := NormalizeCommand(group.RuntimeCodex, original)

	assert.Equal(t, []string{"codex"}, original, "NormalizeCommand must not mutate the persisted command")
	assert.Equal(t, []string{"codex", "-c", "shell_environment_policy.inherit=all"}, out)
}

func TestNormalizeCommand_OtherRuntimesPassThrough(t *testing.T) {
	out := NormalizeCommand(group.RuntimeClaude, []string{"claude", "--resume"})
	assert.Equal(t, []string{"claude", "--resume"}, out)
}

func TestWriteInputrc_DisablesBracketedPaste(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inputrc")
	require.NoError(t, WriteInputrc(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "enable-bracketed-paste off")
}
