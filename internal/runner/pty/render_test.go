package pty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTail_TrimsTrailingBlankRowsAndLimitsLineCount(t *testing.T) {
	data := []byte("line one\r\nline two\r\nline three\r\n")
	lines := RenderTail(data, 40, 10, 2)

	require.NotEmpty(t, lines)
	assert.LessOrEqual(t, len(lines), 2)
	assert.Contains(t, lines[len(lines)-1], "line three")
}
