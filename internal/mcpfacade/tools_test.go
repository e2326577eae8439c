package mcpfacade

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cccc-dev/cccc/internal/ipc"
)

func TestResolveIdentity_EnvOnly(t *testing.T) {
	t.Setenv("CCCC_ACTOR_ID_TEST", "a_foreman")
	got, err := resolveIdentity("CCCC_ACTOR_ID_TEST", "actor_id", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "a_foreman", got)
}

func TestResolveIdentity_EnvArgMismatch(t *testing.T) {
	t.Setenv("CCCC_ACTOR_ID_TEST", "a_foreman")
	_, err := resolveIdentity("CCCC_ACTOR_ID_TEST", "actor_id", map[string]any{"actor_id": "a_other"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "actor_id_mismatch")
}

func TestResolveIdentity_ArgOnlyWhenEnvUnset(t *testing.T) {
	_ = os.Unsetenv("CCCC_ACTOR_ID_TEST_UNSET")
	got, err := resolveIdentity("CCCC_ACTOR_ID_TEST_UNSET", "actor_id", map[string]any{"actor_id": "a_peer1"})
	require.NoError(t, err)
	assert.Equal(t, "a_peer1", got)
}

func TestOpHandler_RefusesUserActorID(t *testing.T) {
	t.Setenv("CCCC_GROUP_ID", "g1")
	t.Setenv("CCCC_ACTOR_ID", "user")
	defer os.Unsetenv("CCCC_GROUP_ID")
	defer os.Unsetenv("CCCC_ACTOR_ID")

	d := ipc.NewDispatcher()
	d.Register("ping", func(ctx *ipc.OpContext) (any, error) { return "pong", nil }, nil)

	handler := opHandler(d, "ping")
	result, err := handler(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestOpHandler_ForwardsToDispatcher(t *testing.T) {
	t.Setenv("CCCC_GROUP_ID", "g1")
	t.Setenv("CCCC_ACTOR_ID", "a_peer1")
	defer os.Unsetenv("CCCC_GROUP_ID")
	defer os.Unsetenv("CCCC_ACTOR_ID")

	d := ipc.NewDispatcher()
	d.Register("ping", func(ctx *ipc.OpContext) (any, error) {
		return map[string]any{"by": ctx.By, "group_id": ctx.Args["group_id"]}, nil
	}, nil)

	handler := opHandler(d, "ping")
	result, err := handler(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := result.Content[0].(mcp.TextContent).Text
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	assert.Equal(t, "a_peer1", decoded["by"])
	assert.Equal(t, "g1", decoded["group_id"])
}
