package mcpfacade

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/ipc"
)

// toolOp names a daemon op and the group_id/actor_id-agnostic args an
// MCP caller may pass beyond those two (spec §6.1 op tables).
type toolOp struct {
	name string // MCP tool name, e.g. "cccc_message_send"
	op   string // exactly one ipc op (spec §6.3 "map each MCP tool to exactly one daemon op")
}

// registerTools wires the agent-facing subset of dispatcher's op table
// as MCP tools — chat, inbox, notify, and self-lifecycle ops, the ones
// an autonomous agent drives itself rather than a human operator, plus
// ping (the other daemon-core ops and the group-admin ops stay
// socket-only). Grounded on the
// teacher's internal/mcpserver.registerTools (one mcp.NewTool +
// mcp.With* schema builder per tool, one handler closure per tool).
func registerTools(s *server.MCPServer, d *ipc.Dispatcher) {
	s.AddTool(
		mcp.NewTool("cccc_message_send",
			mcp.WithDescription("Send a chat message to other actors in your group."),
			mcp.WithString("to", mcp.Description("Recipient tokens: @all, @peers, @foreman, or specific actor ids (comma-separated). Defaults to @all.")),
			mcp.WithString("text", mcp.Required(), mcp.Description("Message body.")),
			mcp.WithString("priority", mcp.Description("normal (default) or attention.")),
			mcp.WithBoolean("reply_required", mcp.Description("Require recipients to reply before the obligation clears.")),
		),
		opHandler(d, "send"),
	)

	s.AddTool(
		mcp.NewTool("cccc_message_reply",
			mcp.WithDescription("Reply to a specific chat message by event id."),
			mcp.WithString("reply_to", mcp.Required(), mcp.Description("event_id of the message being replied to.")),
			mcp.WithString("text", mcp.Required(), mcp.Description("Reply body.")),
		),
		opHandler(d, "reply"),
	)

	s.AddTool(
		mcp.NewTool("cccc_message_ack",
			mcp.WithDescription("Acknowledge a chat message that required an ack."),
			mcp.WithString("event_id", mcp.Required(), mcp.Description("event_id being acknowledged.")),
		),
		opHandler(d, "chat_ack"),
	)

	s.AddTool(
		mcp.NewTool("cccc_inbox_list",
			mcp.WithDescription("List your unread inbox events since your cursor, with reply/ack obligation status."),
			mcp.WithNumber("limit", mcp.Description("Max events to return (0 = no limit).")),
			mcp.WithString("filter", mcp.Description("chat, notify, or all (default all).")),
		),
		opHandler(d, "inbox_list"),
	)

	s.AddTool(
		mcp.NewTool("cccc_inbox_mark_read",
			mcp.WithDescription("Advance your inbox cursor to a specific event."),
			mcp.WithString("event_id", mcp.Required(), mcp.Description("event_id to mark as read.")),
		),
		opHandler(d, "inbox_mark_read"),
	)

	s.AddTool(
		mcp.NewTool("cccc_inbox_mark_all_read",
			mcp.WithDescription("Advance your inbox cursor to the latest ledger event."),
		),
		opHandler(d, "inbox_mark_all_read"),
	)

	s.AddTool(
		mcp.NewTool("cccc_notify",
			mcp.WithDescription("Post a system notification, optionally requiring acknowledgement."),
			mcp.WithString("text", mcp.Required(), mcp.Description("Notification text.")),
			mcp.WithString("kind", mcp.Description("info (default) or error.")),
			mcp.WithString("target_actor_id", mcp.Description("Restrict visibility to one actor (empty = group-wide).")),
			mcp.WithBoolean("requires_ack", mcp.Description("Require an explicit cccc_notify_ack before the obligation clears.")),
		),
		opHandler(d, "system_notify"),
	)

	s.AddTool(
		mcp.NewTool("cccc_notify_ack",
			mcp.WithDescription("Acknowledge a system notification."),
			mcp.WithString("event_id", mcp.Required(), mcp.Description("event_id being acknowledged.")),
		),
		opHandler(d, "notify_ack"),
	)

	s.AddTool(
		mcp.NewTool("cccc_actor_restart",
			mcp.WithDescription("Restart your own runner session (e.g. to pick up a fresh context)."),
		),
		opHandler(d, "actor_restart"),
	)

	s.AddTool(
		mcp.NewTool("cccc_ping",
			mcp.WithDescription("Liveness check against the daemon."),
		),
		opHandler(d, "ping"),
	)
}

// opHandler builds a server.ToolHandlerFunc that forwards to exactly
// one ipc op, resolving group_id/actor_id per spec §6.3: env vars
// first, then arguments, mismatch is actor_id_mismatch, and
// actor_id=="user" is always refused since this façade is agents-only.
func opHandler(d *ipc.Dispatcher, op string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}

		groupID, err := resolveIdentity("CCCC_GROUP_ID", "group_id", args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		actorID, err := resolveIdentity("CCCC_ACTOR_ID", "actor_id", args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if actorID == "user" {
			return mcp.NewToolResultError("actor_id \"user\" may not call the MCP facade"), nil
		}

		args["group_id"] = groupID
		args["actor_id"] = actorID
		if s, ok := args["to"].(string); ok {
			to := []any{}
			for _, part := range strings.Split(s, ",") {
				if p := strings.TrimSpace(part); p != "" {
					to = append(to, p)
				}
			}
			args["to"] = to
		}

		opCtx := &ipc.OpContext{By: actorID, ID: uuid.NewString(), Args: args}
		resp, _ := d.Dispatch(ipc.Request{Op: op, Args: args, ID: opCtx.ID}, opCtx)
		if !resp.OK {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %s", resp.Error.Code, resp.Error.Message)), nil
		}

		body, err := json.Marshal(resp.Result)
		if err != nil {
			return mcp.NewToolResultError(apperr.Internal(err).Error()), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

// resolveIdentity applies spec §6.3's env-first resolution: if the env
// var is set, an argument value must match it exactly; if the env var
// is unset, the argument (if any) is used as-is.
func resolveIdentity(envVar, argKey string, args map[string]any) (string, error) {
	fromEnv := os.Getenv(envVar)
	fromArg, _ := args[argKey].(string)

	if fromEnv == "" {
		if fromArg == "" {
			return "", apperr.New(apperr.InvalidRequest, argKey+" is required", nil)
		}
		return fromArg, nil
	}
	if fromArg != "" && fromArg != fromEnv {
		return "", apperr.New(apperr.ActorIDMismatch, fmt.Sprintf("%s=%q does not match %s=%q", argKey, fromArg, envVar, fromEnv), nil)
	}
	return fromEnv, nil
}
