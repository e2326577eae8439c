package ipc

import (
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/inbox"
	"github.com/cccc-dev/cccc/internal/ledger"
)

// ChatRuntime bundles the dependencies chat/inbox/notify ops need.
type ChatRuntime struct {
	Groups *group.Store
	Ledger *ledger.Store
	Inbox  *inbox.Store
}

// RegisterChatOps wires send/reply/inbox_*/chat_ack/system_notify/notify_ack
// (spec §6.1 "Chat/inbox" and "System notify" groups).
func RegisterChatOps(d *Dispatcher, rt ChatRuntime) {
	d.Register("send", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		text, err := ctx.StrRequired("text")
		if err != nil {
			return nil, err
		}
		priority := ledger.PriorityNormal
		if ctx.Str("priority") == string(ledger.PriorityAttention) {
			priority = ledger.PriorityAttention
		}
		data := map[string]any{
			"text":           text,
			"to":             ctx.StrSlice("to"),
			"priority":       string(priority),
			"reply_required": ctx.Bool("reply_required"),
		}
		return rt.Ledger.Append(groupID, ledger.Event{
			Kind: ledger.KindChatMessage, GroupID: groupID, By: ctx.By, Data: data,
		})
	}, nil)

	d.Register("reply", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		text, err := ctx.StrRequired("text")
		if err != nil {
			return nil, err
		}
		replyTo, err := ctx.StrRequired("reply_to")
		if err != nil {
			return nil, err
		}
		original, err := rt.Ledger.FindEvent(groupID, replyTo)
		if err != nil {
			return nil, err
		}
		data := map[string]any{
			"text":     text,
			"to":       []string{original.By},
			"priority": string(ledger.PriorityNormal),
			"reply_to": replyTo,
		}
		return rt.Ledger.Append(groupID, ledger.Event{
			Kind: ledger.KindChatMessage, GroupID: groupID, By: ctx.By, Data: data,
		})
	}, nil)

	d.Register("send_cross_group", func(ctx *OpContext) (any, error) {
		srcGroupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		targetGroupID, err := ctx.StrRequired("target_group_id")
		if err != nil {
			return nil, err
		}
		text, err := ctx.StrRequired("text")
		if err != nil {
			return nil, err
		}
		if _, err := rt.Groups.Load(targetGroupID); err != nil {
			return nil, err
		}

		priority := ledger.PriorityNormal
		if ctx.Str("priority") == string(ledger.PriorityAttention) {
			priority = ledger.PriorityAttention
		}
		data := map[string]any{
			"text":           text,
			"to":             ctx.StrSlice("to"),
			"priority":       string(priority),
			"reply_required": ctx.Bool("reply_required"),
			"provenance": map[string]any{
				"source_group_id": srcGroupID,
				"source_event_id": ctx.Str("source_event_id"),
			},
		}
		return rt.Ledger.Append(targetGroupID, ledger.Event{
			Kind: ledger.KindChatMessage, GroupID: targetGroupID, By: ctx.By, Data: data,
		})
	}, nil)

	d.Register("chat_ack", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		eventID, err := ctx.StrRequired("event_id")
		if err != nil {
			return nil, err
		}
		return rt.Ledger.Append(groupID, ledger.Event{
			Kind: ledger.KindChatAck, GroupID: groupID, By: ctx.By,
			Data: map[string]any{"event_id": eventID},
		})
	}, RequireRecipientSelf())

	d.Register("inbox_list", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		g, err := rt.Groups.Load(groupID)
		if err != nil {
			return nil, err
		}
		limit := ctx.Int("limit")
		filter := inbox.KindFilter(ctx.Str("filter"))
		if filter == "" {
			filter = inbox.KindFilterAll
		}
		events, err := rt.Inbox.UnreadMessages(g, actorID, limit, filter)
		if err != nil {
			return nil, err
		}
		obligations, err := rt.Inbox.GetObligationStatusBatch(groupID, events)
		if err != nil {
			return nil, err
		}
		return map[string]any{"events": events, "obligations": obligations}, nil
	}, nil)

	d.Register("inbox_mark_read", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		eventID, err := ctx.StrRequired("event_id")
		if err != nil {
			return nil, err
		}
		ev, err := rt.Ledger.FindEvent(groupID, eventID)
		if err != nil {
			return nil, err
		}
		if err := rt.Inbox.SetCursor(groupID, actorID, inbox.Cursor{EventID: ev.ID, Ts: ev.Ts}); err != nil {
			return nil, err
		}
		return map[string]any{"event_id": ev.ID}, nil
	}, nil)

	d.Register("inbox_mark_all_read", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		all, err := rt.Ledger.All(groupID)
		if err != nil {
			return nil, err
		}
		if len(all) == 0 {
			return map[string]any{"event_id": ""}, nil
		}
		last := all[len(all)-1]
		if err := rt.Inbox.SetCursor(groupID, actorID, inbox.Cursor{EventID: last.ID, Ts: last.Ts}); err != nil {
			return nil, err
		}
		return map[string]any{"event_id": last.ID}, nil
	}, nil)

	d.Register("system_notify", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		text, err := ctx.StrRequired("text")
		if err != nil {
			return nil, err
		}
		kind := ctx.Str("kind")
		if kind == "" {
			kind = string(ledger.NotifyInfo)
		}
		data := map[string]any{
			"kind":            kind,
			"text":            text,
			"target_actor_id": ctx.Str("target_actor_id"),
			"requires_ack":    ctx.Bool("requires_ack"),
		}
		if ctx.Str("priority") == string(ledger.PriorityAttention) {
			data["priority"] = string(ledger.PriorityAttention)
		}
		return rt.Ledger.Append(groupID, ledger.Event{
			Kind: ledger.KindSystemNotify, GroupID: groupID, By: ctx.By, Data: data,
		})
	}, nil)

	d.Register("notify_ack", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		eventID, err := ctx.StrRequired("event_id")
		if err != nil {
			return nil, err
		}
		return rt.Ledger.Append(groupID, ledger.Event{
			Kind: ledger.KindSystemNotifyAck, GroupID: groupID, By: ctx.By,
			Data: map[string]any{"event_id": eventID},
		})
	}, nil)
}
