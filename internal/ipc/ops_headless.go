package ipc

import "github.com/cccc-dev/cccc/internal/runner/headless"

// RegisterHeadlessOps wires headless_status/set_status/ack_message
// (spec §6.1 "IM & misc" group; grounded on the original
// cccc_headless_status/set_status/ack_message MCP tools — "Only for
// runner=headless actors"). Left ungated: a headless actor reports its
// own status, there is nothing for a permission check to gate beyond
// what actor identity resolution already does.
func RegisterHeadlessOps(d *Dispatcher, reg *headless.Registry) {
	d.Register("headless_status", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		state, ok := reg.Get(groupID, actorID)
		if !ok {
			return map[string]any{"running": false}, nil
		}
		return state, nil
	}, nil)

	d.Register("headless_set_status", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		status, err := ctx.StrRequired("status")
		if err != nil {
			return nil, err
		}
		return reg.SetWorkStatus(groupID, actorID, status, ctx.Str("task_id")), nil
	}, nil)

	d.Register("headless_ack_message", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		messageID, err := ctx.StrRequired("message_id")
		if err != nil {
			return nil, err
		}
		reg.AckMessage(groupID, actorID, messageID)
		return map[string]any{"message_id": messageID}, nil
	}, nil)
}
