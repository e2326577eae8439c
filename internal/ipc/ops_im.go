package ipc

import (
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/imbridge"
)

// RegisterIMOps wires im_* (spec §6.1 "IM & misc" group; on-disk layout
// "state/im_* (pending keys, authorized chats, bridge pid)"). Grounded
// on original_source's ports/im/auth.KeyManager and
// daemon/ops/im_ops.py's im_bind_chat/im_list_authorized/im_revoke_chat.
// Mutations are user-or-foreman gated: pairing a chat to a group is an
// operator action, not something any actor does on its own behalf.
func RegisterIMOps(d *Dispatcher, groups *group.Store, store *imbridge.Store) {
	userOrForeman := RequireUserOrForeman(groups)

	d.Register("im_status", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		return store.Status(groupID)
	}, nil)

	d.Register("im_set_config", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		var enabled *bool
		if v, ok := ctx.Args["enabled"].(bool); ok {
			enabled = &v
		}
		settings, _ := ctx.Args["settings"].(map[string]any)
		var settingsMap map[string]string
		if settings != nil {
			settingsMap = make(map[string]string, len(settings))
			for k, v := range settings {
				if s, ok := v.(string); ok {
					settingsMap[k] = s
				}
			}
		}
		return store.SetConfig(groupID, enabled, ctx.Str("provider"), settingsMap)
	}, userOrForeman)

	d.Register("im_generate_key", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		chatID, err := ctx.StrRequired("chat_id")
		if err != nil {
			return nil, err
		}
		return store.GenerateKey(groupID, chatID, ctx.Int("thread_id"), ctx.Str("platform"))
	}, userOrForeman)

	d.Register("im_bind_chat", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		key, err := ctx.StrRequired("key")
		if err != nil {
			return nil, err
		}
		return store.BindChat(groupID, key)
	}, userOrForeman)

	d.Register("im_list_pending", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		pending, err := store.ListPending(groupID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"pending": pending}, nil
	}, userOrForeman)

	d.Register("im_list_authorized", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		authorized, err := store.ListAuthorized(groupID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"authorized": authorized}, nil
	}, userOrForeman)

	d.Register("im_revoke_chat", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		chatID, err := ctx.StrRequired("chat_id")
		if err != nil {
			return nil, err
		}
		revoked, err := store.RevokeChat(groupID, chatID, ctx.Int("thread_id"))
		if err != nil {
			return nil, err
		}
		return map[string]any{"revoked": revoked}, nil
	}, userOrForeman)

	d.Register("im_set_bridge_pid", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		pid := ctx.Int("pid")
		if err := store.SetBridgePID(groupID, pid); err != nil {
			return nil, err
		}
		return map[string]any{"pid": pid}, nil
	}, userOrForeman)

	d.Register("im_clear_bridge_pid", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		if err := store.ClearBridgePID(groupID); err != nil {
			return nil, err
		}
		return map[string]any{"cleared": true}, nil
	}, userOrForeman)
}
