package ipc

import (
	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/automation"
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/registry"
	"github.com/cccc-dev/cccc/internal/storage"
)

// RegisterGroupOps wires group_show/update/delete/detach_scope and
// group_set_state/group_settings_update (spec §6.1 "Group core",
// "Group state", "Group settings" groups).
func RegisterGroupOps(d *Dispatcher, paths storage.Paths, reg *registry.Registry, groups *group.Store, ledgerStore *ledger.Store, auto *automation.Manager) {
	userOrForeman := RequireUserOrForeman(groups)

	d.Register("group_show", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		return groups.Load(groupID)
	}, nil)

	d.Register("group_update", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		return groups.Mutate(groupID, func(g *group.Group) error {
			if title, ok := ctx.Args["title"].(string); ok {
				g.Title = title
			}
			if topic, ok := ctx.Args["topic"].(string); ok {
				g.Topic = topic
			}
			return nil
		})
	}, userOrForeman)

	d.Register("group_settings_update", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		return groups.Mutate(groupID, func(g *group.Group) error {
			if v, ok := ctx.Args["default_send_to"].(string); ok {
				g.Messaging.DefaultSendTo = group.SendTo(v)
			}
			if v, ok := ctx.Args["min_interval_seconds"].(float64); ok {
				g.Delivery.MinIntervalSeconds = int(v)
			}
			if v, ok := ctx.Args["auto_mark_on_delivery"].(bool); ok {
				g.Delivery.AutoMarkOnDelivery = v
			}
			if v, ok := ctx.Args["terminal_visibility"].(string); ok {
				g.Terminal.Visibility = group.TranscriptVisibility(v)
			}
			if v, ok := ctx.Args["notify_tail"].(bool); ok {
				g.Terminal.NotifyTail = v
			}
			if v, ok := ctx.Args["notify_lines"].(float64); ok {
				g.Terminal.NotifyLines = int(v)
			}
			return nil
		})
	}, userOrForeman)

	d.Register("group_set_state", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		newState, err := ctx.StrRequired("state")
		if err != nil {
			return nil, err
		}

		before, err := groups.Load(groupID)
		if err != nil {
			return nil, err
		}
		wasActive := before.State == group.StateActive

		g, err := groups.Mutate(groupID, func(g *group.Group) error {
			g.State = group.State(newState)
			return nil
		})
		if err != nil {
			return nil, err
		}

		// Any state -> active is a resume: reset automation timers to now
		// with no catch-up (spec §4.I).
		if !wasActive && g.State == group.StateActive {
			if err := auto.OnResume(groupID); err != nil {
				return nil, err
			}
		}
		return g, nil
	}, userOrForeman)

	d.Register("group_detach_scope", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		scopeKey, err := ctx.StrRequired("scope_key")
		if err != nil {
			return nil, err
		}
		return groups.Mutate(groupID, func(g *group.Group) error {
			if g.FindScope(scopeKey) == nil {
				return apperr.New(apperr.ScopeNotAttached, "scope not attached: "+scopeKey, nil)
			}
			kept := g.Scopes[:0]
			for _, s := range g.Scopes {
				if s.ScopeKey != scopeKey {
					kept = append(kept, s)
				}
			}
			g.Scopes = kept
			if g.ActiveScopeKey == scopeKey {
				g.ActiveScopeKey = ""
			}
			return nil
		})
	}, userOrForeman)

	d.Register("group_delete", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}

		unlock := groups.Lock(groupID)
		defer unlock()

		if _, err := groups.Load(groupID); err != nil {
			return nil, err
		}
		if _, err := ledgerStore.Append(groupID, ledger.Event{
			Kind: ledger.KindGroupDelete, GroupID: groupID, By: ctx.By,
		}); err != nil {
			return nil, err
		}
		if err := reg.Unregister(groupID); err != nil {
			return nil, err
		}
		return map[string]any{"group_id": groupID}, nil
	}, userOrForeman)
}
