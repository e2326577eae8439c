package ipc

import (
	"time"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/registry"
	"github.com/cccc-dev/cccc/internal/storage"
)

// RegisterRegistryOps wires groups/registry_reconcile/attach/group_create
// (spec §6.1 "Registry" group).
func RegisterRegistryOps(d *Dispatcher, paths storage.Paths, reg *registry.Registry, groups *group.Store, ledgerStore *ledger.Store) {
	d.Register("groups", func(ctx *OpContext) (any, error) {
		entries, err := reg.List()
		if err != nil {
			return nil, err
		}
		active, err := reg.Active()
		if err != nil {
			return nil, err
		}
		return map[string]any{"groups": entries, "active_group_id": active}, nil
	}, nil)

	d.Register("registry_reconcile", func(ctx *OpContext) (any, error) {
		return reg.Reconcile(ctx.Bool("remove_missing"))
	}, nil)

	d.Register("attach", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		if _, ok, err := reg.Get(groupID); err != nil {
			return nil, err
		} else if !ok {
			return nil, apperr.NotFound(apperr.GroupNotFound, "group not registered: "+groupID)
		}
		if err := reg.SetActive(groupID); err != nil {
			return nil, err
		}
		return map[string]any{"group_id": groupID}, nil
	}, nil)

	d.Register("group_use", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		if err := reg.SetActive(groupID); err != nil {
			return nil, err
		}
		return map[string]any{"group_id": groupID}, nil
	}, nil)

	d.Register("group_create", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		title := ctx.Str("title")
		if title == "" {
			title = groupID
		}

		g := &group.Group{
			GroupID: groupID,
			Title:   title,
			Topic:   ctx.Str("topic"),
			State:   group.StateActive,
			Messaging: group.Messaging{DefaultSendTo: group.SendToForeman},
			Delivery:  group.Delivery{MinIntervalSeconds: 3, AutoMarkOnDelivery: true},
			Terminal:  group.TerminalTranscript{Visibility: group.VisibilityForeman, NotifyTail: true, NotifyLines: 40},
		}

		unlock := groups.Lock(groupID)
		defer unlock()

		if err := groups.Create(g); err != nil {
			return nil, err
		}
		if err := reg.Register(registry.Entry{
			GroupID: groupID, Dir: paths.GroupDir(groupID), Title: title, CreatedAt: time.Now().UTC(),
		}); err != nil {
			return nil, err
		}
		if _, err := ledgerStore.Append(groupID, ledger.Event{
			Kind: ledger.KindGroupCreate, GroupID: groupID, By: ctx.By,
			Data: map[string]any{"title": title},
		}); err != nil {
			return nil, err
		}
		return g, nil
	}, nil)
}
