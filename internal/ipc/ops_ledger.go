package ipc

import (
	"time"

	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/inbox"
	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/snapshot"
)

// RegisterLedgerOps wires ledger_snapshot/ledger_compact (spec §4.D,
// §6.1 "Maintenance" group).
func RegisterLedgerOps(d *Dispatcher, groups *group.Store, ledgerStore *ledger.Store, inboxStore *inbox.Store, snap *snapshot.Store) {
	userOrForeman := RequireUserOrForeman(groups)

	d.Register("ledger_snapshot", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		g, err := groups.Load(groupID)
		if err != nil {
			return nil, err
		}
		if err := snap.Rebuild(g, ledgerStore, inboxStore, time.Now().UTC()); err != nil {
			return nil, err
		}
		actors, err := snap.Actors(groupID)
		if err != nil {
			return nil, err
		}
		obligations, err := snap.OpenObligations(groupID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"actors": actors, "obligations": obligations}, nil
	}, nil)

	// ledger_compact keeps an event if it falls inside the caller's
	// "recent window" (id >= before_event_id), is still referenced by an
	// open reply/ack obligation, or is at/after some actor's unread
	// cursor — matching spec §4.D's "never deletes events that any actor
	// still needs". Event ids are ulid-like and monotonic, so string
	// comparison orders them the same as creation order.
	d.Register("ledger_compact", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		watermark, err := ctx.StrRequired("before_event_id")
		if err != nil {
			return nil, err
		}
		g, err := groups.Load(groupID)
		if err != nil {
			return nil, err
		}

		all, err := ledgerStore.All(groupID)
		if err != nil {
			return nil, err
		}
		var chatEvents []ledger.Event
		for _, ev := range all {
			if ev.Kind == ledger.KindChatMessage {
				chatEvents = append(chatEvents, ev)
			}
		}
		obligations, err := inboxStore.GetObligationStatusBatch(groupID, chatEvents)
		if err != nil {
			return nil, err
		}
		openObligation := make(map[string]bool, len(obligations))
		for _, ob := range obligations {
			if (ob.ReplyRequired && !ob.Replied) || (ob.RequiresAck && !ob.Acked) {
				openObligation[ob.EventID] = true
			}
		}

		cursors := make([]string, 0, len(g.Actors))
		for _, actor := range g.Actors {
			c, err := inboxStore.GetCursor(groupID, actor.ID)
			if err != nil {
				return nil, err
			}
			cursors = append(cursors, c.EventID)
		}

		keep := func(ev ledger.Event) bool {
			if ev.ID >= watermark {
				return true
			}
			if openObligation[ev.ID] {
				return true
			}
			for _, cursorEventID := range cursors {
				if cursorEventID == "" || ev.ID >= cursorEventID {
					return true
				}
			}
			return false
		}

		stamp := time.Now().UTC().Format("20060102-150405")
		archived, kept, err := ledgerStore.Compact(groupID, keep, stamp)
		if err != nil {
			return nil, err
		}
		return map[string]any{"archived": archived, "kept": kept}, nil
	}, userOrForeman)
}
