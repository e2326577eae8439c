package ipc

import (
	"encoding/json"
	"io"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/inbox"
	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/runner/pty"
)

// Broadcaster is the subset of internal/broadcast.Broadcaster the
// events_stream hijack needs, kept as an interface here so this package
// does not depend on the broadcaster's concrete type or NATS wiring.
// overflowed closes if the subscriber fell behind and was dropped
// (spec §4.H "slow consumers receive a stream_overflow final frame").
type Broadcaster interface {
	Subscribe(groupID string) (ch <-chan ledger.Event, overflowed <-chan struct{}, cancel func())
}

// writeLine marshals v as JSON and writes it terminated by a newline,
// the same framing the server's ordinary response path uses.
func writeLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// TermAttach implements the term_attach hijack (spec §4.H): after an
// ack, the connection becomes a raw bidirectional pipe to the actor's
// PTY until either side closes it.
func TermAttach(ptySup *pty.Supervisor) HijackFunc {
	return func(ctx *OpContext) error {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return err
		}
		sess, ok := ptySup.Get(groupID, actorID)
		if !ok || !sess.IsRunning() {
			return apperr.New(apperr.DaemonUnavailable, "actor is not running", nil)
		}

		if err := writeLine(ctx.Conn, okResponse(ctx.ID, map[string]any{"attached": true})); err != nil {
			return nil // client already gone; nothing left to do
		}

		// Replay the retained backlog first so a newly attaching client
		// sees recent history, then switch to the live feed.
		for _, chunk := range sess.TailOutput() {
			if _, err := ctx.Conn.Write(chunk.Data); err != nil {
				return nil
			}
		}

		live := sess.Subscribe()
		defer sess.Unsubscribe(live)

		done := make(chan struct{})
		go func() {
			defer close(done)
			buf := make([]byte, 4096)
			for {
				n, err := ctx.Conn.Read(buf)
				if n > 0 {
					_ = sess.WriteRaw(buf[:n])
				}
				if err != nil {
					return
				}
			}
		}()

		for {
			select {
			case chunk, ok := <-live:
				if !ok {
					return nil
				}
				if _, err := ctx.Conn.Write(chunk.Data); err != nil {
					return nil
				}
			case <-done:
				return nil
			}
		}
	}
}

// visibleToActor applies the events_stream permission scope (spec
// §4.J): the user sees everything; an agent sees group-scope events
// (group.*, actor.*) plus chat/notify events addressed to it or
// authored by it, and nothing addressed to a different actor.
func visibleToActor(g *group.Group, by string, ev ledger.Event) bool {
	if by == "user" || by == "" {
		return true
	}
	switch ev.Kind {
	case ledger.KindChatMessage, ledger.KindChatRead, ledger.KindChatAck:
		if ev.By == by {
			return true
		}
		return inbox.IsMessageForActor(g, by, ev)
	case ledger.KindSystemNotify, ledger.KindSystemNotifyAck:
		if ev.By == by {
			return true
		}
		target, _ := ev.Data["target_actor_id"].(string)
		return target == "" || target == by
	default:
		return true
	}
}

// EventsStream implements the events_stream hijack (spec §4.H, §6.2):
// after an ack, emits one JSON event per line for every matching ledger
// event from the resume point onward, then keeps streaming live events
// from the broadcaster until the client disconnects or a slow-consumer
// overflow forces the connection closed.
func EventsStream(groups *group.Store, ledgerStore *ledger.Store, broadcaster Broadcaster) HijackFunc {
	return func(ctx *OpContext) error {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return err
		}
		g, err := groups.Load(groupID)
		if err != nil {
			return err
		}
		sinceEventID := ctx.Str("since_event_id")
		kinds := map[string]bool{}
		for _, k := range ctx.StrSlice("kinds") {
			kinds[k] = true
		}
		matches := func(ev ledger.Event) bool {
			if len(kinds) != 0 && !kinds[string(ev.Kind)] {
				return false
			}
			return visibleToActor(g, ctx.By, ev)
		}

		if err := writeLine(ctx.Conn, okResponse(ctx.ID, map[string]any{"streaming": true})); err != nil {
			return nil
		}

		live, overflowed, cancel := broadcaster.Subscribe(groupID)
		defer cancel()

		afterCursor := sinceEventID == ""
		replayErr := ledgerStore.IterEvents(groupID, func(ev ledger.Event) error {
			if !afterCursor {
				if ev.ID == sinceEventID {
					afterCursor = true
				}
				return nil
			}
			if !matches(ev) {
				return nil
			}
			return writeLine(ctx.Conn, ev)
		})
		if replayErr != nil {
			return nil
		}

		for {
			select {
			case ev, ok := <-live:
				if !ok {
					return nil
				}
				if !matches(ev) {
					continue
				}
				if err := writeLine(ctx.Conn, ev); err != nil {
					return nil
				}
			case <-overflowed:
				_ = writeLine(ctx.Conn, errResponse(ctx.ID, apperr.New(apperr.StreamOverflow, "subscriber fell behind", nil)))
				return nil
			}
		}
	}
}
