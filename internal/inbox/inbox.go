// Package inbox implements §4.E: per-actor read cursors over a group's
// ledger, recipient-token evaluation, and reply/attention obligation
// tracking. It holds no state of its own beyond the on-disk cursor
// files — every call re-reads what it needs from ledger.Store and
// group.Group, matching the daemon-wide "no in-memory cache" rule.
package inbox

import (
	"os"
	"time"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/storage"
)

// Cursor is the on-disk shape of a per-actor read position.
type Cursor struct {
	EventID string    `json:"event_id"`
	Ts      time.Time `json:"ts"`
}

// Store reads and advances per-actor cursors and derives obligation
// state from ledger events.
type Store struct {
	paths  storage.Paths
	ledger *ledger.Store
}

func NewStore(paths storage.Paths, l *ledger.Store) *Store {
	return &Store{paths: paths, ledger: l}
}

// GetCursor returns the actor's current cursor, or the zero Cursor if
// none has been set yet (meaning: unread from the start of the ledger).
func (s *Store) GetCursor(groupID, actorID string) (Cursor, error) {
	var c Cursor
	err := storage.ReadJSON(s.paths.CursorFile(groupID, actorID), &c)
	if err != nil {
		if os.IsNotExist(err) {
			return Cursor{}, nil
		}
		return Cursor{}, apperr.Internal(err)
	}
	return c, nil
}

// SetCursor atomically advances the actor's cursor. The caller must
// pass an (event_id, ts) pair taken from a real ledger event.
func (s *Store) SetCursor(groupID, actorID string, c Cursor) error {
	if c.EventID == "" {
		return apperr.Invalid("cursor event_id must not be empty")
	}
	return storage.WriteJSONAtomic(s.paths.CursorFile(groupID, actorID), c, 0o644)
}

// IsMessageForActor evaluates a chat.message's recipient tokens against
// the given actor's identity and role (spec §4.E). A sender never sees
// their own chat message in their own inbox, regardless of addressing.
func IsMessageForActor(g *group.Group, actorID string, ev ledger.Event) bool {
	if ev.Kind != ledger.KindChatMessage {
		return false
	}
	if ev.By == actorID {
		return false
	}

	to := stringSlice(ev.Data["to"])
	if len(to) == 0 {
		return true // undirected chat is visible to everyone
	}

	actor := g.FindActor(actorID)

	for _, token := range to {
		switch token {
		case "@all":
			return true
		case "@peers":
			if actor == nil || actor.Role != group.RolePeer {
				continue
			}
			return true
		case "@foreman":
			if actor == nil || actor.Role != group.RoleForeman {
				continue
			}
			return true
		default:
			if token == actorID {
				return true
			}
		}
	}
	return false
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ObligationStatus is the per-recipient state of one chat.message's
// obligations (spec §4.E).
type ObligationStatus struct {
	EventID       string `json:"event_id"`
	ReplyRequired bool   `json:"reply_required"`
	Replied       bool   `json:"replied"`
	RequiresAck   bool   `json:"requires_ack"`
	Acked         bool   `json:"acked"`
}

// GetObligationStatusBatch computes, for every chat.message in events,
// whether its reply/ack obligations have been satisfied. It correlates
// against the FULL ledger (not just `events`) because a satisfying
// chat.message(reply_to=X) or chat.ack(event_id=X) may live anywhere
// after X.
func (s *Store) GetObligationStatusBatch(groupID string, events []ledger.Event) ([]ObligationStatus, error) {
	replied := make(map[string]bool)
	acked := make(map[string]bool)

	err := s.ledger.IterEvents(groupID, func(ev ledger.Event) error {
		switch ev.Kind {
		case ledger.KindChatMessage:
			if replyTo, ok := ev.Data["reply_to"].(string); ok && replyTo != "" {
				replied[replyTo] = true
			}
		case ledger.KindChatAck:
			if id, ok := ev.Data["event_id"].(string); ok && id != "" {
				acked[id] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]ObligationStatus, 0, len(events))
	for _, ev := range events {
		if ev.Kind != ledger.KindChatMessage {
			continue
		}
		replyRequired, _ := ev.Data["reply_required"].(bool)
		priority, _ := ev.Data["priority"].(string)
		requiresAck := priority == string(ledger.PriorityAttention)

		out = append(out, ObligationStatus{
			EventID:       ev.ID,
			ReplyRequired: replyRequired,
			Replied:       replyRequired && replied[ev.ID],
			RequiresAck:   requiresAck,
			Acked:         requiresAck && acked[ev.ID],
		})
	}
	return out, nil
}

// KindFilter selects which ledger kinds UnreadMessages should return.
type KindFilter string

const (
	KindFilterChat   KindFilter = "chat"
	KindFilterNotify KindFilter = "notify"
	KindFilterAll    KindFilter = "all"
)

// UnreadMessages returns events after the actor's cursor, addressed to
// that actor (for chat) or generically visible (for notify), ordered
// by id, capped at limit.
func (s *Store) UnreadMessages(g *group.Group, actorID string, limit int, filter KindFilter) ([]ledger.Event, error) {
	cursor, err := s.GetCursor(g.GroupID, actorID)
	if err != nil {
		return nil, err
	}

	var out []ledger.Event
	afterCursor := cursor.EventID == ""
	err = s.ledger.IterEvents(g.GroupID, func(ev ledger.Event) error {
		if !afterCursor {
			if ev.ID == cursor.EventID {
				afterCursor = true
			}
			return nil
		}
		if !matchesKindFilter(ev, filter) {
			return nil
		}
		switch ev.Kind {
		case ledger.KindChatMessage:
			if !IsMessageForActor(g, actorID, ev) {
				return nil
			}
		case ledger.KindSystemNotify:
			if target, ok := ev.Data["target_actor_id"].(string); ok && target != "" && target != actorID {
				return nil
			}
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			return errStop
		}
		return nil
	})
	if err != nil && err != errStop {
		return nil, err
	}
	return out, nil
}

var errStop = stopIteration{}

type stopIteration struct{}

func (stopIteration) Error() string { return "stop" }

func matchesKindFilter(ev ledger.Event, filter KindFilter) bool {
	switch filter {
	case KindFilterChat:
		return ev.Kind == ledger.KindChatMessage
	case KindFilterNotify:
		return ev.Kind == ledger.KindSystemNotify
	default:
		return ev.Kind == ledger.KindChatMessage || ev.Kind == ledger.KindSystemNotify
	}
}
