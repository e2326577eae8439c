package snapshot

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/inbox"
	"github.com/cccc-dev/cccc/internal/ledger"
)

// Store is the sqlite-backed `ledger_snapshot` summary store. One
// process-wide database holds every group's rows, partitioned by
// group_id column rather than one file per group, since the summary
// is small and query-shaped rather than append-shaped.
type Store struct {
	db *sqlx.DB
}

// New wraps an already-open snapshot database and ensures its schema.
func New(db *sqlx.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS snapshot_actors (
		group_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		enabled INTEGER NOT NULL DEFAULT 1,
		unread_count INTEGER NOT NULL DEFAULT 0,
		oldest_unread_event_id TEXT NOT NULL DEFAULT '',
		oldest_unread_ts TIMESTAMP,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (group_id, actor_id)
	);

	CREATE TABLE IF NOT EXISTS snapshot_obligations (
		group_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP,
		PRIMARY KEY (group_id, event_id, kind)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshot_actors_group ON snapshot_actors(group_id);
	CREATE INDEX IF NOT EXISTS idx_snapshot_obligations_group ON snapshot_obligations(group_id);
	`)
	if err != nil {
		return fmt.Errorf("init snapshot schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// ActorSummary is one row of the denormalised per-actor snapshot.
type ActorSummary struct {
	ActorID             string    `db:"actor_id" json:"actor_id"`
	Title               string    `db:"title" json:"title"`
	Role                string    `db:"role" json:"role"`
	Enabled             bool      `db:"enabled" json:"enabled"`
	UnreadCount         int       `db:"unread_count" json:"unread_count"`
	OldestUnreadEventID string    `db:"oldest_unread_event_id" json:"oldest_unread_event_id,omitempty"`
	OldestUnreadTs      time.Time `db:"oldest_unread_ts" json:"oldest_unread_ts,omitempty"`
}

// Obligation is one row of the denormalised open-obligations snapshot:
// a chat.message whose reply_required or requires_ack is still
// outstanding (spec's "open tasks" summary).
type Obligation struct {
	EventID   string    `db:"event_id" json:"event_id"`
	Kind      string    `db:"kind" json:"kind"` // reply_required | attention_ack
	By        string    `db:"by" json:"by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Rebuild recomputes groupID's snapshot rows from the live ledger and
// replaces them atomically. It never touches ledger.jsonl itself
// (spec §4.D: ledger_snapshot "writes a denormalised summary ...
// without modifying the ledger").
func (s *Store) Rebuild(g *group.Group, ledgerStore *ledger.Store, inboxStore *inbox.Store, now time.Time) error {
	events, err := ledgerStore.All(g.GroupID)
	if err != nil {
		return err
	}

	var chatEvents []ledger.Event
	for _, ev := range events {
		if ev.Kind == ledger.KindChatMessage {
			chatEvents = append(chatEvents, ev)
		}
	}
	obligations, err := inboxStore.GetObligationStatusBatch(g.GroupID, chatEvents)
	if err != nil {
		return err
	}
	byEventID := make(map[string]ledger.Event, len(chatEvents))
	for _, ev := range chatEvents {
		byEventID[ev.ID] = ev
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin snapshot rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM snapshot_actors WHERE group_id = ?`, g.GroupID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM snapshot_obligations WHERE group_id = ?`, g.GroupID); err != nil {
		return err
	}

	for _, actor := range g.Actors {
		unread, err := inboxStore.UnreadMessages(g, actor.ID, 0, inbox.KindFilterAll)
		if err != nil {
			return err
		}
		var oldestID string
		var oldestTs time.Time
		if len(unread) > 0 {
			oldestID = unread[0].ID
			oldestTs = unread[0].Ts
		}

		_, err = tx.Exec(`
			INSERT INTO snapshot_actors
				(group_id, actor_id, title, role, enabled, unread_count, oldest_unread_event_id, oldest_unread_ts, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			g.GroupID, actor.ID, actor.Title, string(actor.Role), actor.Enabled,
			len(unread), oldestID, nullableTime(oldestTs), now,
		)
		if err != nil {
			return err
		}
	}

	for _, ob := range obligations {
		ev := byEventID[ob.EventID]
		if ob.ReplyRequired && !ob.Replied {
			if _, err := tx.Exec(`
				INSERT OR REPLACE INTO snapshot_obligations (group_id, event_id, kind, by, created_at)
				VALUES (?, ?, 'reply_required', ?, ?)`,
				g.GroupID, ob.EventID, ev.By, ev.Ts,
			); err != nil {
				return err
			}
		}
		if ob.RequiresAck && !ob.Acked {
			if _, err := tx.Exec(`
				INSERT OR REPLACE INTO snapshot_obligations (group_id, event_id, kind, by, created_at)
				VALUES (?, ?, 'attention_ack', ?, ?)`,
				g.GroupID, ob.EventID, ev.By, ev.Ts,
			); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// Actors returns every actor's snapshot row for groupID, ordered by
// actor_id for deterministic output.
func (s *Store) Actors(groupID string) ([]ActorSummary, error) {
	var out []ActorSummary
	err := s.db.Select(&out, `
		SELECT actor_id, title, role, enabled, unread_count, oldest_unread_event_id, oldest_unread_ts
		FROM snapshot_actors WHERE group_id = ? ORDER BY actor_id`, groupID)
	return out, err
}

// OpenObligations returns every still-open obligation for groupID.
func (s *Store) OpenObligations(groupID string) ([]Obligation, error) {
	var out []Obligation
	err := s.db.Select(&out, `
		SELECT event_id, kind, by, created_at
		FROM snapshot_obligations WHERE group_id = ? ORDER BY created_at`, groupID)
	return out, err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
