package snapshot

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/inbox"
	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/storage"
)

func newTestStore(t *testing.T) (*Store, *ledger.Store, *inbox.Store, storage.Paths) {
	t.Helper()
	home := t.TempDir()
	paths := storage.New(home)

	db, err := OpenSQLite(filepath.Join(home, "snapshot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(db)
	require.NoError(t, err)

	ledgerStore := ledger.NewStore(paths, nil)
	inboxStore := inbox.NewStore(paths, ledgerStore)
	return s, ledgerStore, inboxStore, paths
}

func testGroup() *group.Group {
	return &group.Group{
		GroupID: "g1",
		Actors: []group.Actor{
			{ID: "a_foreman", Title: "Foreman", Role: group.RoleForeman, Enabled: true},
			{ID: "a_peer1", Title: "Coder", Role: group.RolePeer, Enabled: true},
		},
	}
}

func TestRebuild_CountsUnreadAndObligations(t *testing.T) {
	s, ledgerStore, inboxStore, _ := newTestStore(t)
	g := testGroup()

	_, err := ledgerStore.Append(g.GroupID, ledger.Event{
		Kind: ledger.KindChatMessage,
		By:   "a_foreman",
		Data: map[string]any{
			"to":             []string{"a_peer1"},
			"reply_required": true,
		},
	})
	require.NoError(t, err)

	require.NoError(t, s.Rebuild(g, ledgerStore, inboxStore, time.Now().UTC()))

	actors, err := s.Actors(g.GroupID)
	require.NoError(t, err)
	require.Len(t, actors, 2)

	byID := map[string]ActorSummary{}
	for _, a := range actors {
		byID[a.ActorID] = a
	}
	assert.Equal(t, 1, byID["a_peer1"].UnreadCount)
	assert.Equal(t, 0, byID["a_foreman"].UnreadCount)

	obligations, err := s.OpenObligations(g.GroupID)
	require.NoError(t, err)
	require.Len(t, obligations, 1)
	assert.Equal(t, "reply_required", obligations[0].Kind)
	assert.Equal(t, "a_foreman", obligations[0].By)
}

func TestRebuild_ReplyClearsObligation(t *testing.T) {
	s, ledgerStore, inboxStore, _ := newTestStore(t)
	g := testGroup()

	msg, err := ledgerStore.Append(g.GroupID, ledger.Event{
		Kind: ledger.KindChatMessage,
		By:   "a_foreman",
		Data: map[string]any{"to": []string{"a_peer1"}, "reply_required": true},
	})
	require.NoError(t, err)

	_, err = ledgerStore.Append(g.GroupID, ledger.Event{
		Kind: ledger.KindChatMessage,
		By:   "a_peer1",
		Data: map[string]any{"to": []string{"a_foreman"}, "reply_to": msg.ID},
	})
	require.NoError(t, err)

	require.NoError(t, s.Rebuild(g, ledgerStore, inboxStore, time.Now().UTC()))

	obligations, err := s.OpenObligations(g.GroupID)
	require.NoError(t, err)
	assert.Empty(t, obligations)
}
