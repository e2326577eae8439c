package inbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/storage"
)

func testGroup() *group.Group {
	return &group.Group{
		GroupID: "g_test",
		Actors: []group.Actor{
			{ID: "a_foreman", Role: group.RoleForeman},
			{ID: "a_peer1", Role: group.RolePeer},
			{ID: "a_peer2", Role: group.RolePeer},
		},
	}
}

func TestIsMessageForActor_RecipientTokens(t *testing.T) {
	g := testGroup()

	cases := []struct {
		name   string
		ev     ledger.Event
		actor  string
		expect bool
	}{
		{
			name:   "undirected chat reaches everyone but sender",
			ev:     ledger.Event{Kind: ledger.KindChatMessage, By: "a_foreman", Data: map[string]any{}},
			actor:  "a_peer1",
			expect: true,
		},
		{
			name:   "sender never sees own message",
			ev:     ledger.Event{Kind: ledger.KindChatMessage, By: "a_foreman", Data: map[string]any{}},
			actor:  "a_foreman",
			expect: false,
		},
		{
			name:   "@all reaches every non-sender",
			ev:     ledger.Event{Kind: ledger.KindChatMessage, By: "a_peer1", Data: map[string]any{"to": []any{"@all"}}},
			actor:  "a_peer2",
			expect: true,
		},
		{
			name:   "@foreman excludes peers",
			ev:     ledger.Event{Kind: ledger.KindChatMessage, By: "a_peer1", Data: map[string]any{"to": []any{"@foreman"}}},
			actor:  "a_peer2",
			expect: false,
		},
		{
			name:   "@foreman reaches the foreman",
			ev:     ledger.Event{Kind: ledger.KindChatMessage, By: "a_peer1", Data: map[string]any{"to": []any{"@foreman"}}},
			actor:  "a_foreman",
			expect: true,
		},
		{
			name:   "@peers excludes the foreman",
			ev:     ledger.Event{Kind: ledger.KindChatMessage, By: "a_foreman", Data: map[string]any{"to": []any{"@peers"}}},
			actor:  "a_foreman",
			expect: false,
		},
		{
			name:   "direct addressing by id",
			ev:     ledger.Event{Kind: ledger.KindChatMessage, By: "a_foreman", Data: map[string]any{"to": []any{"a_peer2"}}},
			actor:  "a_peer1",
			expect: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, IsMessageForActor(g, tc.actor, tc.ev))
		})
	}
}

func TestObligationStatusBatch_ReplyAndAck(t *testing.T) {
	paths := storage.New(t.TempDir())
	l := ledger.NewStore(paths, nil)

	groupID := "g_test"
	asked, err := l.Append(groupID, ledger.Event{
		Kind: ledger.KindChatMessage, By: "a_foreman",
		Data: map[string]any{"text": "please reply", "reply_required": true},
	})
	require.NoError(t, err)

	attention, err := l.Append(groupID, ledger.Event{
		Kind: ledger.KindChatMessage, By: "a_foreman",
		Data: map[string]any{"text": "fyi", "priority": "attention"},
	})
	require.NoError(t, err)

	_, err = l.Append(groupID, ledger.Event{
		Kind: ledger.KindChatMessage, By: "a_peer1",
		Data: map[string]any{"text": "done", "reply_to": asked.ID},
	})
	require.NoError(t, err)

	_, err = l.Append(groupID, ledger.Event{
		Kind: ledger.KindChatAck, By: "a_peer1",
		Data: map[string]any{"event_id": attention.ID},
	})
	require.NoError(t, err)

	s := NewStore(paths, l)
	statuses, err := s.GetObligationStatusBatch(groupID, []ledger.Event{asked, attention})
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	assert.True(t, statuses[0].ReplyRequired)
	assert.True(t, statuses[0].Replied)
	assert.True(t, statuses[1].RequiresAck)
	assert.True(t, statuses[1].Acked)
}

func TestCursor_RoundTripAndUnreadMessages(t *testing.T) {
	paths := storage.New(t.TempDir())
	l := ledger.NewStore(paths, nil)
	s := NewStore(paths, l)
	g := testGroup()

	c, err := s.GetCursor(g.GroupID, "a_peer1")
	require.NoError(t, err)
	assert.Equal(t, Cursor{}, c, "unset cursor reads as zero value")

	first, err := l.Append(g.GroupID, ledger.Event{Kind: ledger.KindChatMessage, By: "a_foreman", Data: map[string]any{}})
	require.NoError(t, err)
	second, err := l.Append(g.GroupID, ledger.Event{Kind: ledger.KindChatMessage, By: "a_foreman", Data: map[string]any{}})
	require.NoError(t, err)

	unread, err := s.UnreadMessages(g, "a_peer1", 0, KindFilterChat)
	require.NoError(t, err)
	require.Len(t, unread, 2)

	require.NoError(t, s.SetCursor(g.GroupID, "a_peer1", Cursor{EventID: first.ID, Ts: first.Ts}))

	unread, err = s.UnreadMessages(g, "a_peer1", 0, KindFilterChat)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, second.ID, unread[0].ID)
}
