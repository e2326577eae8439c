package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/ledger"
)

func testGroup(state group.State) *group.Group {
	return &group.Group{
		GroupID: "g_1",
		State:   state,
		Actors: []group.Actor{
			{ID: "a_foreman", Role: group.RoleForeman, Runner: group.RunnerPTY, Enabled: true},
			{ID: "a_peer", Role: group.RolePeer, Runner: group.RunnerPTY, Enabled: true},
		},
	}
}

func TestEligibleForActor_ActiveGroupAllowsChatAndNotify(t *testing.T) {
	p := &Pipeline{}
	g := testGroup(group.StateActive)
	actor := g.FindActor("a_peer")

	chatEv := ledger.Event{Kind: ledger.KindChatMessage, By: "a_foreman", Data: map[string]any{}}
	assert.True(t, p.eligibleForActor(g, actor, chatEv))

	notifyEv := ledger.Event{Kind: ledger.KindSystemNotify, By: "daemon", Data: map[string]any{"kind": "nudge"}}
	assert.True(t, p.eligibleForActor(g, actor, notifyEv))
}

func TestEligibleForActor_PausedGroupOnlyAllowsAutomationNotify(t *testing.T) {
	p := &Pipeline{}
	g := testGroup(group.StatePaused)
	actor := g.FindActor("a_peer")

	chatEv := ledger.Event{Kind: ledger.KindChatMessage, By: "a_foreman", Data: map[string]any{}}
	assert.False(t, p.eligibleForActor(g, actor, chatEv))

	nudgeNotify := ledger.Event{Kind: ledger.KindSystemNotify, Data: map[string]any{"kind": "nudge"}}
	assert.False(t, p.eligibleForActor(g, actor, nudgeNotify))

	automationNotify := ledger.Event{Kind: ledger.KindSystemNotify, Data: map[string]any{"kind": "automation"}}
	assert.True(t, p.eligibleForActor(g, actor, automationNotify))
}

func TestNotifyTargets_EmptyTargetIsBroadcast(t *testing.T) {
	ev := ledger.Event{Data: map[string]any{}}
	assert.True(t, notifyTargets(ev, "a_1"))

	ev2 := ledger.Event{Data: map[string]any{"target_actor_id": "a_2"}}
	assert.False(t, notifyTargets(ev2, "a_1"))
	assert.True(t, notifyTargets(ev2, "a_2"))
}

func TestBumpBackoff_DoublesAndCapsAtMax(t *testing.T) {
	p := &Pipeline{}
	s := &actorState{}

	p.bumpBackoff(s)
	assert.Equal(t, minBackoff, s.backoff)

	for i := 0; i < 10; i++ {
		p.bumpBackoff(s)
	}
	assert.Equal(t, maxBackoff, s.backoff)
}

func TestDecodeChatMessage_RoundTripsThroughLooselyTypedData(t *testing.T) {
	ev := ledger.Event{
		Data: map[string]any{
			"text":           "hi",
			"priority":       "attention",
			"reply_required": true,
		},
	}
	data, err := decodeChatMessage(ev)
	assert.NoError(t, err)
	assert.Equal(t, "hi", data.Text)
	assert.Equal(t, ledger.PriorityAttention, data.Priority)
	assert.True(t, data.ReplyRequired)
}

func TestRenderNotify_AttentionGetsImportantPrefix(t *testing.T) {
	ev := ledger.Event{ID: "ev_9"}
	data := ledger.NotifyData{Text: "watch out", Priority: ledger.PriorityAttention}
	got := renderNotify(ev, data)
	assert.Contains(t, got, "IMPORTANT (event_id=ev_9)")
	assert.Contains(t, got, "watch out")
}
