package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorState_TouchNudgeItemIncrementsCount(t *testing.T) {
	st := newState()
	a := st.actor("a_peer1")

	assert.Equal(t, 1, a.touchNudgeItem("reply_required:ev1"))
	assert.Equal(t, 2, a.touchNudgeItem("reply_required:ev1"))
	assert.Equal(t, 0, a.nudgeItemCount("reply_required:ev2"))
	assert.Equal(t, 2, a.nudgeItemCount("reply_required:ev1"))
}

func TestActorState_GcNudgeItemsDropsResolved(t *testing.T) {
	st := newState()
	a := st.actor("a_peer1")
	a.touchNudgeItem("reply_required:ev1")
	a.touchNudgeItem("reply_required:ev2")

	a.gcNudgeItems(map[string]bool{"reply_required:ev1": true})

	assert.Contains(t, a.NudgeItems, "reply_required:ev1")
	assert.NotContains(t, a.NudgeItems, "reply_required:ev2")
}

func TestState_ActorAndRuleGetOrCreate(t *testing.T) {
	st := newState()
	a1 := st.actor("a_peer1")
	a2 := st.actor("a_peer1")
	assert.Same(t, a1, a2)

	r1 := st.rule("rule1")
	r2 := st.rule("rule1")
	assert.Same(t, r1, r2)
}
