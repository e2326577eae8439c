package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cccc-dev/cccc/internal/group"
)

func testRuleGroup() *group.Group {
	return &group.Group{
		GroupID: "g_test",
		Title:   "Launch Readiness",
		Actors: []group.Actor{
			{ID: "a_foreman", Title: "Foreman", Role: group.RoleForeman, Enabled: true},
			{ID: "a_peer1", Title: "Coder", Role: group.RolePeer, Enabled: true},
			{ID: "a_peer2", Title: "Reviewer", Role: group.RolePeer, Enabled: true},
			{ID: "user", Role: group.RolePeer, Enabled: true},
		},
	}
}

func TestResolveRecipients_Tokens(t *testing.T) {
	g := testRuleGroup()

	assert.ElementsMatch(t, []string{"a_foreman", "a_peer1", "a_peer2"}, resolveRecipients(g, []string{"@all"}))
	assert.Equal(t, []string{"a_foreman"}, resolveRecipients(g, []string{"@foreman"}))
	assert.ElementsMatch(t, []string{"a_peer1", "a_peer2"}, resolveRecipients(g, []string{"@peers"}))
	assert.Equal(t, []string{"a_peer1"}, resolveRecipients(g, []string{"a_peer1"}))
	assert.ElementsMatch(t, []string{"a_foreman", "a_peer1"}, resolveRecipients(g, []string{"@foreman", "a_peer1", "a_peer1"}))
}

func TestResolveRecipients_NeverIncludesUser(t *testing.T) {
	g := testRuleGroup()
	assert.NotContains(t, resolveRecipients(g, []string{"@all", "user"}), "user")
}

func TestRenderSnippet_SubstitutesKnownVars(t *testing.T) {
	out := renderSnippet("Reminder for {{group_title}} in {{interval_minutes}}m", map[string]string{
		"group_title":      "Launch Readiness",
		"interval_minutes": "15",
	})
	assert.Equal(t, "Reminder for Launch Readiness in 15m", out)
}

func TestRenderSnippet_UnknownVarBecomesEmpty(t *testing.T) {
	out := renderSnippet("Value: {{nonsense}}", map[string]string{})
	assert.Equal(t, "Value: ", out)
}

func TestRuleDue_IntervalFirstEvaluationSeedsState(t *testing.T) {
	g := testRuleGroup()
	r := group.Rule{
		ID: "r1", Enabled: true, To: []string{"@all"},
		Trigger: group.Trigger{Kind: group.TriggerInterval, EverySeconds: 600},
		Action:  group.Action{Kind: group.ActionNotify, Message: "check in"},
	}
	st := &RuleState{}
	now := time.Now().UTC()

	due, changed, err := ruleDue(g, r, st, now)
	require.NoError(t, err)
	assert.Nil(t, due)
	assert.True(t, changed)
	assert.Equal(t, now, st.LastFiredAt)
}

func TestRuleDue_IntervalFiresOnceElapsed(t *testing.T) {
	g := testRuleGroup()
	r := group.Rule{
		ID: "r1", Enabled: true, To: []string{"@all"},
		Trigger: group.Trigger{Kind: group.TriggerInterval, EverySeconds: 600},
		Action:  group.Action{Kind: group.ActionNotify, Message: "check in"},
	}
	now := time.Now().UTC()
	st := &RuleState{LastFiredAt: now.Add(-601 * time.Second)}

	due, _, err := ruleDue(g, r, st, now)
	require.NoError(t, err)
	require.NotNil(t, due)
	assert.Equal(t, "check in", due.rendered)
	assert.ElementsMatch(t, []string{"a_foreman", "a_peer1", "a_peer2"}, due.recipientIDs)
}

func TestRuleDue_IntervalNotYetElapsed(t *testing.T) {
	g := testRuleGroup()
	r := group.Rule{
		ID: "r1", Enabled: true, To: []string{"@all"},
		Trigger: group.Trigger{Kind: group.TriggerInterval, EverySeconds: 600},
		Action:  group.Action{Kind: group.ActionNotify, Message: "check in"},
	}
	now := time.Now().UTC()
	st := &RuleState{LastFiredAt: now.Add(-10 * time.Second)}

	due, _, err := ruleDue(g, r, st, now)
	require.NoError(t, err)
	assert.Nil(t, due)
}

func TestRuleDue_DisabledRuleNeverDue(t *testing.T) {
	g := testRuleGroup()
	r := group.Rule{
		ID: "r1", Enabled: false,
		Trigger: group.Trigger{Kind: group.TriggerInterval, EverySeconds: 60},
	}
	due, changed, err := ruleDue(g, r, &RuleState{}, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, due)
	assert.False(t, changed)
}

func TestRuleDue_AtFiresOnceThenNeverAgain(t *testing.T) {
	g := testRuleGroup()
	past := time.Now().UTC().Add(-time.Minute)
	r := group.Rule{
		ID: "r1", Enabled: true, To: []string{"@foreman"},
		Trigger: group.Trigger{Kind: group.TriggerAt, At: past},
		Action:  group.Action{Kind: group.ActionNotify, Message: "kickoff"},
	}
	st := &RuleState{}

	due, _, err := ruleDue(g, r, st, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, due)

	st.AtFired = true
	due, _, err = ruleDue(g, r, st, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, due)
}

func TestRuleDue_CronSameSlotFiresOnce(t *testing.T) {
	g := testRuleGroup()
	r := group.Rule{
		ID: "r1", Enabled: true, To: []string{"@foreman"},
		Trigger: group.Trigger{Kind: group.TriggerCron, Cron: "30 9 * * *", Timezone: "UTC"},
		Action:  group.Action{Kind: group.ActionNotify, Message: "standup"},
	}
	st := &RuleState{}
	slotTime := time.Date(2026, 8, 3, 9, 30, 0, 0, time.UTC)

	due, _, err := ruleDue(g, r, st, slotTime)
	require.NoError(t, err)
	require.NotNil(t, due)

	// Re-evaluating the same minute must not re-fire.
	due, _, err = ruleDue(g, r, st, slotTime.Add(30*time.Second))
	require.NoError(t, err)
	assert.Nil(t, due)
}

func TestRuleDue_GroupStateAction(t *testing.T) {
	g := testRuleGroup()
	r := group.Rule{
		ID: "r1", Enabled: true,
		Trigger: group.Trigger{Kind: group.TriggerInterval, EverySeconds: 60},
		Action:  group.Action{Kind: group.ActionGroupState, State: group.StateIdle},
	}
	now := time.Now().UTC()
	st := &RuleState{LastFiredAt: now.Add(-61 * time.Second)}

	due, _, err := ruleDue(g, r, st, now)
	require.NoError(t, err)
	require.NotNil(t, due)
	assert.Empty(t, due.rendered)
}
