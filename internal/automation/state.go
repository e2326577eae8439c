package automation

import (
	"os"
	"time"

	"github.com/cccc-dev/cccc/internal/storage"
)

// NudgeItem tracks one pending-obligation nudge's repeat count, used to
// cap how many times the same item is re-nudged and to decide escalation.
type NudgeItem struct {
	Count        int       `json:"count"`
	LastNudgedAt time.Time `json:"last_nudged_at"`
}

// ActorState is per-(group, actor) automation bookkeeping.
type ActorState struct {
	LastIdleNotifyAt time.Time `json:"last_idle_notify_at,omitempty"`

	KeepaliveCount    int       `json:"keepalive_count,omitempty"`
	LastKeepaliveAt   time.Time `json:"last_keepalive_at,omitempty"`
	LastKeepaliveNext string    `json:"last_keepalive_next,omitempty"`

	LastNudgeAt      time.Time             `json:"last_nudge_at,omitempty"`
	LastNudgeEventID string                `json:"last_nudge_event_id,omitempty"`
	NudgeItems       map[string]*NudgeItem `json:"nudge_items,omitempty"`

	HelpLastNudgeAt   time.Time `json:"help_last_nudge_at,omitempty"`
	HelpMsgCountSince int       `json:"help_msg_count_since,omitempty"`
	HelpSessionKey    string    `json:"help_session_key,omitempty"`
}

// RuleState is per-rule firing bookkeeping.
type RuleState struct {
	LastFiredAt time.Time `json:"last_fired_at,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastSlotKey string    `json:"last_slot_key,omitempty"`
	AtFired     bool      `json:"at_fired,omitempty"`
}

// State is the full persisted automation.json document for one group
// (spec §4.I, §9 "state/automation.json").
type State struct {
	Actors              map[string]*ActorState `json:"actors"`
	Rules               map[string]*RuleState  `json:"rules"`
	ResumeAt            time.Time              `json:"resume_at,omitempty"`
	LastSilenceNotifyAt time.Time              `json:"last_silence_notify_at,omitempty"`
	HelpLedgerPos       int64                  `json:"help_ledger_pos"`
	UpdatedAt           time.Time              `json:"updated_at,omitempty"`
}

func newState() *State {
	return &State{Actors: map[string]*ActorState{}, Rules: map[string]*RuleState{}}
}

func loadState(paths storage.Paths, groupID string) (*State, error) {
	var st State
	err := storage.ReadJSON(paths.AutomationStateFile(groupID), &st)
	if os.IsNotExist(err) {
		return newState(), nil
	}
	if err != nil {
		return nil, err
	}
	if st.Actors == nil {
		st.Actors = map[string]*ActorState{}
	}
	if st.Rules == nil {
		st.Rules = map[string]*RuleState{}
	}
	return &st, nil
}

func saveState(paths storage.Paths, groupID string, st *State) error {
	st.UpdatedAt = time.Now().UTC()
	return storage.WriteJSONAtomic(paths.AutomationStateFile(groupID), st, 0o644)
}

func (s *State) actor(actorID string) *ActorState {
	a, ok := s.Actors[actorID]
	if !ok {
		a = &ActorState{}
		s.Actors[actorID] = a
	}
	if a.NudgeItems == nil {
		a.NudgeItems = map[string]*NudgeItem{}
	}
	return a
}

func (s *State) rule(ruleID string) *RuleState {
	r, ok := s.Rules[ruleID]
	if !ok {
		r = &RuleState{}
		s.Rules[ruleID] = r
	}
	return r
}

// gcNudgeItems drops tracked nudge items no longer among the alive set,
// so resolved obligations stop being remembered.
func (a *ActorState) gcNudgeItems(alive map[string]bool) {
	for k := range a.NudgeItems {
		if !alive[k] {
			delete(a.NudgeItems, k)
		}
	}
}

func (a *ActorState) touchNudgeItem(key string) int {
	item, ok := a.NudgeItems[key]
	if !ok {
		item = &NudgeItem{}
		a.NudgeItems[key] = item
	}
	item.Count++
	item.LastNudgedAt = time.Now().UTC()
	return item.Count
}

func (a *ActorState) nudgeItemCount(key string) int {
	if item, ok := a.NudgeItems[key]; ok {
		return item.Count
	}
	return 0
}
