package automation

import (
	"time"

	"go.uber.org/zap"

	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/inbox"
	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/logging"
	"github.com/cccc-dev/cccc/internal/registry"
	"github.com/cccc-dev/cccc/internal/runner/headless"
	"github.com/cccc-dev/cccc/internal/runner/pty"
	"github.com/cccc-dev/cccc/internal/secrets"
	"github.com/cccc-dev/cccc/internal/storage"
)

// Manager runs the ~1Hz automation loop across every registered group
// (spec §4.I). It holds no per-group state in memory beyond what a
// single Tick needs; everything that must survive a restart lives in
// state/automation.json, loaded and saved once per group per tick.
type Manager struct {
	Paths    storage.Paths
	Reg      *registry.Registry
	Groups   *group.Store
	Ledger   *ledger.Store
	Inbox    *inbox.Store
	PTY      *pty.Supervisor
	Headless *headless.Registry
	Secrets  *secrets.Store
	Runtime  Runtime
	Log      *logging.Logger
}

func NewManager(paths storage.Paths, reg *registry.Registry, groups *group.Store, ledgerStore *ledger.Store, inboxStore *inbox.Store, ptySup *pty.Supervisor, headlessReg *headless.Registry, secretsStore *secrets.Store, log *logging.Logger) *Manager {
	return &Manager{
		Paths:    paths,
		Reg:      reg,
		Groups:   groups,
		Ledger:   ledgerStore,
		Inbox:    inboxStore,
		PTY:      ptySup,
		Headless: headlessReg,
		Secrets:  secretsStore,
		Runtime: Runtime{
			Groups:   groups,
			Ledger:   ledgerStore,
			Secrets:  secretsStore,
			PTY:      ptySup,
			Headless: headlessReg,
		},
		Log: log,
	}
}

// Tick runs one pass over every registered group. Group mutations each
// acquire their own short-lived lock (group.Store.Mutate), the same
// granularity the IPC ops use rather than one lock per tick; ledger
// appends take no group lock.
func (m *Manager) Tick() {
	entries, err := m.Reg.List()
	if err != nil {
		if m.Log != nil {
			m.Log.Warn("automation: list groups failed", zap.Error(err))
		}
		return
	}

	now := time.Now().UTC()
	for _, entry := range entries {
		if err := m.tickGroup(entry.GroupID, now); err != nil && m.Log != nil {
			m.Log.Warn("automation: tick group failed",
				zap.String("group_id", entry.GroupID), zap.Error(err))
		}
	}
}

func (m *Manager) tickGroup(groupID string, now time.Time) error {
	g, err := m.Groups.Load(groupID)
	if err != nil {
		return err
	}
	if g.State == group.StatePaused {
		return nil
	}

	st, err := loadState(m.Paths, groupID)
	if err != nil {
		return err
	}
	cfg := effectiveConfig(g.Automation)

	if g.State == group.StateActive {
		if err := m.checkNudge(g, cfg, st, now); err != nil {
			return err
		}
		if err := m.checkActorIdle(g, cfg, st, now); err != nil {
			return err
		}
		if err := m.checkKeepalive(g, cfg, st, now); err != nil {
			return err
		}
		if err := m.checkSilence(g, cfg, st, now); err != nil {
			return err
		}
		if err := m.checkHelpNudge(g, cfg, st, now); err != nil {
			return err
		}
	}

	if err := m.checkRules(g, st, now); err != nil {
		return err
	}

	return saveState(m.Paths, groupID, st)
}

// checkRules evaluates every enabled user-defined rule and executes
// the ones found due. A rule's own error never aborts the pass over
// the rest of the rules (spec §4.I.6: one misbehaving rule must not
// starve the others).
func (m *Manager) checkRules(g *group.Group, st *State, now time.Time) error {
	if len(g.Automation.Rules) == 0 {
		return nil
	}

	var disableIDs []string

	for _, r := range g.Automation.Rules {
		if r.ID == "" {
			continue
		}
		rst := st.rule(r.ID)

		due, _, err := ruleDue(g, r, rst, now)
		if err != nil {
			rst.LastErrorAt = now
			rst.LastError = err.Error()
			continue
		}
		if due == nil {
			continue
		}

		ok, errMsg := m.executeRuleAction(g, r, due)
		if !ok {
			rst.LastErrorAt = now
			rst.LastError = errMsg
			continue
		}

		rst.LastError = ""
		rst.LastFiredAt = now
		if r.Trigger.Kind == group.TriggerAt {
			rst.AtFired = true
			disableIDs = append(disableIDs, r.ID)
		}
	}

	if len(disableIDs) > 0 {
		if err := m.disableFiredAtRules(g.GroupID, disableIDs); err != nil {
			return err
		}
	}
	return nil
}

// disableFiredAtRules flips Enabled=false on one-shot "at" rules once
// they have fired, so they are not re-evaluated forever (spec §4.I.6:
// "at" triggers fire exactly once).
func (m *Manager) disableFiredAtRules(groupID string, ruleIDs []string) error {
	ids := map[string]bool{}
	for _, id := range ruleIDs {
		ids[id] = true
	}
	_, err := m.Groups.Mutate(groupID, func(g *group.Group) error {
		for i := range g.Automation.Rules {
			if ids[g.Automation.Rules[i].ID] {
				g.Automation.Rules[i].Enabled = false
			}
		}
		return nil
	})
	return err
}

func (m *Manager) executeRuleAction(g *group.Group, r group.Rule, due *dueRule) (bool, string) {
	switch r.Action.Kind {
	case group.ActionNotify:
		if due.rendered == "" || len(due.recipientIDs) == 0 {
			return false, "rule produced no renderable message"
		}
		for _, actorID := range due.recipientIDs {
			if err := m.notifyAutomation(g.GroupID, actorID, due.rendered); err != nil {
				return false, err.Error()
			}
		}
		return true, ""

	case group.ActionGroupState:
		return executeGroupState(m.Runtime, g.GroupID, r.Action.State)

	case group.ActionActorControl:
		targets := []string{r.Action.Target}
		return executeActorControl(m.Runtime, g, r.Action.ControlOp, targets)

	default:
		return false, "unsupported rule action kind: " + string(r.Action.Kind)
	}
}

// notifyAutomation emits a system.notify with kind=automation, the one
// notify kind the delivery pipeline still forwards to non-active
// groups (spec §4.G's state gate), matching rule-fired notifies
// regardless of whether the group is active or idle when they fire.
func (m *Manager) notifyAutomation(groupID, actorID, text string) error {
	return m.notify(groupID, actorID, ledger.NotifyAutomation, text, false)
}

// State returns the current persisted automation.json document for a
// group, for read-only inspection (e.g. the group_automation_state op).
func (m *Manager) State(groupID string) (*State, error) {
	return loadState(m.Paths, groupID)
}

// ResetBaseline applies the same "reset every timer to now, no
// catch-up" transform as OnResume, but on explicit user request rather
// than as a side effect of a state transition (spec §6.1
// group_automation_reset_baseline).
func (m *Manager) ResetBaseline(groupID string) error {
	return m.OnResume(groupID)
}

// OnResume resets every timer to now with no catch-up: a group that
// was paused for an hour must not emit an hour's worth of queued
// nudges the moment it resumes (spec §4.I: "on_resume ... never
// catches up missed reminders").
func (m *Manager) OnResume(groupID string) error {
	st, err := loadState(m.Paths, groupID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	st.ResumeAt = now
	st.LastSilenceNotifyAt = now

	for _, a := range st.Actors {
		a.LastIdleNotifyAt = now
		a.LastNudgeAt = now
		a.KeepaliveCount = 0
		a.LastKeepaliveAt = time.Time{}
		a.LastKeepaliveNext = ""
		a.NudgeItems = map[string]*NudgeItem{}
		a.HelpLastNudgeAt = now
		a.HelpMsgCountSince = 0
	}
	for _, r := range st.Rules {
		r.LastFiredAt = now
		r.LastSlotKey = ""
	}

	if events, err := m.Ledger.All(groupID); err == nil {
		st.HelpLedgerPos = int64(len(events))
	}

	return saveState(m.Paths, groupID, st)
}
