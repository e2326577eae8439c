package automation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/inbox"
	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/runner/pty"
)

const maxNudgeLines = 5

func (m *Manager) isActorRunning(groupID string, a group.Actor) bool {
	if a.Runner == group.RunnerHeadless {
		return m.Headless.IsRunning(groupID, a.ID)
	}
	sess, ok := m.PTY.Get(groupID, a.ID)
	return ok && sess.IsRunning()
}

// eventForActor extends inbox.IsMessageForActor (chat-only) to also
// cover system.notify events, which address a single target_actor_id
// rather than recipient tokens.
func eventForActor(g *group.Group, actorID string, ev ledger.Event) bool {
	switch ev.Kind {
	case ledger.KindChatMessage:
		return inbox.IsMessageForActor(g, actorID, ev)
	case ledger.KindSystemNotify:
		if ev.By == actorID {
			return false
		}
		target, _ := ev.Data["target_actor_id"].(string)
		return target == "" || target == actorID
	default:
		return false
	}
}

func (m *Manager) notify(groupID, actorID string, kind ledger.NotifyKind, text string, requiresAck bool) error {
	_, err := m.Ledger.Append(groupID, ledger.Event{
		Kind: ledger.KindSystemNotify, GroupID: groupID, By: "system",
		Data: map[string]any{
			"kind":            string(kind),
			"text":            text,
			"target_actor_id": actorID,
			"requires_ack":    requiresAck,
		},
	})
	return err
}

// checkNudge sends one digest nudge per actor covering reply-required,
// attention-ack, and unread-backlog obligations, capped at
// nudge_max_repeats_per_obligation repeats and escalated to the
// foreman once an obligation has been re-nudged
// nudge_escalate_after_repeats times.
func (m *Manager) checkNudge(g *group.Group, cfg Config, st *State, now time.Time) error {
	if cfg.ReplyRequiredNudgeAfterSeconds <= 0 && cfg.AttentionAckNudgeAfterSeconds <= 0 && cfg.UnreadNudgeAfterSeconds <= 0 {
		return nil
	}

	var chatAndNotify []ledger.Event
	var chatOnly []ledger.Event
	if err := m.Ledger.IterEvents(g.GroupID, func(ev ledger.Event) error {
		if ev.Kind == ledger.KindChatMessage || ev.Kind == ledger.KindSystemNotify {
			chatAndNotify = append(chatAndNotify, ev)
		}
		if ev.Kind == ledger.KindChatMessage {
			chatOnly = append(chatOnly, ev)
		}
		return nil
	}); err != nil {
		return err
	}

	obligations, err := m.Inbox.GetObligationStatusBatch(g.GroupID, chatOnly)
	if err != nil {
		return err
	}
	obligationByID := make(map[string]inbox.ObligationStatus, len(obligations))
	for _, o := range obligations {
		obligationByID[o.EventID] = o
	}

	foreman := g.Foreman()
	var foremanID string
	if foreman != nil {
		foremanID = foreman.ID
	}

	for _, actor := range g.Actors {
		if !actor.Enabled || actor.ID == "" || !m.isActorRunning(g.GroupID, actor) {
			continue
		}

		cursor, err := m.Inbox.GetCursor(g.GroupID, actor.ID)
		if err != nil {
			return err
		}

		var pendingReplyRequired, pendingAttentionAck int
		var oldestUnreadTs time.Time
		aliveKeys := map[string]bool{}
		var dueKeys []string
		replyDueKeys := map[string]bool{}
		var itemLines []string

		aState := st.actor(actor.ID)

		for _, ev := range chatAndNotify {
			if ev.Kind == ledger.KindChatMessage && ev.By == actor.ID {
				continue
			}
			if !eventForActor(g, actor.ID, ev) {
				continue
			}
			if ev.ID == "" {
				continue
			}
			baseDt := ev.Ts
			if !st.ResumeAt.IsZero() && baseDt.Before(st.ResumeAt) {
				baseDt = st.ResumeAt
			}
			if oldestUnreadTs.IsZero() && ev.Ts.After(cursor.Ts) {
				oldestUnreadTs = ev.Ts
			}
			if ev.Kind != ledger.KindChatMessage {
				continue
			}

			ob, ok := obligationByID[ev.ID]
			if !ok {
				continue
			}

			if ob.ReplyRequired && !ob.Replied {
				pendingReplyRequired++
				key := "reply_required:" + ev.ID
				aliveKeys[key] = true
				if cfg.NudgeMaxRepeatsPerObligation > 0 && aState.nudgeItemCount(key) >= cfg.NudgeMaxRepeatsPerObligation {
					continue
				}
				if now.Sub(baseDt).Seconds() < float64(cfg.ReplyRequiredNudgeAfterSeconds) {
					continue
				}
				dueKeys = append(dueKeys, key)
				replyDueKeys[key] = true
				itemLines = append(itemLines, fmt.Sprintf("REPLY REQUIRED: event_id=%s (since %s). Reply via cccc_message_reply(event_id=%s, ...).", ev.ID, ev.Ts.Format(time.RFC3339), ev.ID))
				continue
			}

			if ob.RequiresAck && !ob.Acked {
				pendingAttentionAck++
				key := "attention_ack:" + ev.ID
				aliveKeys[key] = true
				if cfg.NudgeMaxRepeatsPerObligation > 0 && aState.nudgeItemCount(key) >= cfg.NudgeMaxRepeatsPerObligation {
					continue
				}
				if now.Sub(baseDt).Seconds() < float64(cfg.AttentionAckNudgeAfterSeconds) {
					continue
				}
				dueKeys = append(dueKeys, key)
				itemLines = append(itemLines, fmt.Sprintf("IMPORTANT awaiting ACK: event_id=%s (since %s). Use cccc_inbox_mark_read(event_id=%s).", ev.ID, ev.Ts.Format(time.RFC3339), ev.ID))
			}
		}

		if !oldestUnreadTs.IsZero() {
			baseDt := oldestUnreadTs
			if !st.ResumeAt.IsZero() && baseDt.Before(st.ResumeAt) {
				baseDt = st.ResumeAt
			}
			key := "unread_backlog"
			aliveKeys[key] = true
			if cfg.NudgeMaxRepeatsPerObligation <= 0 || aState.nudgeItemCount(key) < cfg.NudgeMaxRepeatsPerObligation {
				if now.Sub(baseDt).Seconds() >= float64(cfg.UnreadNudgeAfterSeconds) {
					dueKeys = append(dueKeys, key)
					itemLines = append(itemLines, fmt.Sprintf("Unread backlog: oldest from %s. Use cccc_inbox_list() to review.", oldestUnreadTs.Format(time.RFC3339)))
				}
			}
		}

		aState.gcNudgeItems(aliveKeys)

		if len(itemLines) == 0 {
			continue
		}

		if !aState.LastNudgeAt.IsZero() && cfg.NudgeDigestMinIntervalSeconds > 0 {
			if now.Sub(aState.LastNudgeAt).Seconds() < float64(cfg.NudgeDigestMinIntervalSeconds) {
				continue
			}
		}

		escalate := false
		seen := map[string]bool{}
		for _, key := range dueKeys {
			if seen[key] {
				continue
			}
			seen[key] = true
			n := aState.touchNudgeItem(key)
			if replyDueKeys[key] && n >= maxInt(1, cfg.NudgeEscalateAfterRepeats) && foremanID != "" && foremanID != actor.ID {
				escalate = true
			}
		}

		aState.LastNudgeAt = now
		aState.LastNudgeEventID = "digest"

		title := "Action items pending"
		var tags []string
		if pendingReplyRequired > 0 {
			tags = append(tags, fmt.Sprintf("reply_required=%d", pendingReplyRequired))
		}
		if pendingAttentionAck > 0 {
			tags = append(tags, fmt.Sprintf("attention_ack=%d", pendingAttentionAck))
		}
		if !oldestUnreadTs.IsZero() {
			tags = append(tags, "unread>0")
		}
		if len(tags) > 0 {
			title = "Action items pending (" + strings.Join(tags, ", ") + ")"
		}

		lines := itemLines
		if len(lines) > maxNudgeLines {
			lines = append(append([]string{}, lines[:maxNudgeLines]...), fmt.Sprintf("... and %d more pending item(s).", len(itemLines)-maxNudgeLines))
		}

		if err := m.notify(g.GroupID, actor.ID, ledger.NotifyNudge, title+"\n"+strings.Join(lines, "\n"), false); err != nil {
			return err
		}

		if escalate && foremanID != "" && foremanID != actor.ID {
			msg := fmt.Sprintf("%s has repeated pending obligations. Please intervene if needed.", actor.ID)
			if err := m.notify(g.GroupID, foremanID, ledger.NotifyNudge, "Escalation: pending replies\n"+msg, false); err != nil {
				return err
			}
		}
	}

	return nil
}

func (m *Manager) lastActorActivity(groupID, actorID string) (time.Time, bool) {
	var last time.Time
	var found bool
	_ = m.Ledger.IterEvents(groupID, func(ev ledger.Event) error {
		if ev.By == actorID {
			last = ev.Ts
			found = true
		}
		return nil
	})
	return last, found
}

// checkActorIdle notifies the foreman when a non-foreman actor has
// produced no PTY output (or, for headless actors, no ledger activity)
// for actor_idle_timeout_seconds.
func (m *Manager) checkActorIdle(g *group.Group, cfg Config, st *State, now time.Time) error {
	if cfg.ActorIdleTimeoutSeconds <= 0 {
		return nil
	}
	foreman := g.Foreman()
	if foreman == nil {
		return nil
	}

	type idleHit struct {
		actorID     string
		idleSeconds float64
	}
	var hits []idleHit

	for _, actor := range g.Actors {
		if !actor.Enabled || actor.ID == foreman.ID || !m.isActorRunning(g.GroupID, actor) {
			continue
		}

		var idleSeconds float64
		haveSignal := false
		if actor.Runner != group.RunnerHeadless {
			if sess, ok := m.PTY.Get(g.GroupID, actor.ID); ok {
				idleSeconds = sess.IdleSeconds()
				haveSignal = true
			}
		} else if last, ok := m.lastActorActivity(g.GroupID, actor.ID); ok {
			idleSeconds = now.Sub(last).Seconds()
			haveSignal = true
		}
		if !haveSignal || idleSeconds < float64(cfg.ActorIdleTimeoutSeconds) {
			continue
		}

		aState := st.actor(actor.ID)
		if !aState.LastIdleNotifyAt.IsZero() && now.Sub(aState.LastIdleNotifyAt).Seconds() < float64(cfg.ActorIdleTimeoutSeconds) {
			continue
		}
		aState.LastIdleNotifyAt = now
		hits = append(hits, idleHit{actorID: actor.ID, idleSeconds: idleSeconds})
	}

	for _, h := range hits {
		msg := fmt.Sprintf("Actor %s has been quiet for %ds. They might be stuck or waiting for input.", h.actorID, int(h.idleSeconds))
		if g.Terminal.NotifyTail && g.Terminal.Visibility != group.VisibilityOff {
			if sess, ok := m.PTY.Get(g.GroupID, h.actorID); ok {
				if snippet := tailSnippet(sess, g.Terminal.NotifyLines); snippet != "" {
					msg = fmt.Sprintf("%s\n\n---\nTerminal tail (%s):\n%s", msg, h.actorID, snippet)
				}
			}
		}
		if err := m.notify(g.GroupID, foreman.ID, ledger.NotifyActorIdle, msg, false); err != nil {
			return err
		}
	}
	return nil
}

func tailSnippet(sess *pty.Session, maxLines int) string {
	if maxLines <= 0 {
		maxLines = 20
	}
	if maxLines > 80 {
		maxLines = 80
	}
	var sb strings.Builder
	for _, chunk := range sess.TailOutput() {
		sb.Write(chunk.Data)
	}
	text := strings.TrimRight(sb.String(), "\n")
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	snippet := strings.Join(lines, "\n")
	if len(snippet) > 6000 {
		snippet = snippet[len(snippet)-6000:]
	}
	return snippet
}

// checkKeepalive sends a gentle nudge to an actor that declared a
// "Next:" intention and then went quiet past keepalive_delay_seconds,
// up to keepalive_max_per_actor times per declaration.
func (m *Manager) checkKeepalive(g *group.Group, cfg Config, st *State, now time.Time) error {
	if cfg.KeepaliveDelaySeconds <= 0 {
		return nil
	}

	type keepaliveHit struct {
		actorID  string
		nextText string
	}
	var hits []keepaliveHit

	for _, actor := range g.Actors {
		if !actor.Enabled || !m.isActorRunning(g.GroupID, actor) {
			continue
		}
		nextText, nextTs, ok := m.declaredNext(g.GroupID, actor.ID)
		if !ok {
			continue
		}
		if !st.ResumeAt.IsZero() && nextTs.Before(st.ResumeAt) {
			nextTs = st.ResumeAt
		}

		aState := st.actor(actor.ID)
		if aState.LastKeepaliveNext != nextText {
			aState.KeepaliveCount = 0
			aState.LastKeepaliveNext = nextText
			aState.LastKeepaliveAt = time.Time{}
		}
		if aState.KeepaliveCount >= cfg.KeepaliveMaxPerActor {
			continue
		}

		baseDt := nextTs
		if aState.KeepaliveCount > 0 && !aState.LastKeepaliveAt.IsZero() {
			baseDt = aState.LastKeepaliveAt
		}
		if now.Sub(baseDt).Seconds() < float64(cfg.KeepaliveDelaySeconds) {
			continue
		}

		aState.KeepaliveCount++
		aState.LastKeepaliveAt = now
		hits = append(hits, keepaliveHit{actorID: actor.ID, nextText: nextText})
	}

	for _, h := range hits {
		msg := fmt.Sprintf("You mentioned: '%s'. Continue when ready.", h.nextText)
		if err := m.notify(g.GroupID, h.actorID, ledger.NotifyKeepalive, msg, false); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) declaredNext(groupID, actorID string) (string, time.Time, bool) {
	var lastText string
	var lastTs time.Time
	var found bool
	_ = m.Ledger.IterEvents(groupID, func(ev ledger.Event) error {
		if ev.Kind != ledger.KindChatMessage || ev.By != actorID {
			return nil
		}
		text, _ := ev.Data["text"].(string)
		for _, line := range strings.Split(text, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(strings.ToLower(trimmed), "next:") {
				lastText = trimmed
				lastTs = ev.Ts
				found = true
				break
			}
		}
		return nil
	})
	return lastText, lastTs, found
}

// checkSilence notifies the foreman when the whole group has produced
// no ledger activity for silence_timeout_seconds.
func (m *Manager) checkSilence(g *group.Group, cfg Config, st *State, now time.Time) error {
	if cfg.SilenceTimeoutSeconds <= 0 {
		return nil
	}
	foreman := g.Foreman()
	if foreman == nil {
		return nil
	}

	var lastActivity time.Time
	if err := m.Ledger.IterEvents(g.GroupID, func(ev ledger.Event) error {
		lastActivity = ev.Ts
		return nil
	}); err != nil {
		return err
	}
	if lastActivity.IsZero() {
		return nil
	}

	silenceSeconds := now.Sub(lastActivity).Seconds()
	if silenceSeconds < float64(cfg.SilenceTimeoutSeconds) {
		return nil
	}
	if !st.LastSilenceNotifyAt.IsZero() && now.Sub(st.LastSilenceNotifyAt).Seconds() < float64(cfg.SilenceTimeoutSeconds) {
		return nil
	}
	st.LastSilenceNotifyAt = now

	msg := fmt.Sprintf("No activity for %ds. Check if work is complete or if anyone needs help.", int(silenceSeconds))
	return m.notify(g.GroupID, foreman.ID, ledger.NotifySilence, msg, false)
}

// checkHelpNudge reminds running actors to re-run the help playbook
// once they have exchanged at least help_nudge_min_messages since the
// last reminder, gated by help_nudge_interval_seconds so it stays
// volume-driven rather than purely time-driven.
func (m *Manager) checkHelpNudge(g *group.Group, cfg Config, st *State, now time.Time) error {
	if cfg.HelpNudgeIntervalSeconds <= 0 || cfg.HelpNudgeMinMessages <= 0 {
		return nil
	}

	type runningActor struct {
		actorID    string
		sessionKey string
	}
	var running []runningActor
	runningIDs := map[string]bool{}
	for _, actor := range g.Actors {
		if actor.ID == "" || actor.ID == "user" || !actor.Enabled || !m.isActorRunning(g.GroupID, actor) {
			continue
		}
		sessionKey := ""
		if actor.Runner == group.RunnerHeadless {
			if s, ok := m.Headless.Get(g.GroupID, actor.ID); ok {
				sessionKey = s.StartedAt.Format(time.RFC3339Nano)
			}
		} else if sess, ok := m.PTY.Get(g.GroupID, actor.ID); ok {
			sessionKey = sess.SessionKey
		}
		running = append(running, runningActor{actorID: actor.ID, sessionKey: sessionKey})
		runningIDs[actor.ID] = true
	}
	if len(running) == 0 {
		return nil
	}

	// HelpLedgerPos is an event-count offset into the group's ledger, not
	// a byte offset: events before it have already been scored for
	// work-volume, only the tail is scanned each tick.
	events, err := m.Ledger.All(g.GroupID)
	if err != nil {
		return err
	}
	total := int64(len(events))
	if st.HelpLedgerPos < 0 || st.HelpLedgerPos > total {
		st.HelpLedgerPos = total
	} else if st.HelpLedgerPos < total {
		for _, ev := range events[int(st.HelpLedgerPos):] {
			if ev.Kind == ledger.KindChatMessage || ev.Kind == ledger.KindSystemNotify {
				for aid := range runningIDs {
					if eventForActor(g, aid, ev) {
						st.actor(aid).HelpMsgCountSince++
					}
				}
			}
		}
		st.HelpLedgerPos = total
	}

	var toNotify []string
	for _, r := range running {
		aState := st.actor(r.actorID)
		if r.sessionKey != "" && aState.HelpSessionKey != r.sessionKey {
			aState.HelpSessionKey = r.sessionKey
			aState.HelpLastNudgeAt = now
			aState.HelpMsgCountSince = 0
			continue
		}
		if aState.HelpLastNudgeAt.IsZero() {
			aState.HelpLastNudgeAt = now
			aState.HelpMsgCountSince = 0
			continue
		}
		if now.Sub(aState.HelpLastNudgeAt).Seconds() < float64(cfg.HelpNudgeIntervalSeconds) {
			continue
		}
		if aState.HelpMsgCountSince < cfg.HelpNudgeMinMessages {
			continue
		}
		aState.HelpLastNudgeAt = now
		aState.HelpMsgCountSince = 0
		toNotify = append(toNotify, r.actorID)
	}

	sort.Strings(toNotify)
	for _, aid := range toNotify {
		if err := m.notify(g.GroupID, aid, ledger.NotifyHelpNudge,
			"Run `cccc_help` now to refresh collaboration rules (ignoring will keep reminding).", false); err != nil {
			return err
		}
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
