// Package automation implements the ~1Hz background loop that reminds
// actors of pending obligations, flags stuck sessions, and fires
// user-defined scheduled rules (spec §4.I). Automation fully respects
// group state: paused groups run nothing, idle groups run only
// user-defined rules, active groups run every level.
package automation

import "github.com/cccc-dev/cccc/internal/group"

// Config is the effective (defaults-applied) automation configuration
// for one group, derived from group.yaml's automation section.
type Config struct {
	ReplyRequiredNudgeAfterSeconds int
	AttentionAckNudgeAfterSeconds  int
	UnreadNudgeAfterSeconds        int
	NudgeDigestMinIntervalSeconds  int
	NudgeMaxRepeatsPerObligation   int
	NudgeEscalateAfterRepeats      int

	ActorIdleTimeoutSeconds int

	KeepaliveDelaySeconds int
	KeepaliveMaxPerActor  int

	SilenceTimeoutSeconds int

	HelpNudgeIntervalSeconds int
	HelpNudgeMinMessages     int
}

const (
	defaultNudgeAfterSeconds            = 300
	defaultNudgeDigestMinIntervalSecond = 120
	defaultNudgeMaxRepeatsPerObligation = 3
	defaultNudgeEscalateAfterRepeats    = 2
	defaultActorIdleTimeoutSeconds      = 600
	defaultKeepaliveDelaySeconds        = 120
	defaultKeepaliveMaxPerActor         = 3
	defaultSilenceTimeoutSeconds        = 600
	defaultHelpNudgeIntervalSeconds     = 600
	defaultHelpNudgeMinMessages         = 10
)

func intOrDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// effectiveConfig applies the same defaulting rules as the original
// per-field legacy fallbacks (reply_required/attention_ack/unread
// nudge intervals derive from the legacy nudge_after_seconds default
// when unset, scaled by 1x/2x/3x).
func effectiveConfig(s group.AutomationSettings) Config {
	base := defaultNudgeAfterSeconds

	replyRequired := s.ReplyRequiredNudgeAfterSeconds
	if replyRequired <= 0 {
		replyRequired = base
	}
	attentionAck := s.AttentionAckNudgeAfterSeconds
	if attentionAck <= 0 {
		attentionAck = base * 2
	}
	unread := s.UnreadNudgeAfterSeconds
	if unread <= 0 {
		unread = base * 3
	}

	return Config{
		ReplyRequiredNudgeAfterSeconds: replyRequired,
		AttentionAckNudgeAfterSeconds:  attentionAck,
		UnreadNudgeAfterSeconds:        unread,
		NudgeDigestMinIntervalSeconds:  intOrDefault(s.NudgeDigestMinIntervalSeconds, defaultNudgeDigestMinIntervalSecond),
		NudgeMaxRepeatsPerObligation:   intOrDefault(s.NudgeMaxRepeatsPerObligation, defaultNudgeMaxRepeatsPerObligation),
		NudgeEscalateAfterRepeats:      intOrDefault(s.NudgeEscalateAfterRepeats, defaultNudgeEscalateAfterRepeats),
		ActorIdleTimeoutSeconds:        intOrDefault(s.ActorIdleTimeoutSeconds, defaultActorIdleTimeoutSeconds),
		KeepaliveDelaySeconds:          intOrDefault(s.KeepaliveDelaySeconds, defaultKeepaliveDelaySeconds),
		KeepaliveMaxPerActor:           intOrDefault(s.KeepaliveMaxPerActor, defaultKeepaliveMaxPerActor),
		SilenceTimeoutSeconds:          intOrDefault(s.SilenceTimeoutSeconds, defaultSilenceTimeoutSeconds),
		HelpNudgeIntervalSeconds:       intOrDefault(s.HelpNudgeIntervalSeconds, defaultHelpNudgeIntervalSeconds),
		HelpNudgeMinMessages:           intOrDefault(s.HelpNudgeMinMessages, defaultHelpNudgeMinMessages),
	}
}
