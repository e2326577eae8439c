// Package group implements §4.C: the per-group YAML state model and its
// mutators. The daemon is the sole writer, so every op round-trips
// through load -> mutate -> save with no in-memory cache held between
// calls (spec §4.C, §9 "Automation state location" applies the same
// discipline to group.yaml).
package group

import "time"

// State is the runtime activity gate for a group (spec §3).
type State string

const (
	StateActive State = "active"
	StateIdle   State = "idle"
	StatePaused State = "paused"
)

// SendTo is the default recipient policy for chat.send (spec §3).
type SendTo string

const (
	SendToForeman   SendTo = "foreman"
	SendToBroadcast SendTo = "broadcast"
)

// TranscriptVisibility controls who can see a PTY actor's raw output.
type TranscriptVisibility string

const (
	VisibilityOff     TranscriptVisibility = "off"
	VisibilityForeman TranscriptVisibility = "foreman"
	VisibilityAll     TranscriptVisibility = "all"
)

// Role is an actor's effective role within a group.
type Role string

const (
	RoleForeman Role = "foreman"
	RolePeer    Role = "peer"
	RoleUser    Role = "user"
)

// Runtime enumerates known actor CLI backends (spec glossary).
type Runtime string

const (
	RuntimeCodex      Runtime = "codex"
	RuntimeClaude     Runtime = "claude"
	RuntimeDroid      Runtime = "droid"
	RuntimeAmp        Runtime = "amp"
	RuntimeAuggie     Runtime = "auggie"
	RuntimeNeovate    Runtime = "neovate"
	RuntimeGemini     Runtime = "gemini"
	RuntimeCursor     Runtime = "cursor"
	RuntimeKilocode   Runtime = "kilocode"
	RuntimeOpencode   Runtime = "opencode"
	RuntimeCopilot    Runtime = "copilot"
	RuntimeCustom     Runtime = "custom"
)

// RunnerKind is the execution attachment for an actor (spec §3, glossary).
type RunnerKind string

const (
	RunnerPTY      RunnerKind = "pty"
	RunnerHeadless RunnerKind = "headless"
)

// Submit is the key the PTY driver uses to dispatch input (spec §3).
type Submit string

const (
	SubmitEnter      Submit = "enter"
	SubmitCtrlEnter  Submit = "ctrl+enter"
	SubmitPaste      Submit = "paste"
)

// Scope is a filesystem workspace attached to a group (spec §3).
type Scope struct {
	ScopeKey  string `yaml:"scope_key" json:"scope_key"`
	URL       string `yaml:"url" json:"url"`
	Label     string `yaml:"label,omitempty" json:"label,omitempty"`
	GitRemote string `yaml:"git_remote,omitempty" json:"git_remote,omitempty"`
}

// Messaging holds the group's default recipient policy.
type Messaging struct {
	DefaultSendTo SendTo `yaml:"default_send_to" json:"default_send_to"`
}

// Delivery holds per-group delivery pipeline settings (spec §4.G).
type Delivery struct {
	MinIntervalSeconds int  `yaml:"min_interval_seconds" json:"min_interval_seconds"`
	AutoMarkOnDelivery bool `yaml:"auto_mark_on_delivery" json:"auto_mark_on_delivery"`
}

// AutomationSettings is the group's automation rule set and timer knobs
// (spec §3, §4.I).
type AutomationSettings struct {
	Version int    `yaml:"version" json:"version"`
	Rules   []Rule `yaml:"rules" json:"rules"`

	ReplyRequiredNudgeAfterSeconds int `yaml:"reply_required_nudge_after_seconds" json:"reply_required_nudge_after_seconds"`
	AttentionAckNudgeAfterSeconds  int `yaml:"attention_ack_nudge_after_seconds" json:"attention_ack_nudge_after_seconds"`
	UnreadNudgeAfterSeconds        int `yaml:"unread_nudge_after_seconds" json:"unread_nudge_after_seconds"`
	NudgeDigestMinIntervalSeconds  int `yaml:"nudge_digest_min_interval_seconds" json:"nudge_digest_min_interval_seconds"`
	NudgeMaxRepeatsPerObligation   int `yaml:"nudge_max_repeats_per_obligation" json:"nudge_max_repeats_per_obligation"`
	NudgeEscalateAfterRepeats      int `yaml:"nudge_escalate_after_repeats" json:"nudge_escalate_after_repeats"`

	ActorIdleTimeoutSeconds int `yaml:"actor_idle_timeout_seconds" json:"actor_idle_timeout_seconds"`

	KeepaliveDelaySeconds int `yaml:"keepalive_delay_seconds" json:"keepalive_delay_seconds"`
	KeepaliveMaxPerActor  int `yaml:"keepalive_max_per_actor" json:"keepalive_max_per_actor"`

	SilenceTimeoutSeconds int `yaml:"silence_timeout_seconds" json:"silence_timeout_seconds"`

	HelpNudgeIntervalSeconds int `yaml:"help_nudge_interval_seconds" json:"help_nudge_interval_seconds"`
	HelpNudgeMinMessages     int `yaml:"help_nudge_min_messages" json:"help_nudge_min_messages"`

	Snippets map[string]string `yaml:"snippets,omitempty" json:"snippets,omitempty"`
}

// RuleScope is the visibility scope of a user-defined automation rule.
type RuleScope string

const (
	RuleScopeGroup    RuleScope = "group"
	RuleScopePersonal RuleScope = "personal"
)

// TriggerKind enumerates the three trigger kinds for user rules (spec §4.I.6).
type TriggerKind string

const (
	TriggerInterval TriggerKind = "interval"
	TriggerCron     TriggerKind = "cron"
	TriggerAt       TriggerKind = "at"
)

// Trigger is a tagged-union-flavored struct: only the fields relevant to
// Kind are populated. Unknown/irrelevant fields round-trip through YAML
// untouched by virtue of being zero-valued, matching spec §9's directive
// to keep persistence schema-lenient.
type Trigger struct {
	Kind         TriggerKind `yaml:"kind" json:"kind"`
	EverySeconds int         `yaml:"every_seconds,omitempty" json:"every_seconds,omitempty"`
	Cron         string      `yaml:"cron,omitempty" json:"cron,omitempty"`
	Timezone     string      `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	At           time.Time   `yaml:"at,omitempty" json:"at,omitempty"`
}

// ActionKind enumerates the three action kinds for user rules (spec §4.I.6).
type ActionKind string

const (
	ActionNotify        ActionKind = "notify"
	ActionGroupState    ActionKind = "group_state"
	ActionActorControl  ActionKind = "actor_control"
)

// ActorControlOp is the actor_control action's verb.
type ActorControlOp string

const (
	ActorControlStart   ActorControlOp = "start"
	ActorControlStop    ActorControlOp = "stop"
	ActorControlRestart ActorControlOp = "restart"
)

// Action is a tagged-union-flavored struct for rule actions.
type Action struct {
	Kind ActionKind `yaml:"kind" json:"kind"`

	// ActionNotify
	SnippetRef string `yaml:"snippet_ref,omitempty" json:"snippet_ref,omitempty"`
	Message    string `yaml:"message,omitempty" json:"message,omitempty"`

	// ActionGroupState
	State State `yaml:"state,omitempty" json:"state,omitempty"`

	// ActionActorControl
	ControlOp ActorControlOp `yaml:"control_op,omitempty" json:"control_op,omitempty"`
	Target    string         `yaml:"target,omitempty" json:"target,omitempty"` // @all | @foreman | @peers | <actor_id>
}

// Rule is a single user-defined automation rule (spec §4.I.6).
type Rule struct {
	ID            string    `yaml:"id" json:"id"`
	Enabled       bool      `yaml:"enabled" json:"enabled"`
	Scope         RuleScope `yaml:"scope" json:"scope"`
	OwnerActorID  string    `yaml:"owner_actor_id,omitempty" json:"owner_actor_id,omitempty"`
	To            []string  `yaml:"to" json:"to"`
	Trigger       Trigger   `yaml:"trigger" json:"trigger"`
	Action        Action    `yaml:"action" json:"action"`
}

// TerminalTranscript controls PTY transcript visibility and the
// actor-idle notify tail (spec §3, §4.I.2).
type TerminalTranscript struct {
	Visibility  TranscriptVisibility `yaml:"visibility" json:"visibility"`
	NotifyTail  bool                 `yaml:"notify_tail" json:"notify_tail"`
	NotifyLines int                  `yaml:"notify_lines" json:"notify_lines"`
}

// IM holds bridge configuration; the bridge process itself is an
// external collaborator (spec §1 Out of scope) — only its config shape
// lives here.
type IM struct {
	Enabled  bool              `yaml:"enabled" json:"enabled"`
	Provider string            `yaml:"provider,omitempty" json:"provider,omitempty"`
	Settings map[string]string `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// Actor is a single agent instance within a group (spec §3).
type Actor struct {
	ID                     string            `yaml:"id" json:"id"`
	Title                  string            `yaml:"title" json:"title"`
	Role                   Role              `yaml:"role" json:"role"`
	Runtime                Runtime           `yaml:"runtime" json:"runtime"`
	Runner                 RunnerKind        `yaml:"runner" json:"runner"`
	Command                []string          `yaml:"command,omitempty" json:"command,omitempty"`
	Submit                 Submit            `yaml:"submit" json:"submit"`
	DefaultScopeKey        string            `yaml:"default_scope_key,omitempty" json:"default_scope_key,omitempty"`
	Env                    map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	ProfileID              string            `yaml:"profile_id,omitempty" json:"profile_id,omitempty"`
	ProfileRevisionApplied int               `yaml:"profile_revision_applied,omitempty" json:"profile_revision_applied,omitempty"`
	Enabled                bool              `yaml:"enabled" json:"enabled"`
	Running                bool              `yaml:"running" json:"running"`
	CreatedAt              time.Time         `yaml:"created_at" json:"created_at"`
	UpdatedAt              time.Time         `yaml:"updated_at" json:"updated_at"`
}

// Group is the persistent unit of collaboration (spec §3).
type Group struct {
	GroupID         string              `yaml:"group_id" json:"group_id"`
	Title           string              `yaml:"title" json:"title"`
	Topic           string              `yaml:"topic,omitempty" json:"topic,omitempty"`
	Scopes          []Scope             `yaml:"scopes" json:"scopes"`
	ActiveScopeKey  string              `yaml:"active_scope_key,omitempty" json:"active_scope_key,omitempty"`
	Actors          []Actor             `yaml:"actors" json:"actors"`
	Messaging       Messaging           `yaml:"messaging" json:"messaging"`
	Delivery        Delivery            `yaml:"delivery" json:"delivery"`
	Automation      AutomationSettings  `yaml:"automation" json:"automation"`
	Terminal        TerminalTranscript  `yaml:"terminal_transcript" json:"terminal_transcript"`
	IM              IM                  `yaml:"im" json:"im"`
	Running         bool                `yaml:"running" json:"running"`
	State           State               `yaml:"state" json:"state"`
	CreatedAt       time.Time           `yaml:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `yaml:"updated_at" json:"updated_at"`
}

// Foreman returns the group's foreman actor, if any (spec §3 invariant:
// at most one actor with role foreman).
func (g *Group) Foreman() *Actor {
	for i := range g.Actors {
		if g.Actors[i].Role == RoleForeman {
			return &g.Actors[i]
		}
	}
	return nil
}

// FindActor returns the actor with the given id, if present.
func (g *Group) FindActor(actorID string) *Actor {
	for i := range g.Actors {
		if g.Actors[i].ID == actorID {
			return &g.Actors[i]
		}
	}
	return nil
}

// FindScope returns the scope with the given key, if present.
func (g *Group) FindScope(scopeKey string) *Scope {
	for i := range g.Scopes {
		if g.Scopes[i].ScopeKey == scopeKey {
			return &g.Scopes[i]
		}
	}
	return nil
}

// Validate enforces the group-level invariants from spec §3.
func (g *Group) Validate() error {
	seenForeman := false
	seenActorIDs := map[string]bool{}
	for _, a := range g.Actors {
		if a.Role == RoleForeman {
			if seenForeman {
				return errMultipleForemen
			}
			seenForeman = true
		}
		if seenActorIDs[a.ID] {
			return errDuplicateActorID(a.ID)
		}
		seenActorIDs[a.ID] = true
		if a.Runtime == RuntimeCustom && a.Runner == RunnerPTY && len(a.Command) == 0 {
			return errCustomRequiresCommand(a.ID)
		}
	}
	seenScopeKeys := map[string]bool{}
	for _, s := range g.Scopes {
		if seenScopeKeys[s.ScopeKey] {
			return errDuplicateScopeKey(s.ScopeKey)
		}
		seenScopeKeys[s.ScopeKey] = true
	}
	if g.ActiveScopeKey != "" && g.FindScope(g.ActiveScopeKey) == nil {
		return errActiveScopeNotAttached(g.ActiveScopeKey)
	}
	return nil
}
