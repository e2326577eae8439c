// Package ledger implements §4.D: the per-group append-only JSONL event
// log, the single source of truth for group history (spec §3, §8
// property 1).
package ledger

import "time"

// Kind is a top-level ledger event kind (spec §3 "Canonical kinds").
type Kind string

const (
	KindGroupCreate   Kind = "group.create"
	KindGroupAttach   Kind = "group.attach"
	KindGroupUpdate   Kind = "group.update"
	KindGroupSetState Kind = "group.set_state"
	KindGroupDelete   Kind = "group.delete"

	KindActorAdd     Kind = "actor.add"
	KindActorUpdate  Kind = "actor.update"
	KindActorRemove  Kind = "actor.remove"
	KindActorStart   Kind = "actor.start"
	KindActorStop    Kind = "actor.stop"
	KindActorRestart Kind = "actor.restart"

	KindChatMessage  Kind = "chat.message"
	KindChatRead     Kind = "chat.read"
	KindChatAck      Kind = "chat.ack"

	KindSystemNotify    Kind = "system.notify"
	KindSystemNotifyAck Kind = "system.notify_ack"
)

// NotifyKind is the sub-enum carried in a system.notify event's data
// (spec §3).
type NotifyKind string

const (
	NotifyNudge       NotifyKind = "nudge"
	NotifyKeepalive   NotifyKind = "keepalive"
	NotifyHelpNudge   NotifyKind = "help_nudge"
	NotifyActorIdle   NotifyKind = "actor_idle"
	NotifySilence     NotifyKind = "silence_check"
	NotifyAutomation  NotifyKind = "automation"
	NotifyStatusChange NotifyKind = "status_change"
	NotifyError       NotifyKind = "error"
	NotifyInfo        NotifyKind = "info"
)

// Priority is a chat message's urgency (spec §3).
type Priority string

const (
	PriorityNormal    Priority = "normal"
	PriorityAttention Priority = "attention"
)

// Attachment is a file reference carried on a chat message (spec §4.G
// delivery formatting table).
type Attachment struct {
	Title string `json:"title"`
	Bytes int64  `json:"bytes"`
	Path  string `json:"path"`
}

// Provenance records the source group/event when a message was relayed
// cross-group (spec §3 "optional cross-group provenance").
type Provenance struct {
	SourceGroupID string `json:"source_group_id"`
	SourceEventID string `json:"source_event_id"`
}

// ChatMessageData is the data payload of a chat.message event.
type ChatMessageData struct {
	Text           string       `json:"text"`
	To             []string     `json:"to"`
	Priority       Priority     `json:"priority"`
	ReplyRequired  bool         `json:"reply_required"`
	ReplyTo        string       `json:"reply_to,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Provenance     *Provenance  `json:"provenance,omitempty"`
}

// ChatAckData is the data payload of a chat.ack or chat.read event.
type ChatAckData struct {
	EventID string `json:"event_id"`
}

// NotifyData is the data payload of a system.notify event.
type NotifyData struct {
	Kind           NotifyKind `json:"kind"`
	Text           string     `json:"text"`
	TargetActorID  string     `json:"target_actor_id,omitempty"`
	Priority       Priority   `json:"priority,omitempty"`
	RequiresAck    bool       `json:"requires_ack,omitempty"`
	Provenance     *Provenance `json:"provenance,omitempty"`
}

// NotifyAckData is the data payload of a system.notify_ack event.
type NotifyAckData struct {
	EventID string `json:"event_id"`
}

// Event is the minimum-fields envelope every ledger line carries (spec §3).
type Event struct {
	ID       string         `json:"id"`
	Ts       time.Time      `json:"ts"`
	Kind     Kind           `json:"kind"`
	GroupID  string         `json:"group_id"`
	ScopeKey string         `json:"scope_key,omitempty"`
	By       string         `json:"by"`
	Data     map[string]any `json:"data,omitempty"`
}
