// Package delivery implements §4.G: the pipeline that pushes ledger
// events into a running actor's PTY (or, for headless actors, leaves
// them for MCP polling), throttled and ordered per spec §5's strict
// ledger-order delivery rule.
package delivery

import "time"

// cursor is the delivery pipeline's own position marker, distinct from
// the inbox read/ack cursor (spec §4.G: delivery must proceed even when
// auto_mark_on_delivery is false, so it cannot reuse the inbox cursor).
type cursor struct {
	EventID string    `json:"event_id"`
	Ts      time.Time `json:"ts"`
}

// actorState is the in-memory throttle bookkeeping for one
// (group_id, actor_id) delivery target. It does not persist: a daemon
// restart just redelivers from the on-disk cursor, which is safe
// because delivery is idempotent by ledger order (spec §7 "no retry
// counters").
type actorState struct {
	lastDeliveryAt time.Time
	backoff        time.Duration
}

// idleThreshold is how recently a PTY must have produced output before
// the pipeline considers it "not idle" and defers delivery rather than
// interleaving input with in-flight output (spec §4.G "adaptive
// backoff when the runner reports not-idle").
const idleThreshold = 2 * time.Second

// minBackoff/maxBackoff bound the adaptive backoff applied on top of
// min_interval_seconds while an actor keeps reporting not-idle.
const (
	minBackoff = 1 * time.Second
	maxBackoff = 30 * time.Second
)
