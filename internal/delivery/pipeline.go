package delivery

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/inbox"
	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/logging"
	"github.com/cccc-dev/cccc/internal/runner/pty"
	"github.com/cccc-dev/cccc/internal/storage"
)

type target struct {
	GroupID string
	ActorID string
}

// Pipeline is the process-wide delivery pipeline: one instance per
// daemon, driving tick_delivery for every group (spec §4.G). It holds
// no ledger cache — every tick re-reads the group and scans forward
// from the on-disk delivery cursor, matching the rest of the daemon's
// "no in-memory source of truth" discipline.
type Pipeline struct {
	paths    storage.Paths
	groups   *group.Store
	ledger   *ledger.Store
	inbox    *inbox.Store
	ptySup   *pty.Supervisor
	headless headlessRegistry
	log      *logging.Logger

	mu      sync.Mutex
	writeMu map[target]*sync.Mutex
	state   map[target]*actorState
}

// headlessRegistry is the subset of headless.Registry the pipeline
// needs, kept as an interface so tests can supply a stub.
type headlessRegistry interface {
	IsRunning(groupID, actorID string) bool
}

func NewPipeline(paths storage.Paths, groups *group.Store, ledgerStore *ledger.Store, inboxStore *inbox.Store, ptySup *pty.Supervisor, headlessReg headlessRegistry, log *logging.Logger) *Pipeline {
	return &Pipeline{
		paths:    paths,
		groups:   groups,
		ledger:   ledgerStore,
		inbox:    inboxStore,
		ptySup:   ptySup,
		headless: headlessReg,
		log:      log,
		writeMu:  make(map[target]*sync.Mutex),
		state:    make(map[target]*actorState),
	}
}

// ClearPreambleSent forgets an actor's preamble record; callers invoke
// this on every actor start/restart so the next delivered message
// re-primes the session (spec §4.G "clear_preamble_sent").
func (p *Pipeline) ClearPreambleSent(groupID, actorID string) error {
	return ClearPreambleSent(p.paths, groupID, actorID)
}

func (p *Pipeline) writeMutex(t target) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.writeMu[t]
	if !ok {
		m = &sync.Mutex{}
		p.writeMu[t] = m
	}
	return m
}

func (p *Pipeline) throttleState(t target) *actorState {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.state[t]
	if !ok {
		s = &actorState{}
		p.state[t] = s
	}
	return s
}

// TickDelivery drives one delivery pass for a group: for every enabled
// PTY-backed actor, deliver any eligible ledger events newer than its
// delivery cursor, subject to throttling (spec §4.G). It holds the
// group mutex for the duration, the same way every other group-
// mutating op does (spec §5): delivery both reads the group and, on
// auto-ack, appends ledger events on the actor's behalf.
func (p *Pipeline) TickDelivery(groupID string) error {
	unlock := p.groups.Lock(groupID)
	defer unlock()

	g, err := p.groups.Load(groupID)
	if err != nil {
		return err
	}

	for i := range g.Actors {
		actor := &g.Actors[i]
		if !actor.Enabled || actor.Runner != group.RunnerPTY {
			continue
		}
		if err := p.deliverToActor(g, actor); err != nil && p.log != nil {
			p.log.Warn("delivery tick failed for actor",
				zap.String("group_id", g.GroupID), zap.String("actor_id", actor.ID), zap.Error(err))
		}
	}
	return nil
}

func (p *Pipeline) deliverToActor(g *group.Group, actor *group.Actor) error {
	sess, ok := p.ptySup.Get(g.GroupID, actor.ID)
	if !ok || !sess.IsRunning() {
		return nil
	}

	t := target{GroupID: g.GroupID, ActorID: actor.ID}
	state := p.throttleState(t)
	now := time.Now().UTC()

	minInterval := time.Duration(g.Delivery.MinIntervalSeconds) * time.Second
	nextAllowed := state.lastDeliveryAt.Add(minInterval)
	if state.backoff > 0 {
		if backoffUntil := state.lastDeliveryAt.Add(state.backoff); backoffUntil.After(nextAllowed) {
			nextAllowed = backoffUntil
		}
	}
	if now.Before(nextAllowed) {
		return nil
	}

	if sess.IdleSeconds() < idleThreshold.Seconds() {
		p.bumpBackoff(state)
		return nil
	}

	cur, err := p.getCursor(g.GroupID, actor.ID)
	if err != nil {
		return err
	}

	var deliverable []ledger.Event
	afterCursor := cur.EventID == ""
	err = p.ledger.IterEvents(g.GroupID, func(ev ledger.Event) error {
		if !afterCursor {
			if ev.ID == cur.EventID {
				afterCursor = true
			}
			return nil
		}
		if p.eligibleForActor(g, actor, ev) {
			deliverable = append(deliverable, ev)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(deliverable) == 0 {
		state.backoff = 0
		return nil
	}

	needsPreamble, err := NeedsPreamble(p.paths, g.GroupID, actor.ID, sess.SessionKey)
	if err != nil {
		return err
	}

	var blocks []string
	if needsPreamble {
		text, err := LoadPreamble(p.paths, g.GroupID)
		if err != nil {
			return err
		}
		blocks = append(blocks, text)
	}
	for _, ev := range deliverable {
		blocks = append(blocks, renderEvent(ev))
	}
	payload := strings.Join(blocks, "\n")

	wmu := p.writeMutex(t)
	wmu.Lock()
	writeErr := sess.Write(payload, actor.Submit)
	wmu.Unlock()
	if writeErr != nil {
		return writeErr
	}

	if needsPreamble {
		if err := MarkPreambleSent(p.paths, g.GroupID, actor.ID, sess.SessionKey); err != nil {
			return err
		}
	}

	last := deliverable[len(deliverable)-1]
	if err := p.setCursor(g.GroupID, actor.ID, cursor{EventID: last.ID, Ts: last.Ts}); err != nil {
		return err
	}

	if g.Delivery.AutoMarkOnDelivery {
		if err := p.autoAck(g.GroupID, actor.ID, deliverable); err != nil {
			return err
		}
	}

	state.lastDeliveryAt = now
	state.backoff = 0
	return nil
}

// bumpBackoff doubles the adaptive backoff (bounded) applied while the
// runner keeps reporting recent output, so the pipeline doesn't
// interleave delivered text mid-stream of the actor's own output.
func (p *Pipeline) bumpBackoff(state *actorState) {
	if state.backoff == 0 {
		state.backoff = minBackoff
		return
	}
	state.backoff *= 2
	if state.backoff > maxBackoff {
		state.backoff = maxBackoff
	}
}

// eligibleForActor decides whether ev should be delivered to actor,
// applying the group state gate from spec §4.G: when the group is not
// active, only automation-kind system notifies still flow.
func (p *Pipeline) eligibleForActor(g *group.Group, actor *group.Actor, ev ledger.Event) bool {
	if g.State != group.StateActive {
		if ev.Kind != ledger.KindSystemNotify {
			return false
		}
		kind, _ := ev.Data["kind"].(string)
		return kind == string(ledger.NotifyAutomation) && notifyTargets(ev, actor.ID)
	}

	switch ev.Kind {
	case ledger.KindChatMessage:
		return inbox.IsMessageForActor(g, actor.ID, ev)
	case ledger.KindSystemNotify:
		return ev.By != actor.ID && notifyTargets(ev, actor.ID)
	default:
		return false
	}
}

func notifyTargets(ev ledger.Event, actorID string) bool {
	targetActorID, _ := ev.Data["target_actor_id"].(string)
	return targetActorID == "" || targetActorID == actorID
}

func (p *Pipeline) getCursor(groupID, actorID string) (cursor, error) {
	var c cursor
	err := storage.ReadJSON(p.paths.DeliveryCursorFile(groupID, actorID), &c)
	if err != nil {
		if os.IsNotExist(err) {
			return cursor{}, nil
		}
		return cursor{}, apperr.Internal(err)
	}
	return c, nil
}

func (p *Pipeline) setCursor(groupID, actorID string, c cursor) error {
	return storage.WriteJSONAtomic(p.paths.DeliveryCursorFile(groupID, actorID), c, 0o644)
}

// autoAck appends chat.read (and, for attention-priority messages,
// chat.ack) events on the recipient's behalf once delivery is
// confirmed, per spec §4.G's auto_mark_on_delivery behavior.
func (p *Pipeline) autoAck(groupID, actorID string, events []ledger.Event) error {
	for _, ev := range events {
		switch ev.Kind {
		case ledger.KindChatMessage:
			if _, err := p.ledger.Append(groupID, ledger.Event{
				Kind: ledger.KindChatRead, GroupID: groupID, By: actorID,
				Data: map[string]any{"event_id": ev.ID},
			}); err != nil {
				return err
			}
			data, err := decodeChatMessage(ev)
			if err == nil && data.Priority == ledger.PriorityAttention {
				if _, err := p.ledger.Append(groupID, ledger.Event{
					Kind: ledger.KindChatAck, GroupID: groupID, By: actorID,
					Data: map[string]any{"event_id": ev.ID},
				}); err != nil {
					return err
				}
			}
		case ledger.KindSystemNotify:
			data, err := decodeNotify(ev)
			if err == nil && data.RequiresAck {
				if _, err := p.ledger.Append(groupID, ledger.Event{
					Kind: ledger.KindSystemNotifyAck, GroupID: groupID, By: actorID,
					Data: map[string]any{"event_id": ev.ID},
				}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func renderEvent(ev ledger.Event) string {
	switch ev.Kind {
	case ledger.KindChatMessage:
		data, err := decodeChatMessage(ev)
		if err != nil {
			text, _ := ev.Data["text"].(string)
			return text
		}
		return FormatMessage(ev, data)
	case ledger.KindSystemNotify:
		data, err := decodeNotify(ev)
		if err != nil {
			return ""
		}
		return renderNotify(ev, data)
	default:
		return ""
	}
}

func renderNotify(ev ledger.Event, data ledger.NotifyData) string {
	var prefix string
	if data.Priority == ledger.PriorityAttention {
		prefix = "[cccc] IMPORTANT (event_id=" + ev.ID + "):\n"
	}
	if data.Provenance != nil {
		prefix += "[cccc] RELAYED FROM (group_id=" + data.Provenance.SourceGroupID +
			", event_id=" + data.Provenance.SourceEventID + "):\n"
	}
	return prefix + data.Text
}

func decodeChatMessage(ev ledger.Event) (ledger.ChatMessageData, error) {
	var data ledger.ChatMessageData
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return data, err
	}
	err = json.Unmarshal(raw, &data)
	return data, err
}

func decodeNotify(ev ledger.Event) (ledger.NotifyData, error) {
	var data ledger.NotifyData
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return data, err
	}
	err = json.Unmarshal(raw, &data)
	return data, err
}
