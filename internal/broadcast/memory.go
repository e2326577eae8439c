// Package broadcast implements the process-wide event broadcaster
// (spec §4.J): a subscriber registry keyed by group_id, fed by the
// ledger's append hook, fanning out to every live events_stream
// subscription without ever blocking the append path.
package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/logging"
)

// subscriber is one live events_stream connection's mailbox. ch is
// bounded; a full channel marks the subscriber overflowed rather than
// blocking or dropping silently (spec §4.J.3: "non-blocking on the
// append path — slow subscribers are disconnected").
type subscriber struct {
	ch          chan ledger.Event
	overflowed  chan struct{}
	overflowOne sync.Once
}

// Memory is the default broadcaster backend: in-process channels, no
// external dependency, scoped to a single daemon (spec §4.J, teacher's
// events/bus MemoryEventBus).
type Memory struct {
	mu         sync.RWMutex
	subs       map[string]map[*subscriber]struct{}
	bufferSize int
	log        *logging.Logger
}

// NewMemory creates an in-memory broadcaster. bufferSize bounds each
// subscriber's per-connection buffer (spec §4.J.3).
func NewMemory(bufferSize int, log *logging.Logger) *Memory {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Memory{
		subs:       make(map[string]map[*subscriber]struct{}),
		bufferSize: bufferSize,
		log:        log,
	}
}

// Subscribe registers a new subscription for groupID, satisfying
// ipc.Broadcaster. cancel removes the subscription; it is safe to call
// more than once.
func (m *Memory) Subscribe(groupID string) (<-chan ledger.Event, <-chan struct{}, func()) {
	sub := &subscriber{
		ch:         make(chan ledger.Event, m.bufferSize),
		overflowed: make(chan struct{}),
	}

	m.mu.Lock()
	if m.subs[groupID] == nil {
		m.subs[groupID] = make(map[*subscriber]struct{})
	}
	m.subs[groupID][sub] = struct{}{}
	m.mu.Unlock()

	var cancelOnce sync.Once
	cancel := func() {
		cancelOnce.Do(func() {
			m.mu.Lock()
			delete(m.subs[groupID], sub)
			if len(m.subs[groupID]) == 0 {
				delete(m.subs, groupID)
			}
			m.mu.Unlock()
		})
	}

	return sub.ch, sub.overflowed, cancel
}

// Publish fans ev out to every subscriber of groupID. It is the ledger
// append hook (spec §4.D step 3, §4.J) and must never block: a
// subscriber whose channel is full is marked overflowed and stops
// receiving further events, leaving events_stream to close its socket.
func (m *Memory) Publish(groupID string, ev ledger.Event) {
	m.mu.RLock()
	subs := m.subs[groupID]
	targets := make([]*subscriber, 0, len(subs))
	for s := range subs {
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	for _, s := range targets {
		select {
		case <-s.overflowed:
			continue
		default:
		}
		select {
		case s.ch <- ev:
		default:
			s.overflowOne.Do(func() { close(s.overflowed) })
			if m.log != nil {
				m.log.Warn("broadcast: subscriber overflowed", zap.String("group_id", groupID))
			}
		}
	}
}

// Close deactivates every subscription. Intended for daemon shutdown.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, subs := range m.subs {
		for s := range subs {
			s.overflowOne.Do(func() { close(s.overflowed) })
		}
	}
	m.subs = make(map[string]map[*subscriber]struct{})
}
