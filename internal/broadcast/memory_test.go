package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cccc-dev/cccc/internal/ledger"
)

func TestMemory_PublishDeliversToSubscriber(t *testing.T) {
	m := NewMemory(4, nil)
	ch, overflowed, cancel := m.Subscribe("g1")
	defer cancel()

	ev := ledger.Event{ID: "ev1", GroupID: "g1", Kind: ledger.KindChatMessage}
	m.Publish("g1", ev)

	select {
	case got := <-ch:
		assert.Equal(t, "ev1", got.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case <-overflowed:
		t.Fatal("subscriber should not be overflowed")
	default:
	}
}

func TestMemory_PublishOnlyReachesMatchingGroup(t *testing.T) {
	m := NewMemory(4, nil)
	ch, _, cancel := m.Subscribe("g1")
	defer cancel()

	m.Publish("g2", ledger.Event{ID: "ev1", GroupID: "g2"})

	select {
	case <-ch:
		t.Fatal("subscriber for g1 should not receive g2 events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemory_OverflowClosesOverflowedChannel(t *testing.T) {
	m := NewMemory(1, nil)
	ch, overflowed, cancel := m.Subscribe("g1")
	defer cancel()

	m.Publish("g1", ledger.Event{ID: "ev1"})
	m.Publish("g1", ledger.Event{ID: "ev2"}) // channel already full, should overflow

	select {
	case <-overflowed:
	case <-time.After(time.Second):
		t.Fatal("expected overflowed to close")
	}

	// The first event is still readable even after overflow.
	got := <-ch
	assert.Equal(t, "ev1", got.ID)
}

func TestMemory_CancelRemovesSubscriber(t *testing.T) {
	m := NewMemory(4, nil)
	_, _, cancel := m.Subscribe("g1")

	m.mu.RLock()
	count := len(m.subs["g1"])
	m.mu.RUnlock()
	require.Equal(t, 1, count)

	cancel()
	cancel() // idempotent

	m.mu.RLock()
	_, ok := m.subs["g1"]
	m.mu.RUnlock()
	assert.False(t, ok)
}
