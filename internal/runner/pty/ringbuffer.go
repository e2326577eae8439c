package pty

import (
	"sync"
	"time"
)

// Chunk is one captured write from the PTY.
type Chunk struct {
	Data      []byte
	Timestamp time.Time
}

// RingBuffer captures PTY output up to a fixed byte budget, evicting
// the oldest whole chunks once the budget is exceeded (spec §4.F.1:
// "fixed-size ring buffer (default 10 MiB ... capped at 50 MB)").
// Evicting whole chunks rather than truncating bytes keeps every
// surviving chunk's timestamp meaningful.
type RingBuffer struct {
	mu        sync.Mutex
	chunks    []Chunk
	totalSize int64
	maxBytes  int64

	subscribers map[chan Chunk]struct{}
}

func NewRingBuffer(maxBytes int64) *RingBuffer {
	return &RingBuffer{
		maxBytes:    maxBytes,
		subscribers: make(map[chan Chunk]struct{}),
	}
}

// Append records a chunk and notifies live subscribers. Subscribers
// that can't keep up are skipped rather than blocking the PTY reader.
func (b *RingBuffer) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	chunk := Chunk{Data: cp, Timestamp: time.Now().UTC()}

	b.mu.Lock()
	b.chunks = append(b.chunks, chunk)
	b.totalSize += int64(len(cp))
	for b.totalSize > b.maxBytes && len(b.chunks) > 1 {
		evicted := b.chunks[0]
		b.chunks = b.chunks[1:]
		b.totalSize -= int64(len(evicted.Data))
	}
	b.mu.Unlock()

	b.mu.Lock()
	for sub := range b.subscribers {
		select {
		case sub <- chunk:
		default:
		}
	}
	b.mu.Unlock()
}

// Snapshot returns every retained chunk, oldest first.
func (b *RingBuffer) Snapshot() []Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Chunk, len(b.chunks))
	copy(out, b.chunks)
	return out
}

// Bytes concatenates every retained chunk into one buffer.
func (b *RingBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 0, b.totalSize)
	for _, c := range b.chunks {
		out = append(out, c.Data...)
	}
	return out
}

// Clear drops every retained chunk (spec's `clear_backlog`).
func (b *RingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = nil
	b.totalSize = 0
}

// Subscribe returns a channel that receives every chunk appended after
// this call, for term_attach live forwarding (spec §4.H).
func (b *RingBuffer) Subscribe() chan Chunk {
	ch := make(chan Chunk, 256)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe stops and closes a previously subscribed channel.
func (b *RingBuffer) Unsubscribe(ch chan Chunk) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}
