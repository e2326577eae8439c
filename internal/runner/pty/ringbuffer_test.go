package pty

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffer_EvictsOldestChunksOverBudget(t *testing.T) {
	rb := NewRingBuffer(10)

	rb.Append([]byte("0123456789")) // exactly at budget
	rb.Append([]byte("abcde"))      // pushes total to 15, must evict the first chunk

	got := rb.Bytes()
	assert.Equal(t, []byte("abcde"), got, "oldest whole chunk must be evicted, not partially truncated")
}

func TestRingBuffer_SnapshotPreservesOrderAndTimestamps(t *testing.T) {
	rb := NewRingBuffer(1024)
	rb.Append([]byte("first"))
	rb.Append([]byte("second"))

	chunks := rb.Snapshot()
	require.Len(t, chunks, 2)
	assert.Equal(t, []byte("first"), chunks[0].Data)
	assert.Equal(t, []byte("second"), chunks[1].Data)
	assert.False(t, chunks[0].Timestamp.After(chunks[1].Timestamp))
}

func TestRingBuffer_ClearDropsRetainedChunks(t *testing.T) {
	rb := NewRingBuffer(1024)
	rb.Append([]byte("data"))
	rb.Clear()
	assert.Empty(t, rb.Snapshot())
	assert.Empty(t, rb.Bytes())
}

func TestRingBuffer_SubscribeReceivesLiveAppends(t *testing.T) {
	rb := NewRingBuffer(1024)
	sub := rb.Subscribe()
	defer rb.Unsubscribe(sub)

	rb.Append([]byte("hello"))

	select {
	case chunk := <-sub:
		assert.True(t, bytes.Equal(chunk.Data, []byte("hello")))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber chunk")
	}
}
