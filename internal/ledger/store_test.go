package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cccc-dev/cccc/internal/storage"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	paths := storage.New(dir)
	return NewStore(paths, nil), "g_test"
}

func TestAppend_AssignsMonotonicIDs(t *testing.T) {
	s, groupID := newTestStore(t)

	var ids []string
	for i := 0; i < 50; i++ {
		ev, err := s.Append(groupID, Event{Kind: KindChatMessage, By: "a_foreman"})
		require.NoError(t, err)
		ids = append(ids, ev.ID)
	}

	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i], "ledger ids must strictly increase with append order")
	}
}

func TestIterEvents_SkipsTrailingCorruptLine(t *testing.T) {
	s, groupID := newTestStore(t)

	_, err := s.Append(groupID, Event{Kind: KindGroupCreate, By: "a_foreman"})
	require.NoError(t, err)
	_, err = s.Append(groupID, Event{Kind: KindChatMessage, By: "a_foreman"})
	require.NoError(t, err)

	path := s.paths.LedgerFile(groupID)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"ev_truncated","kind":"chat.mess`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := s.All(groupID)
	require.NoError(t, err)
	assert.Len(t, events, 2, "a truncated final line must be skipped, not fail the whole scan")
}

func TestFindEvent_LinearScan(t *testing.T) {
	s, groupID := newTestStore(t)

	var target Event
	for i := 0; i < 10; i++ {
		ev, err := s.Append(groupID, Event{Kind: KindChatMessage, By: "a_foreman", Data: map[string]any{"i": i}})
		require.NoError(t, err)
		if i == 5 {
			target = ev
		}
	}

	found, err := s.FindEvent(groupID, target.ID)
	require.NoError(t, err)
	assert.Equal(t, target.ID, found.ID)

	_, err = s.FindEvent(groupID, "ev_does_not_exist")
	require.Error(t, err)
}

func TestCompact_ArchivesDroppedEventsAndKeepsRest(t *testing.T) {
	s, groupID := newTestStore(t)

	var all []Event
	for i := 0; i < 6; i++ {
		ev, err := s.Append(groupID, Event{Kind: KindChatMessage, By: "a_foreman", Data: map[string]any{"i": i}})
		require.NoError(t, err)
		all = append(all, ev)
	}

	keepIDs := map[string]bool{all[4].ID: true, all[5].ID: true}
	archived, kept, err := s.Compact(groupID, func(ev Event) bool { return keepIDs[ev.ID] }, "20260731T000000Z")
	require.NoError(t, err)
	assert.Equal(t, 4, archived)
	assert.Equal(t, 2, kept)

	remaining, err := s.All(groupID)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, all[4].ID, remaining[0].ID)
	assert.Equal(t, all[5].ID, remaining[1].ID)

	archivePath := s.paths.LedgerArchive(groupID, "20260731T000000Z")
	_, err = os.Stat(archivePath)
	require.NoError(t, err)
}

func TestAppend_SequentialAppendsStayOrdered(t *testing.T) {
	s, groupID := newTestStore(t)

	dir := filepath.Dir(s.paths.LedgerFile(groupID))
	require.NoError(t, os.MkdirAll(dir, 0o755))

	for i := 0; i < 20; i++ {
		_, err := s.Append(groupID, Event{Kind: KindChatMessage, By: "a_foreman", Data: map[string]any{"seq": fmt.Sprintf("%d", i)}})
		require.NoError(t, err)
	}

	events, err := s.All(groupID)
	require.NoError(t, err)
	require.Len(t, events, 20)
	for i, ev := range events {
		assert.Equal(t, fmt.Sprintf("%d", i), ev.Data["seq"])
	}
}
