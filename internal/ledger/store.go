package ledger

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/idgen"
	"github.com/cccc-dev/cccc/internal/logging"
	"github.com/cccc-dev/cccc/internal/storage"
)

// maxLineBytes bounds a single ledger line, matching the buffer growth
// cap used for the actor-side blob/attachment payloads (spec §4.D).
const maxLineBytes = 8 * 1024 * 1024

// Store is the per-daemon handle onto every group's ledger.jsonl. The
// daemon is the single writer (spec §5), so appends take only the
// caller-held group mutex; Store itself holds no lock.
type Store struct {
	paths storage.Paths
	log   *logging.Logger

	hookMu sync.RWMutex
	hook   func(groupID string, ev Event)
}

func NewStore(paths storage.Paths, log *logging.Logger) *Store {
	return &Store{paths: paths, log: log}
}

// SetAppendHook wires the broadcaster (spec §4.J's "append hook"): fn
// runs synchronously after every successful Append, once the line is
// flushed to disk. fn must not block — a slow subscriber is the
// broadcaster's problem to disconnect, never the ledger's problem to
// wait on.
func (s *Store) SetAppendHook(fn func(groupID string, ev Event)) {
	s.hookMu.Lock()
	s.hook = fn
	s.hookMu.Unlock()
}

// Append mints an id and timestamp for ev (if unset) and appends it as
// one JSON line. Callers must hold the group's mutex for the whole
// load-mutate-append sequence (spec §5).
func (s *Store) Append(groupID string, ev Event) (Event, error) {
	if ev.ID == "" {
		ev.ID = idgen.Event()
	}
	if ev.Ts.IsZero() {
		ev.Ts = time.Now().UTC()
	}
	ev.GroupID = groupID

	path := s.paths.LedgerFile(groupID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Event{}, apperr.Internal(err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Event{}, apperr.Internal(err)
	}
	defer func() { _ = f.Close() }()

	data, err := json.Marshal(ev)
	if err != nil {
		return Event{}, apperr.Internal(err)
	}
	data = append(data, '\n')

	if _, err := f.Write(data); err != nil {
		return Event{}, apperr.Internal(err)
	}
	if err := f.Sync(); err != nil {
		return Event{}, apperr.Internal(err)
	}

	s.hookMu.RLock()
	hook := s.hook
	s.hookMu.RUnlock()
	if hook != nil {
		hook(groupID, ev)
	}

	return ev, nil
}

// IterEvents streams every event in append order, calling fn for each.
// A truncated or corrupt final line (e.g. from a crash mid-write) is
// skipped rather than failing the whole scan (spec §4.D, §8 property 3).
// Returning a non-nil error from fn stops iteration and propagates it.
func (s *Store) IterEvents(groupID string, fn func(Event) error) error {
	path := s.paths.LedgerFile(groupID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperr.Internal(err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			if s.log != nil {
				s.log.Warn("skipping corrupt ledger line",
					zap.String("group_id", groupID), zap.Int("line", lineNo), zap.Error(err))
			}
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// All loads every event into memory. Intended for small groups and
// tests; IterEvents should be preferred for anything streaming-shaped.
func (s *Store) All(groupID string) ([]Event, error) {
	var out []Event
	err := s.IterEvents(groupID, func(ev Event) error {
		out = append(out, ev)
		return nil
	})
	return out, err
}

// FindEvent performs the spec-mandated O(n) linear scan for a single
// event id. No secondary index is maintained (spec §4.D: "deliberately
// no external index; find_event is a linear scan").
func (s *Store) FindEvent(groupID, eventID string) (Event, error) {
	var found *Event
	err := s.IterEvents(groupID, func(ev Event) error {
		if ev.ID == eventID {
			e := ev
			found = &e
		}
		return nil
	})
	if err != nil {
		return Event{}, err
	}
	if found == nil {
		return Event{}, apperr.NotFound(apperr.InvalidRequest, fmt.Sprintf("event not found: %s", eventID))
	}
	return *found, nil
}

// Compact archives every event for which keep returns false into a
// timestamped ledger.<stamp>.jsonl.gz file, leaving the remainder (in
// original order) as the live ledger.jsonl. Callers decide what "keep"
// means — typically "has an unresolved obligation or an inbox cursor
// not yet past it" (spec §4.D, §4.E) — so this package stays agnostic
// of inbox/automation state.
func (s *Store) Compact(groupID string, keep func(Event) bool, stamp string) (archived int, kept int, err error) {
	events, err := s.All(groupID)
	if err != nil {
		return 0, 0, err
	}

	var keptEvents, archivedEvents []Event
	for _, ev := range events {
		if keep(ev) {
			keptEvents = append(keptEvents, ev)
		} else {
			archivedEvents = append(archivedEvents, ev)
		}
	}
	if len(archivedEvents) == 0 {
		return 0, len(keptEvents), nil
	}

	archivePath := s.paths.LedgerArchive(groupID, stamp)
	if err := writeGzipJSONL(archivePath, archivedEvents); err != nil {
		return 0, 0, err
	}

	livePath := s.paths.LedgerFile(groupID)
	tmp := livePath + ".compact-tmp"
	if err := writePlainJSONL(tmp, keptEvents); err != nil {
		return 0, 0, err
	}
	if err := os.Rename(tmp, livePath); err != nil {
		return 0, 0, apperr.Internal(err)
	}

	return len(archivedEvents), len(keptEvents), nil
}

func writePlainJSONL(path string, events []Event) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.Internal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		return apperr.Internal(err)
	}
	defer func() { _ = f.Close() }()
	return writeEventsTo(f, events)
}

func writeGzipJSONL(path string, events []Event) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.Internal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		return apperr.Internal(err)
	}
	defer func() { _ = f.Close() }()

	gz := gzip.NewWriter(f)
	if err := writeEventsTo(gz, events); err != nil {
		return err
	}
	return gz.Close()
}

func writeEventsTo(w io.Writer, events []Event) error {
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return apperr.Internal(err)
		}
	}
	return nil
}
