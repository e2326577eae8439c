package ipc

import (
	"bytes"
	"os"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/registry"
)

// groupSnapshot is one group's entry in debug_snapshot's dump.
type groupSnapshot struct {
	GroupID    string `json:"group_id"`
	State      string `json:"state"`
	ActorCount int    `json:"actor_count"`
	EventCount int    `json:"event_count"`
}

// RegisterDebugOps wires debug_snapshot/debug_tail_logs/debug_clear_logs
// (spec §6.1 "Diagnostics", "dev-mode gated"). logPath returns the
// daemon's configured log output path; ops refuse with invalid_request
// when it is "stdout"/"stderr" rather than a real file, since there is
// nothing on disk to tail or clear in that case.
func RegisterDebugOps(d *Dispatcher, reg *registry.Registry, groups *group.Store, ledgerStore *ledger.Store, logPath func() string, devMode func() bool) {
	requireDevMode := RequireDevMode(devMode)

	d.Register("debug_snapshot", func(ctx *OpContext) (any, error) {
		entries, err := reg.List()
		if err != nil {
			return nil, err
		}
		out := make([]groupSnapshot, 0, len(entries))
		for _, e := range entries {
			g, err := groups.Load(e.GroupID)
			if err != nil {
				continue
			}
			events, err := ledgerStore.All(e.GroupID)
			if err != nil {
				continue
			}
			out = append(out, groupSnapshot{
				GroupID: g.GroupID, State: string(g.State),
				ActorCount: len(g.Actors), EventCount: len(events),
			})
		}
		return map[string]any{"groups": out}, nil
	}, requireDevMode)

	d.Register("debug_tail_logs", func(ctx *OpContext) (any, error) {
		path := logPath()
		if path == "" || path == "stdout" || path == "stderr" {
			return nil, apperr.Invalid("daemon is not logging to a file")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return map[string]any{"text": ""}, nil
			}
			return nil, apperr.Internal(err)
		}
		n := tailClamp(ctx.Int("lines"))
		lines := bytes.Split(data, []byte("\n"))
		if len(lines) > n {
			lines = lines[len(lines)-n:]
		}
		return map[string]any{"text": string(bytes.Join(lines, []byte("\n")))}, nil
	}, requireDevMode)

	d.Register("debug_clear_logs", func(ctx *OpContext) (any, error) {
		path := logPath()
		if path == "" || path == "stdout" || path == "stderr" {
			return nil, apperr.Invalid("daemon is not logging to a file")
		}
		if err := os.Truncate(path, 0); err != nil && !os.IsNotExist(err) {
			return nil, apperr.Internal(err)
		}
		return map[string]any{"cleared": true}, nil
	}, requireDevMode)
}
