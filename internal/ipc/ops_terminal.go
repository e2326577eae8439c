package ipc

import (
	"bytes"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/runner/pty"
)

// tailClamp bounds how many trailing lines terminal_tail/the actor-idle
// notify body will render, matching spec §4.I.2's "N clamped to 1..80".
func tailClamp(n int) int {
	if n <= 0 {
		return 80
	}
	if n > 80 {
		return 80
	}
	return n
}

// renderTail joins a session's retained backlog into one text blob and
// returns only its last n lines.
func renderTail(chunks []pty.Chunk, n int) string {
	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(c.Data)
	}
	lines := bytes.Split(buf.Bytes(), []byte("\n"))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return string(bytes.Join(lines, []byte("\n")))
}

// RegisterTerminalOps wires terminal_tail/terminal_clear/term_resize
// (spec §6.1 "Diagnostics", "Maintenance" groups).
func RegisterTerminalOps(d *Dispatcher, groups *group.Store, ptySup *pty.Supervisor) {
	userOrForeman := RequireUserOrForeman(groups)

	d.Register("terminal_tail", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		sess, ok := ptySup.Get(groupID, actorID)
		if !ok {
			return nil, apperr.New(apperr.DaemonUnavailable, "actor is not running", nil)
		}
		lines := tailClamp(ctx.Int("lines"))
		return map[string]any{"text": renderTail(sess.TailOutput(), lines)}, nil
	}, nil)

	d.Register("terminal_clear", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		sess, ok := ptySup.Get(groupID, actorID)
		if !ok {
			return nil, apperr.New(apperr.DaemonUnavailable, "actor is not running", nil)
		}
		sess.ClearBacklog()
		return map[string]any{"cleared": true}, nil
	}, userOrForeman)

	d.Register("term_resize", func(ctx *OpContext) (any, error) {
		groupID, err := ctx.StrRequired("group_id")
		if err != nil {
			return nil, err
		}
		actorID, err := ctx.StrRequired("actor_id")
		if err != nil {
			return nil, err
		}
		cols := ctx.Int("cols")
		rows := ctx.Int("rows")
		if cols <= 0 || rows <= 0 {
			return nil, apperr.Invalid("cols and rows must be positive")
		}
		sess, ok := ptySup.Get(groupID, actorID)
		if !ok {
			return nil, apperr.New(apperr.DaemonUnavailable, "actor is not running", nil)
		}
		if err := sess.Resize(uint16(cols), uint16(rows)); err != nil {
			return nil, apperr.Internal(err)
		}
		return map[string]any{"resized": true}, nil
	}, nil)
}
