package pty

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cccc-dev/cccc/internal/group"
)

// altLineSep is the alternate line separator used by the ctrl+enter
// submit discipline. Most interactive CLIs treat a bare \n the same as
// Enter and reserve \x1b\r (ESC + CR) for a "newline without submit"
// signal sent by ctrl+enter in a real terminal.
const altLineSep = "\x1b\r"

// FormatSubmit appends the separator implied by the actor's configured
// submit discipline (spec §4.F.1). `paste` wraps the text in bracketed
// paste escapes; the corresponding shell-side handling is disabled via
// WriteInputrc so the spawned process never interprets (and eats) the
// escape sequence itself.
func FormatSubmit(text string, submit group.Submit) string {
	switch submit {
	case group.SubmitCtrlEnter:
		return text + altLineSep
	case group.SubmitPaste:
		return "\x1b[200~" + text + "\x1b[201~"
	default:
		return text + "\n"
	}
}

// WriteInputrc writes an INPUTRC file disabling readline's own
// bracketed-paste handling, so programmatic writes via the `paste`
// submit discipline are never swallowed by the shell (spec §4.F.1).
func WriteInputrc(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	const contents = "set enable-bracketed-paste off\n"
	return os.WriteFile(path, []byte(contents), 0o644)
}

// NormalizeCommand applies a per-runtime adjustment to the argv used to
// actually launch the process, without mutating the actor's persisted
// command (spec §4.F.1). Only codex needs an adjustment today: it must
// inherit the actor's environment into MCP subprocesses it spawns.
func NormalizeCommand(runtime group.Runtime, command []string) []string {
	out := make([]string, len(command))
	copy(out, command)

	switch runtime {
	case group.RuntimeCodex:
		out = append(out, "-c", "shell_environment_policy.inherit=all")
	}
	return out
}

// SessionKey derives the `started_at` stamp used to detect that a new
// PTY session has begun, e.g. to reset preamble-sent flags (spec
// §4.F.1).
func SessionKey(startedAtUnixNano int64) string {
	return fmt.Sprintf("sess_%d", startedAtUnixNano)
}
