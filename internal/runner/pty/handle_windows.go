//go:build windows

package pty

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/UserExistsError/conpty"
)

// Supported reports whether this platform can host a real PTY. Windows
// ConPTY exists, but the spec treats Windows as the headless default
// (§4.F.2); callers may still opt into ConPTY explicitly.
const Supported = true

type windowsHandle struct {
	cpty *conpty.ConPty
}

func (h *windowsHandle) Read(b []byte) (int, error)  { return h.cpty.Read(b) }
func (h *windowsHandle) Write(b []byte) (int, error) { return h.cpty.Write(b) }
func (h *windowsHandle) Close() error                { return h.cpty.Close() }

func (h *windowsHandle) Resize(cols, rows uint16) error {
	return h.cpty.Resize(int(cols), int(rows))
}

// start spawns cmd under a ConPTY pseudo-console at the given
// dimensions. ConPTY creates the process itself from a command line
// rather than an *exec.Cmd, so cmd.Process is populated afterward for
// callers that need the pid.
func start(cmd *exec.Cmd, cols, rows uint16) (Handle, error) {
	cmdLine := buildCmdLine(cmd.Args)
	if len(cmd.Args) == 0 {
		cmdLine = escapeArg(cmd.Path)
	}

	opts := []conpty.ConPtyOption{conpty.ConPtyDimensions(int(cols), int(rows))}
	if cmd.Dir != "" {
		opts = append(opts, conpty.ConPtyWorkDir(cmd.Dir))
	}
	if cmd.Env != nil {
		opts = append(opts, conpty.ConPtyEnv(cmd.Env))
	}

	cp, err := conpty.Start(cmdLine, opts...)
	if err != nil {
		return nil, err
	}

	proc, err := os.FindProcess(int(cp.Pid()))
	if err != nil {
		_ = cp.Close()
		return nil, fmt.Errorf("find conpty process %d: %w", cp.Pid(), err)
	}
	cmd.Process = proc

	return &windowsHandle{cpty: cp}, nil
}

func buildCmdLine(args []string) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = escapeArg(a)
	}
	return strings.Join(parts, " ")
}

func escapeArg(a string) string {
	if !strings.ContainsAny(a, " \t\"") {
		return a
	}
	return `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
}
