// Package pty implements §4.F.1: the PTY-backed runner supervisor. A
// controlled pseudo-terminal is spawned per (group_id, actor_id); its
// output is captured into a bounded ring buffer and its input accepts a
// configurable submit discipline.
package pty

import "io"

// Handle abstracts PTY operations across Unix (creack/pty) and Windows
// (ConPTY), so the supervisor above it never branches on GOOS.
type Handle interface {
	io.ReadWriteCloser
	Resize(cols, rows uint16) error
}
