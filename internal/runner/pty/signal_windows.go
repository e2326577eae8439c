//go:build windows

package pty

import "os"

// Windows has no SIGTERM equivalent available to os.Process.Signal;
// Kill is the only portable option ConPTY processes support.
func signalTerm() os.Signal { return os.Kill }
