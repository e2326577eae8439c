//go:build !windows

package pty

import (
	"os"
	"syscall"
)

func signalTerm() os.Signal { return syscall.SIGTERM }
