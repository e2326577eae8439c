package storage

import (
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// DaemonLock guards the single-daemon-per-CCCC_HOME invariant (spec
// §4.A, §5). It wraps a gofrs/flock advisory lock on daemon/ccccd.lock.
type DaemonLock struct {
	fl *flock.Flock
}

// TryAcquire attempts to take the exclusive lock without blocking. The
// second return value is false if another daemon already owns this
// CCCC_HOME — callers must treat that as "exit 0, another daemon is
// running" per spec §4.A and §7 ("Fatal errors").
func TryAcquire(paths Paths) (*DaemonLock, bool, error) {
	if err := os.MkdirAll(paths.DaemonDir(), 0o755); err != nil {
		return nil, false, fmt.Errorf("mkdir daemon dir: %w", err)
	}
	fl := flock.New(paths.LockFile())
	ok, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &DaemonLock{fl: fl}, true, nil
}

// Release drops the lock. Only called on clean shutdown, per spec §4.A.
func (l *DaemonLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

// AddrDescriptor is the contents of daemon/ccccd.addr.json (spec §4.A,
// §6.1), rewritten on every daemon start.
type AddrDescriptor struct {
	Transport string    `json:"transport"` // unix | tcp
	Path      string    `json:"path,omitempty"`
	Host      string    `json:"host,omitempty"`
	Port      int       `json:"port,omitempty"`
	PID       int       `json:"pid"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"ts"`
}

// WriteAddr persists the endpoint descriptor atomically.
func WriteAddr(paths Paths, desc AddrDescriptor) error {
	return WriteJSONAtomic(paths.AddrFile(), desc, 0o644)
}

// ReadAddr loads the endpoint descriptor, used by clients to discover
// the running daemon.
func ReadAddr(paths Paths) (AddrDescriptor, error) {
	var desc AddrDescriptor
	err := ReadJSON(paths.AddrFile(), &desc)
	return desc, err
}

// WritePID persists the daemon pid file.
func WritePID(paths Paths, pid int) error {
	return os.WriteFile(paths.PidFile(), []byte(fmt.Sprintf("%d\n", pid)), 0o644)
}

// RemoveRuntimeFiles deletes the sock/pid/addr files on clean shutdown
// (spec §5 "Cancellation").
func RemoveRuntimeFiles(paths Paths) {
	_ = os.Remove(paths.SockFile())
	_ = os.Remove(paths.PidFile())
	_ = os.Remove(paths.AddrFile())
}
