package pty

import (
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/logging"
)

// defaultPerActorBytes and maxPerActorBytes mirror spec §4.F.1's
// default/cap for the ring buffer, used when the caller passes zero.
const (
	defaultPerActorBytes = 10 * 1024 * 1024
	maxPerActorBytes     = 50 * 1024 * 1024
)

// key identifies a supervised runner instance; the supervisor is a
// process-wide singleton keyed by (group_id, actor_id) (spec §4.F).
type key struct {
	GroupID string
	ActorID string
}

// Session is one live (or just-exited) PTY-backed actor process.
type Session struct {
	GroupID   string
	ActorID   string
	StartedAt time.Time
	SessionKey string

	handle Handle
	cmd    *exec.Cmd
	buffer *RingBuffer

	mu            sync.Mutex
	lastOutputTs  time.Time
	running       bool
	exitErr       error
}

// IdleSeconds returns how long it has been since the last byte of
// output (spec §4.F.1: "the authoritative signal for PTY actors").
func (s *Session) IdleSeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastOutputTs.IsZero() {
		return time.Since(s.StartedAt).Seconds()
	}
	return time.Since(s.lastOutputTs).Seconds()
}

// IsRunning reports whether the underlying process is still alive.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pid returns the OS process id of the supervised process, or 0 if it
// never started.
func (s *Session) Pid() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// TailOutput returns the buffered output chunks.
func (s *Session) TailOutput() []Chunk { return s.buffer.Snapshot() }

// ClearBacklog drops the ring buffer's retained chunks.
func (s *Session) ClearBacklog() { s.buffer.Clear() }

// Write sends text to the PTY with the given submit discipline applied.
func (s *Session) Write(text string, submit group.Submit) error {
	s.mu.Lock()
	running := s.running
	h := s.handle
	s.mu.Unlock()
	if !running || h == nil {
		return apperr.New(apperr.DaemonUnavailable, "actor process is not running", nil)
	}
	_, err := h.Write([]byte(FormatSubmit(text, submit)))
	return err
}

// WriteRaw sends bytes directly to the PTY with no submit-discipline
// formatting applied, used by term_attach's raw interactive passthrough
// (spec §4.H), as opposed to Write's chat/notify delivery formatting.
func (s *Session) WriteRaw(data []byte) error {
	s.mu.Lock()
	running := s.running
	h := s.handle
	s.mu.Unlock()
	if !running || h == nil {
		return apperr.New(apperr.DaemonUnavailable, "actor process is not running", nil)
	}
	_, err := h.Write(data)
	return err
}

// Resize changes the PTY window size.
func (s *Session) Resize(cols, rows uint16) error {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil {
		return apperr.New(apperr.DaemonUnavailable, "actor process is not running", nil)
	}
	return h.Resize(cols, rows)
}

// Subscribe attaches a live-forwarding channel for term_attach (spec §4.H).
func (s *Session) Subscribe() chan Chunk { return s.buffer.Subscribe() }

// Unsubscribe detaches a previously subscribed channel.
func (s *Session) Unsubscribe(ch chan Chunk) { s.buffer.Unsubscribe(ch) }

// ExitCallback is invoked once the process exits, so the supervisor's
// owner can clear runner state files and emit a status_change notify.
type ExitCallback func(sess *Session, err error)

// Supervisor manages every live PTY session for the daemon.
type Supervisor struct {
	log *logging.Logger

	mu       sync.Mutex
	sessions map[key]*Session

	onExit ExitCallback
}

func NewSupervisor(log *logging.Logger) *Supervisor {
	return &Supervisor{log: log, sessions: make(map[key]*Session)}
}

// SetExitCallback registers the callback invoked when any session's
// process exits.
func (sv *Supervisor) SetExitCallback(cb ExitCallback) { sv.onExit = cb }

// StartOptions bundles the per-launch parameters Start needs beyond the
// actor's own persisted fields.
type StartOptions struct {
	Command        []string
	Env            []string
	WorkingDir     string
	Cols, Rows     uint16
	PerActorBytes  int64
}

// Start spawns a new PTY session for (groupID, actorID). If one is
// already running, it is returned unchanged — callers must Stop first
// to restart.
func (sv *Supervisor) Start(groupID, actorID string, runtime group.Runtime, opts StartOptions) (*Session, error) {
	k := key{GroupID: groupID, ActorID: actorID}

	sv.mu.Lock()
	if existing, ok := sv.sessions[k]; ok && existing.IsRunning() {
		sv.mu.Unlock()
		return existing, nil
	}
	sv.mu.Unlock()

	if len(opts.Command) == 0 {
		return nil, apperr.Invalid("command must not be empty")
	}

	cols, rows := opts.Cols, opts.Rows
	if cols == 0 {
		cols = 120
	}
	if rows == 0 {
		rows = 40
	}

	perActorBytes := opts.PerActorBytes
	if perActorBytes <= 0 {
		perActorBytes = defaultPerActorBytes
	}
	if perActorBytes > maxPerActorBytes {
		perActorBytes = maxPerActorBytes
	}

	argv := NormalizeCommand(runtime, opts.Command)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.WorkingDir
	cmd.Env = opts.Env

	handle, err := start(cmd, cols, rows)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("start pty for actor %s: %w", actorID, err))
	}

	now := time.Now().UTC()
	sess := &Session{
		GroupID:    groupID,
		ActorID:    actorID,
		StartedAt:  now,
		SessionKey: SessionKey(now.UnixNano()),
		handle:     handle,
		cmd:        cmd,
		buffer:     NewRingBuffer(perActorBytes),
		running:    true,
	}

	sv.mu.Lock()
	sv.sessions[k] = sess
	sv.mu.Unlock()

	go sv.readLoop(sess)
	go sv.waitLoop(sess)

	if sv.log != nil {
		sv.log.Info("pty session started",
			zap.String("group_id", groupID), zap.String("actor_id", actorID),
			zap.Strings("command", argv))
	}

	return sess, nil
}

// Get returns the session for (groupID, actorID), if any.
func (sv *Supervisor) Get(groupID, actorID string) (*Session, bool) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sess, ok := sv.sessions[key{GroupID: groupID, ActorID: actorID}]
	return sess, ok
}

// Stop terminates a running session: SIGTERM, then SIGKILL after a
// grace period if it hasn't exited.
func (sv *Supervisor) Stop(groupID, actorID string, grace time.Duration) error {
	sess, ok := sv.Get(groupID, actorID)
	if !ok {
		return nil
	}

	sess.mu.Lock()
	h := sess.handle
	cmd := sess.cmd
	sess.mu.Unlock()

	if h != nil {
		_ = h.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(signalTerm())

		done := make(chan struct{})
		go func() {
			_ = cmd.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(grace):
			_ = cmd.Process.Kill()
		}
	}

	return nil
}

func (sv *Supervisor) readLoop(sess *Session) {
	buf := make([]byte, 32*1024)
	for {
		n, err := sess.handle.Read(buf)
		if n > 0 {
			data := buf[:n]
			sess.buffer.Append(data)
			sess.mu.Lock()
			sess.lastOutputTs = time.Now().UTC()
			sess.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (sv *Supervisor) waitLoop(sess *Session) {
	err := sess.cmd.Wait()

	sess.mu.Lock()
	sess.running = false
	sess.exitErr = err
	sess.mu.Unlock()

	_ = sess.handle.Close()

	if sv.log != nil {
		sv.log.Info("pty session exited",
			zap.String("group_id", sess.GroupID), zap.String("actor_id", sess.ActorID),
			zap.Error(err))
	}

	sv.mu.Lock()
	delete(sv.sessions, key{GroupID: sess.GroupID, ActorID: sess.ActorID})
	sv.mu.Unlock()

	if sv.onExit != nil {
		sv.onExit(sess, err)
	}
}
