package storage

import (
	"os"
	"time"
)

// RunnerState is the on-disk record of a live PTY-backed actor process
// (spec §4.F: "Exit hook clears runtime state files
// (state/runners/pty/<actor>.json) only if the pid matches").
type RunnerState struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// WriteRunnerState records a freshly started runner's pid.
func WriteRunnerState(p Paths, groupID, kind, actorID string, pid int, startedAt time.Time) error {
	return WriteJSONAtomic(p.RunnerStateFile(groupID, kind, actorID), RunnerState{PID: pid, StartedAt: startedAt}, 0o644)
}

// ClearRunnerStateIfPIDMatches removes a runner state file only if its
// recorded pid equals exitedPID, so a stale exit callback racing a
// fresh restart can never clobber the restarted process's own state
// file.
func ClearRunnerStateIfPIDMatches(p Paths, groupID, kind, actorID string, exitedPID int) error {
	path := p.RunnerStateFile(groupID, kind, actorID)
	var rs RunnerState
	if err := ReadJSON(path, &rs); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if rs.PID != exitedPID {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
