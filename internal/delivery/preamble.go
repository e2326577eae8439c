package delivery

import (
	"os"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/storage"
)

const preambleFileName = "CCCC_PREAMBLE.md"

// defaultPreamble is sent once per PTY session when no group override
// exists under groups/<gid>/prompts/CCCC_PREAMBLE.md.
const defaultPreamble = `[cccc] You are running inside a CCCC collaboration group. Messages from
peers and the foreman arrive as plain text prefixed with [cccc] tags.
Use cccc_message_send to reply and cccc_message_reply for anything
marked REPLY REQUIRED. This preamble is shown once per session.
`

// preambleSentState is the on-disk record of which PTY session key a
// preamble has already been sent for, per actor.
type preambleSentState struct {
	Sent map[string]string `json:"sent"` // actor_id -> session_key
}

// LoadPreamble returns the group's preamble text: an override file at
// groups/<gid>/prompts/CCCC_PREAMBLE.md if present, else the built-in
// default.
func LoadPreamble(paths storage.Paths, groupID string) (string, error) {
	override := paths.PromptOverride(groupID, preambleFileName)
	data, err := os.ReadFile(override)
	if err == nil {
		return string(data), nil
	}
	if os.IsNotExist(err) {
		return defaultPreamble, nil
	}
	return "", apperr.Internal(err)
}

func loadPreambleSentState(paths storage.Paths, groupID string) (preambleSentState, error) {
	var st preambleSentState
	err := storage.ReadJSON(paths.PreambleSentFile(groupID), &st)
	if err != nil {
		if os.IsNotExist(err) {
			return preambleSentState{Sent: map[string]string{}}, nil
		}
		return preambleSentState{}, apperr.Internal(err)
	}
	if st.Sent == nil {
		st.Sent = map[string]string{}
	}
	return st, nil
}

func savePreambleSentState(paths storage.Paths, groupID string, st preambleSentState) error {
	return storage.WriteJSONAtomic(paths.PreambleSentFile(groupID), st, 0o644)
}

// NeedsPreamble reports whether actorID has not yet been sent the
// preamble for the given PTY session_key (spec §4.F.1: a new session
// re-primes).
func NeedsPreamble(paths storage.Paths, groupID, actorID, sessionKey string) (bool, error) {
	st, err := loadPreambleSentState(paths, groupID)
	if err != nil {
		return false, err
	}
	return st.Sent[actorID] != sessionKey, nil
}

// MarkPreambleSent records that actorID has received the preamble for
// sessionKey, so subsequent ticks in the same session skip it.
func MarkPreambleSent(paths storage.Paths, groupID, actorID, sessionKey string) error {
	st, err := loadPreambleSentState(paths, groupID)
	if err != nil {
		return err
	}
	st.Sent[actorID] = sessionKey
	return savePreambleSentState(paths, groupID, st)
}

// ClearPreambleSent forgets actorID's preamble record, forcing it to be
// resent on the actor's next delivered message. Callers invoke this on
// every actor start/restart (spec §4.G "clear_preamble_sent").
func ClearPreambleSent(paths storage.Paths, groupID, actorID string) error {
	st, err := loadPreambleSentState(paths, groupID)
	if err != nil {
		return err
	}
	delete(st.Sent, actorID)
	return savePreambleSentState(paths, groupID, st)
}
