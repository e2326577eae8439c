// Package imbridge implements the daemon side of spec §6.1's IM & misc
// `im_*` op group: pending authorization keys, the authorized-chat
// list, and the bridge process pid for one group's IM bridge. The
// bridge process itself is an external collaborator (spec §1 Out of
// scope; group.IM already holds only its config shape) — this package
// owns only the runtime bookkeeping a bridge and a daemon operator
// share: "unauthorized chat sends a command, bridge mints a key,
// operator binds it, chat becomes authorized" (grounded on
// original_source's ports/im/auth.KeyManager and
// daemon/ops/im_ops.py's im_bind_chat/im_list_authorized/im_revoke_chat).
package imbridge

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"time"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/storage"
)

// KeyTTL is how long a pending pairing key stays bindable before it
// must be re-issued.
const KeyTTL = 10 * time.Minute

type PendingKey struct {
	Key       string    `json:"key"`
	ChatID    string    `json:"chat_id"`
	ThreadID  int       `json:"thread_id,omitempty"`
	Platform  string    `json:"platform,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (k PendingKey) expired(now time.Time) bool { return now.Sub(k.CreatedAt) > KeyTTL }

type AuthorizedChat struct {
	ChatID       string    `json:"chat_id"`
	ThreadID     int       `json:"thread_id,omitempty"`
	Platform     string    `json:"platform,omitempty"`
	AuthorizedAt time.Time `json:"authorized_at"`
}

type stateFile struct {
	PendingKeys     []PendingKey      `json:"pending_keys,omitempty"`
	AuthorizedChats []AuthorizedChat  `json:"authorized_chats,omitempty"`
	BridgePID       int               `json:"bridge_pid,omitempty"`
	BridgeStartedAt time.Time         `json:"bridge_started_at,omitempty"`
}

// Status is what im_status returns: the group's bridge config plus its
// runtime bookkeeping.
type Status struct {
	IM              group.IM          `json:"im"`
	BridgePID       int               `json:"bridge_pid,omitempty"`
	BridgeRunning   bool              `json:"bridge_running"`
	BridgeStartedAt time.Time         `json:"bridge_started_at,omitempty"`
	PendingCount    int               `json:"pending_count"`
	AuthorizedChats []AuthorizedChat  `json:"authorized_chats"`
}

// Store owns the per-group im_state.json file (pending keys, authorized
// chats, bridge pid — spec's on-disk layout line for state/im_*) and the
// group.yaml IM config field, serialized through group.Store's existing
// per-group lock (the same discipline every other group-scoped write
// follows, spec §5).
type Store struct {
	paths  storage.Paths
	groups *group.Store
}

func NewStore(paths storage.Paths, groups *group.Store) *Store {
	return &Store{paths: paths, groups: groups}
}

func (s *Store) load(groupID string) (stateFile, error) {
	var f stateFile
	if err := storage.ReadJSON(s.paths.IMStateFile(groupID), &f); err != nil {
		if os.IsNotExist(err) {
			return stateFile{}, nil
		}
		return stateFile{}, err
	}
	return f, nil
}

func (s *Store) save(groupID string, f stateFile) error {
	return storage.WriteJSONAtomic(s.paths.IMStateFile(groupID), f, 0o600)
}

func (f *stateFile) purgeExpired(now time.Time) {
	kept := f.PendingKeys[:0]
	for _, k := range f.PendingKeys {
		if !k.expired(now) {
			kept = append(kept, k)
		}
	}
	f.PendingKeys = kept
}

func (f *stateFile) findAuthorized(chatID string, threadID int) int {
	for i, c := range f.AuthorizedChats {
		if c.ChatID == chatID && c.ThreadID == threadID {
			return i
		}
	}
	return -1
}

// Status loads the group's IM config and current bridge/auth bookkeeping.
func (s *Store) Status(groupID string) (Status, error) {
	g, err := s.groups.Load(groupID)
	if err != nil {
		return Status{}, err
	}
	f, err := s.load(groupID)
	if err != nil {
		return Status{}, err
	}
	now := time.Now().UTC()
	f.purgeExpired(now)
	return Status{
		IM:              g.IM,
		BridgePID:       f.BridgePID,
		BridgeRunning:   f.BridgePID > 0,
		BridgeStartedAt: f.BridgeStartedAt,
		PendingCount:    len(f.PendingKeys),
		AuthorizedChats: append([]AuthorizedChat{}, f.AuthorizedChats...),
	}, nil
}

// SetConfig mutates the group's IM bridge config (enabled/provider/
// settings) — group.yaml, not the runtime state file.
func (s *Store) SetConfig(groupID string, enabled *bool, provider string, settings map[string]string) (group.IM, error) {
	g, err := s.groups.Mutate(groupID, func(g *group.Group) error {
		if enabled != nil {
			g.IM.Enabled = *enabled
		}
		if provider != "" {
			g.IM.Provider = provider
		}
		if settings != nil {
			g.IM.Settings = settings
		}
		return nil
	})
	if err != nil {
		return group.IM{}, err
	}
	return g.IM, nil
}

// GenerateKey mints a short-lived pairing key for a chat (grounded on
// KeyManager.generate_key's secrets.token_urlsafe(8)). Normally minted
// by the bridge process itself on an inbound "/subscribe"; exposed as a
// daemon op so an operator (or a bridge implementation) can mint one
// without reimplementing the TTL/storage bookkeeping.
func (s *Store) GenerateKey(groupID, chatID string, threadID int, platform string) (PendingKey, error) {
	unlock := s.groups.Lock(groupID)
	defer unlock()

	f, err := s.load(groupID)
	if err != nil {
		return PendingKey{}, err
	}
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return PendingKey{}, apperr.Internal(err)
	}
	key := PendingKey{
		Key:       base64.RawURLEncoding.EncodeToString(buf),
		ChatID:    chatID,
		ThreadID:  threadID,
		Platform:  platform,
		CreatedAt: time.Now().UTC(),
	}
	f.purgeExpired(key.CreatedAt)
	f.PendingKeys = append(f.PendingKeys, key)
	if err := s.save(groupID, f); err != nil {
		return PendingKey{}, err
	}
	return key, nil
}

// BindChat consumes a pending key and authorizes its chat (spec:
// "User binds the key via Web API or CLI -> chat becomes authorized").
func (s *Store) BindChat(groupID, key string) (AuthorizedChat, error) {
	unlock := s.groups.Lock(groupID)
	defer unlock()

	f, err := s.load(groupID)
	if err != nil {
		return AuthorizedChat{}, err
	}
	now := time.Now().UTC()
	f.purgeExpired(now)

	idx := -1
	for i, k := range f.PendingKeys {
		if k.Key == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return AuthorizedChat{}, apperr.Invalid("key not found or expired")
	}
	pending := f.PendingKeys[idx]
	f.PendingKeys = append(f.PendingKeys[:idx], f.PendingKeys[idx+1:]...)

	chatID, threadID := pending.ChatID, pending.ThreadID
	authorized := AuthorizedChat{ChatID: chatID, ThreadID: threadID, Platform: pending.Platform, AuthorizedAt: now}
	if existing := f.findAuthorized(chatID, threadID); existing >= 0 {
		f.AuthorizedChats[existing] = authorized
	} else {
		f.AuthorizedChats = append(f.AuthorizedChats, authorized)
	}
	if err := s.save(groupID, f); err != nil {
		return AuthorizedChat{}, err
	}
	return authorized, nil
}

// ListPending returns bindable keys, purging any that have expired.
func (s *Store) ListPending(groupID string) ([]PendingKey, error) {
	unlock := s.groups.Lock(groupID)
	defer unlock()

	f, err := s.load(groupID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	before := len(f.PendingKeys)
	f.purgeExpired(now)
	if len(f.PendingKeys) != before {
		if err := s.save(groupID, f); err != nil {
			return nil, err
		}
	}
	return append([]PendingKey{}, f.PendingKeys...), nil
}

// ListAuthorized returns every authorized chat for a group.
func (s *Store) ListAuthorized(groupID string) ([]AuthorizedChat, error) {
	f, err := s.load(groupID)
	if err != nil {
		return nil, err
	}
	return append([]AuthorizedChat{}, f.AuthorizedChats...), nil
}

// RevokeChat removes a chat's authorization. Returns false if it wasn't
// authorized to begin with.
func (s *Store) RevokeChat(groupID, chatID string, threadID int) (bool, error) {
	unlock := s.groups.Lock(groupID)
	defer unlock()

	f, err := s.load(groupID)
	if err != nil {
		return false, err
	}
	idx := f.findAuthorized(chatID, threadID)
	if idx < 0 {
		return false, nil
	}
	f.AuthorizedChats = append(f.AuthorizedChats[:idx], f.AuthorizedChats[idx+1:]...)
	if err := s.save(groupID, f); err != nil {
		return false, err
	}
	return true, nil
}

// SetBridgePID records the pid of a just-started bridge process
// (written by whatever starts the bridge, grounded on
// bootstrap_im_ops.py writing state/im_bridge.pid after a successful
// Popen).
func (s *Store) SetBridgePID(groupID string, pid int) error {
	unlock := s.groups.Lock(groupID)
	defer unlock()

	f, err := s.load(groupID)
	if err != nil {
		return err
	}
	f.BridgePID = pid
	f.BridgeStartedAt = time.Now().UTC()
	return s.save(groupID, f)
}

// ClearBridgePID clears the recorded pid, e.g. once the bridge process
// has exited (grounded on im_bridge_ops.py unlinking the pid file once
// it has signalled the process).
func (s *Store) ClearBridgePID(groupID string) error {
	unlock := s.groups.Lock(groupID)
	defer unlock()

	f, err := s.load(groupID)
	if err != nil {
		return err
	}
	f.BridgePID = 0
	f.BridgeStartedAt = time.Time{}
	return s.save(groupID, f)
}
