// Package remoteaccess holds the daemon-wide CCCC_WEB_TOKEN-style
// settings spec §6.1's `remote_access_*` op group manages: an enabled
// flag, allow-insecure/allow-loopback flags and a bcrypt hash of a
// bearer token (spec §4.H, §5 "Shared resource policy": "never
// transmitted back to clients in plain form"). The document is stored
// and reported only: the IPC transport does not read it, and nothing
// in the daemon calls VerifyToken.
package remoteaccess

import (
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/storage"
)

// settingsFile is the on-disk document. TokenHash is never returned
// from Status; only TokenSet (whether one has been configured) is.
type settingsFile struct {
	Enabled       bool   `json:"enabled"`
	AllowInsecure bool   `json:"allow_insecure"`
	AllowLoopback bool   `json:"allow_loopback"`
	TokenHash     string `json:"token_hash,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Status is the client-facing view: never the hash, never the token.
type Status struct {
	Enabled       bool      `json:"enabled"`
	AllowInsecure bool      `json:"allow_insecure"`
	AllowLoopback bool      `json:"allow_loopback"`
	TokenSet      bool      `json:"token_set"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// Store reads and updates the remote-access document.
type Store struct {
	paths storage.Paths
}

func NewStore(paths storage.Paths) *Store { return &Store{paths: paths} }

func (s *Store) load() (settingsFile, error) {
	var f settingsFile
	if err := storage.ReadJSON(s.paths.RemoteAccessFile(), &f); err != nil {
		if os.IsNotExist(err) {
			return settingsFile{AllowLoopback: true}, nil
		}
		return settingsFile{}, apperr.Internal(err)
	}
	return f, nil
}

func (s *Store) save(f settingsFile) error {
	f.UpdatedAt = time.Now().UTC()
	return storage.WriteJSONAtomic(s.paths.RemoteAccessFile(), f, 0o600)
}

// Status returns the current settings without ever exposing the token.
func (s *Store) Status() (Status, error) {
	f, err := s.load()
	if err != nil {
		return Status{}, err
	}
	return Status{
		Enabled: f.Enabled, AllowInsecure: f.AllowInsecure, AllowLoopback: f.AllowLoopback,
		TokenSet: f.TokenHash != "", UpdatedAt: f.UpdatedAt,
	}, nil
}

// SetFlags updates enabled/allow_insecure/allow_loopback; nil leaves a
// flag unchanged.
func (s *Store) SetFlags(enabled, allowInsecure, allowLoopback *bool) (Status, error) {
	f, err := s.load()
	if err != nil {
		return Status{}, err
	}
	if enabled != nil {
		f.Enabled = *enabled
	}
	if allowInsecure != nil {
		f.AllowInsecure = *allowInsecure
	}
	if allowLoopback != nil {
		f.AllowLoopback = *allowLoopback
	}
	if err := s.save(f); err != nil {
		return Status{}, err
	}
	return s.Status()
}

// SetToken hashes and persists a new bearer token. Passing an empty
// string clears it (VerifyToken then refuses every token).
func (s *Store) SetToken(token string) (Status, error) {
	f, err := s.load()
	if err != nil {
		return Status{}, err
	}
	if token == "" {
		f.TokenHash = ""
	} else {
		hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
		if err != nil {
			return Status{}, apperr.Internal(err)
		}
		f.TokenHash = string(hash)
	}
	if err := s.save(f); err != nil {
		return Status{}, err
	}
	return s.Status()
}

// VerifyToken reports whether token matches the configured hash. A
// daemon with no token configured refuses every token (fails closed).
func (s *Store) VerifyToken(token string) (bool, error) {
	f, err := s.load()
	if err != nil {
		return false, err
	}
	if f.TokenHash == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(f.TokenHash), []byte(token)) == nil, nil
}
