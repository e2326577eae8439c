// Package secrets implements §4.K and the data model's "Private env" /
// "Actor Profile" sections: per-actor and per-profile secret maps
// stored outside group.yaml with 0600 permissions, plus the reusable
// Actor Profile registry (profile revisions, drift detection).
package secrets

import (
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/storage"
)

// secretFilePerm is tighter than the 0644 used for ordinary daemon
// state: secret files must never be group/world readable (spec's
// "Private env" paragraph).
const secretFilePerm = 0o600

// Profile is a reusable, global Actor Profile (spec §3 "Actor Profile").
// Its secret map is stored separately, never inline here.
type Profile struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Runtime   group.Runtime `json:"runtime"`
	Runner    group.RunnerKind `json:"runner"`
	Command   []string      `json:"command,omitempty"`
	Submit    group.Submit  `json:"submit"`
	Revision  int           `json:"revision"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type profilesFile struct {
	Profiles map[string]Profile `json:"profiles"`
}

type secretFile struct {
	Values map[string]string `json:"values"`
}

// Store manages both actor profiles and the private-env secret stores
// for actors and profiles. One mutex guards the profiles.json file;
// per-entity secret files are written atomically and need no shared
// lock since each lives at its own path.
type Store struct {
	paths storage.Paths
	mu    sync.Mutex
}

func NewStore(paths storage.Paths) *Store {
	return &Store{paths: paths}
}

// --- Actor profiles --------------------------------------------------

func (s *Store) loadProfiles() (profilesFile, error) {
	var f profilesFile
	if err := storage.ReadJSON(s.paths.ActorProfilesFile(), &f); err != nil {
		if os.IsNotExist(err) {
			return profilesFile{Profiles: map[string]Profile{}}, nil
		}
		return profilesFile{}, apperr.Internal(err)
	}
	if f.Profiles == nil {
		f.Profiles = map[string]Profile{}
	}
	return f, nil
}

func (s *Store) saveProfiles(f profilesFile) error {
	return storage.WriteJSONAtomic(s.paths.ActorProfilesFile(), f, 0o644)
}

// UpsertProfile creates or updates a profile, bumping its revision on
// every call (spec §3: "Revision increments on every upsert").
func (s *Store) UpsertProfile(p Profile) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.loadProfiles()
	if err != nil {
		return Profile{}, err
	}

	now := time.Now().UTC()
	if existing, ok := f.Profiles[p.ID]; ok {
		p.Revision = existing.Revision + 1
		p.CreatedAt = existing.CreatedAt
	} else {
		p.Revision = 1
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	f.Profiles[p.ID] = p
	if err := s.saveProfiles(f); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// GetProfile looks up a profile by id.
func (s *Store) GetProfile(profileID string) (Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.loadProfiles()
	if err != nil {
		return Profile{}, false, err
	}
	p, ok := f.Profiles[profileID]
	return p, ok, nil
}

// ListProfiles returns every registered profile.
func (s *Store) ListProfiles() ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.loadProfiles()
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(f.Profiles))
	for _, p := range f.Profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteProfile removes a profile and its secret map.
func (s *Store) DeleteProfile(profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.loadProfiles()
	if err != nil {
		return err
	}
	delete(f.Profiles, profileID)
	if err := s.saveProfiles(f); err != nil {
		return err
	}

	path := s.paths.ProfileSecretFile(profileID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperr.Internal(err)
	}
	return nil
}

// NeedsReapply reports whether actor's recorded profile_revision_applied
// trails the profile's current revision (spec §3 "drift detection").
func NeedsReapply(actor *group.Actor, profile Profile) bool {
	return actor.ProfileRevisionApplied != profile.Revision
}

// --- Private env / secret maps ---------------------------------------

func (s *Store) readSecretFile(path string) (map[string]string, error) {
	var f secretFile
	if err := storage.ReadJSON(path, &f); err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, apperr.Internal(err)
	}
	if f.Values == nil {
		f.Values = map[string]string{}
	}
	return f.Values, nil
}

func (s *Store) writeSecretFile(path string, values map[string]string) error {
	return storage.WriteJSONAtomic(path, secretFile{Values: values}, secretFilePerm)
}

// GetActorSecrets returns an actor's private env map.
func (s *Store) GetActorSecrets(actorID string) (map[string]string, error) {
	return s.readSecretFile(s.paths.ActorSecretFile(actorID))
}

// SetActorSecrets replaces an actor's private env map in full.
func (s *Store) SetActorSecrets(actorID string, values map[string]string) error {
	return s.writeSecretFile(s.paths.ActorSecretFile(actorID), values)
}

// GetProfileSecrets returns a profile's private env map.
func (s *Store) GetProfileSecrets(profileID string) (map[string]string, error) {
	return s.readSecretFile(s.paths.ProfileSecretFile(profileID))
}

// SetProfileSecrets replaces a profile's private env map in full.
func (s *Store) SetProfileSecrets(profileID string, values map[string]string) error {
	return s.writeSecretFile(s.paths.ProfileSecretFile(profileID), values)
}

// MaskedPreview returns key names with masked values, never the
// secrets themselves (spec §3: "never returned to clients except as
// key names + masked preview").
func MaskedPreview(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = mask(v)
	}
	return out
}

func mask(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return v[:2] + strings.Repeat("*", len(v)-4) + v[len(v)-2:]
}

// MergeEnv implements §4.F.3's environment precedence: daemon-inherited
// env, then actor.env (public), then private env (secret store,
// overwriting public). For profile-linked actors the private map is the
// profile's secrets and actor.env is expected to be empty. CCCC_GROUP_ID
// and CCCC_ACTOR_ID are injected last so they can never be shadowed.
func MergeEnv(inherited []string, publicEnv map[string]string, privateEnv map[string]string, groupID, actorID string) []string {
	merged := make(map[string]string)
	for _, kv := range inherited {
		if k, v, ok := splitEnv(kv); ok {
			merged[k] = v
		}
	}
	for k, v := range publicEnv {
		merged[k] = v
	}
	for k, v := range privateEnv {
		merged[k] = v
	}
	merged["CCCC_GROUP_ID"] = groupID
	merged["CCCC_ACTOR_ID"] = actorID

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func splitEnv(kv string) (key, value string, ok bool) {
	i := strings.IndexByte(kv, '=')
	if i < 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}
