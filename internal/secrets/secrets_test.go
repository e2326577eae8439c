package secrets

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/storage"
)

func TestUpsertProfile_RevisionIncrementsOnEveryUpsert(t *testing.T) {
	paths := storage.New(t.TempDir())
	s := NewStore(paths)

	p, err := s.UpsertProfile(Profile{ID: "prof_1", Name: "codex-default", Runtime: group.RuntimeCodex})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Revision)

	p, err = s.UpsertProfile(Profile{ID: "prof_1", Name: "codex-default-v2", Runtime: group.RuntimeCodex})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Revision)

	stored, ok, err := s.GetProfile("prof_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, stored.Revision)
}

func TestNeedsReapply_DetectsDrift(t *testing.T) {
	actor := &group.Actor{ID: "a_1", ProfileRevisionApplied: 1}
	current := Profile{ID: "prof_1", Revision: 2}
	assert.True(t, NeedsReapply(actor, current))

	actor.ProfileRevisionApplied = 2
	assert.False(t, NeedsReapply(actor, current))
}

func TestActorSecrets_RoundTripAndFilePermissions(t *testing.T) {
	home := t.TempDir()
	paths := storage.New(home)
	s := NewStore(paths)

	require.NoError(t, s.SetActorSecrets("a_1", map[string]string{"API_KEY": "sk-12345"}))

	got, err := s.GetActorSecrets("a_1")
	require.NoError(t, err)
	assert.Equal(t, "sk-12345", got["API_KEY"])

	info, err := os.Stat(paths.ActorSecretFile("a_1"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestMaskedPreview_NeverLeaksValue(t *testing.T) {
	preview := MaskedPreview(map[string]string{"API_KEY": "sk-abcdef123456", "X": "ab"})
	assert.NotContains(t, preview["API_KEY"], "abcdef")
	assert.True(t, len(preview["API_KEY"]) == len("sk-abcdef123456"))
	assert.Equal(t, "**", preview["X"])
}

func TestMergeEnv_PrecedenceAndInjectedContext(t *testing.T) {
	inherited := []string{"PATH=/usr/bin", "HOME=/root"}
	public := map[string]string{"HOME": "/override", "PUBLIC_VAR": "1"}
	private := map[string]string{"PUBLIC_VAR": "2", "SECRET": "shh"}

	env := MergeEnv(inherited, public, private, "g_1", "a_1")

	asMap := map[string]string{}
	for _, kv := range env {
		i := len(kv)
		for j, c := range kv {
			if c == '=' {
				i = j
				break
			}
		}
		asMap[kv[:i]] = kv[i+1:]
	}

	assert.Equal(t, "/override", asMap["HOME"], "public env overrides inherited")
	assert.Equal(t, "2", asMap["PUBLIC_VAR"], "private env overrides public")
	assert.Equal(t, "shh", asMap["SECRET"])
	assert.Equal(t, "g_1", asMap["CCCC_GROUP_ID"])
	assert.Equal(t, "a_1", asMap["CCCC_ACTOR_ID"])
}
