package storage

import "path/filepath"

// Paths resolves the on-disk layout under CCCC_HOME (spec §6.4).
type Paths struct {
	Home string
}

func New(home string) Paths { return Paths{Home: home} }

func (p Paths) ActiveFile() string   { return filepath.Join(p.Home, "active.json") }
func (p Paths) RegistryFile() string { return filepath.Join(p.Home, "registry.json") }
func (p Paths) SettingsFile() string { return filepath.Join(p.Home, "settings.json") }

func (p Paths) DaemonDir() string       { return filepath.Join(p.Home, "daemon") }
func (p Paths) AddrFile() string        { return filepath.Join(p.DaemonDir(), "ccccd.addr.json") }
func (p Paths) SockFile() string        { return filepath.Join(p.DaemonDir(), "ccccd.sock") }
func (p Paths) PidFile() string         { return filepath.Join(p.DaemonDir(), "ccccd.pid") }
func (p Paths) LockFile() string        { return filepath.Join(p.DaemonDir(), "ccccd.lock") }
func (p Paths) LogFile() string         { return filepath.Join(p.DaemonDir(), "ccccd.log") }
func (p Paths) InputrcFile() string     { return filepath.Join(p.DaemonDir(), "inputrc") }

func (p Paths) GroupsDir() string { return filepath.Join(p.Home, "groups") }
func (p Paths) GroupDir(groupID string) string {
	return filepath.Join(p.GroupsDir(), groupID)
}
func (p Paths) GroupYAML(groupID string) string {
	return filepath.Join(p.GroupDir(groupID), "group.yaml")
}
func (p Paths) ContextYAML(groupID string) string {
	return filepath.Join(p.GroupDir(groupID), "context.yaml")
}
func (p Paths) LedgerFile(groupID string) string {
	return filepath.Join(p.GroupDir(groupID), "ledger.jsonl")
}
func (p Paths) LedgerArchive(groupID, stamp string) string {
	return filepath.Join(p.GroupDir(groupID), "ledger."+stamp+".jsonl.gz")
}
func (p Paths) GroupStateDir(groupID string) string {
	return filepath.Join(p.GroupDir(groupID), "state")
}
func (p Paths) AutomationStateFile(groupID string) string {
	return filepath.Join(p.GroupStateDir(groupID), "automation.json")
}
func (p Paths) IMStateFile(groupID string) string {
	return filepath.Join(p.GroupStateDir(groupID), "im_state.json")
}
func (p Paths) CursorFile(groupID, actorID string) string {
	return filepath.Join(p.GroupStateDir(groupID), "cursors", actorID+".json")
}
func (p Paths) DeliveryCursorFile(groupID, actorID string) string {
	return filepath.Join(p.GroupStateDir(groupID), "delivery", actorID+".json")
}
func (p Paths) RunnerStateFile(groupID, kind, actorID string) string {
	return filepath.Join(p.GroupStateDir(groupID), "runners", kind, actorID+".json")
}
func (p Paths) BlobPath(groupID, sha, name string) string {
	return filepath.Join(p.GroupStateDir(groupID), "blobs", sha+"_"+name)
}
func (p Paths) PreambleSentFile(groupID string) string {
	return filepath.Join(p.GroupStateDir(groupID), "preamble_sent.json")
}
func (p Paths) PromptsDir(groupID string) string {
	return filepath.Join(p.GroupDir(groupID), "prompts")
}
func (p Paths) PromptOverride(groupID, name string) string {
	return filepath.Join(p.PromptsDir(groupID), name)
}

func (p Paths) StateDir() string           { return filepath.Join(p.Home, "state") }
func (p Paths) ActorProfilesFile() string  { return filepath.Join(p.StateDir(), "actor_profiles", "profiles.json") }
func (p Paths) ActorSecretFile(actorID string) string {
	return filepath.Join(p.StateDir(), "secrets", "actors", actorID+".json")
}
func (p Paths) ProfileSecretFile(profileID string) string {
	return filepath.Join(p.StateDir(), "secrets", "actor_profiles", profileID+".json")
}
func (p Paths) SnapshotDBFile() string { return filepath.Join(p.StateDir(), "snapshot.db") }
func (p Paths) RemoteAccessFile() string {
	return filepath.Join(p.StateDir(), "remote_access.json")
}
