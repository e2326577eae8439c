// Package storage implements §4.A: crash-safe JSON/YAML persistence and
// the process-wide lock that enforces the single-daemon-per-CCCC_HOME
// invariant. Writes follow the teacher's discipline of touching disk in
// as few calls as possible (write-to-temp + fsync + rename, as specified
// in spec §4.A and tested by §8 property 2).
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// WriteJSONAtomic marshals v as indented JSON and atomically replaces
// path. A crash or power loss mid-write leaves the previous file intact:
// the temp file is fsynced and renamed into place only after it is
// fully written.
func WriteJSONAtomic(path string, v any, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return writeAtomic(path, data, perm)
}

// ReadJSON reads and unmarshals a JSON file. Returns os.ErrNotExist
// (wrapped) if the file is absent; callers should treat that as "use
// defaults", never as corruption.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// WriteYAMLAtomic marshals v as YAML and atomically replaces path.
func WriteYAMLAtomic(path string, v any, perm os.FileMode) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	return writeAtomic(path, data, perm)
}

// ReadYAML reads and unmarshals a YAML file.
func ReadYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}

// writeAtomic writes data to a temp file in the same directory as path,
// fsyncs it, then renames it over path. Same-directory temp files
// guarantee the rename is on the same filesystem (no cross-device
// rename, which is not atomic).
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// Remove the temp file on any early return; the rename below clears
	// this obligation on the success path.
	succeeded := false
	defer func() {
		if !succeeded {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	succeeded = true
	return nil
}
