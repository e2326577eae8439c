// Package observability backs the daemon-core observability_get/update
// op group (spec §6.1): a persisted, runtime-mutable settings document
// holding the PTY terminal transcript ring buffer sizes (spec §4.F.1;
// stored but not applied to PTY sessions) and whether OTel tracing
// around op dispatch is enabled.
package observability

import (
	"fmt"
	"os"
	"time"

	"github.com/cccc-dev/cccc/internal/config"
	"github.com/cccc-dev/cccc/internal/storage"
)

const hardMaxBytesCap = 50 * 1024 * 1024 // spec §4.F.1: "capped at 50 MB"

// TerminalTranscript mirrors config.TerminalConfig as a runtime settings
// value that observability_update can raise or lower without a daemon
// restart. The values are persisted, clamped and reported only: PTY
// sessions do not read them, so every actor's ring buffer uses the pty
// supervisor's default size (10 MiB).
type TerminalTranscript struct {
	PerActorBytes int64 `json:"per_actor_bytes"`
	MaxBytesCap   int64 `json:"max_bytes_cap"`
}

// Settings is the full persisted settings.json document.
type Settings struct {
	TracingEnabled     bool                `json:"tracing_enabled"`
	OTLPEndpoint       string              `json:"otlp_endpoint,omitempty"`
	TerminalTranscript TerminalTranscript  `json:"terminal_transcript"`
	UpdatedAt          time.Time           `json:"updated_at,omitempty"`
}

func (s Settings) clampedCopy() Settings {
	out := s
	if out.TerminalTranscript.MaxBytesCap <= 0 || out.TerminalTranscript.MaxBytesCap > hardMaxBytesCap {
		out.TerminalTranscript.MaxBytesCap = hardMaxBytesCap
	}
	if out.TerminalTranscript.PerActorBytes > out.TerminalTranscript.MaxBytesCap {
		out.TerminalTranscript.PerActorBytes = out.TerminalTranscript.MaxBytesCap
	}
	if out.TerminalTranscript.PerActorBytes <= 0 {
		out.TerminalTranscript.PerActorBytes = out.TerminalTranscript.MaxBytesCap
	}
	return out
}

// defaultSettings seeds a fresh settings.json from the static
// config defaults plus the teacher's OTEL_EXPORTER_OTLP_ENDPOINT
// env-var convention (agentctl/tracing.initTracing): tracing is on by
// default only when the operator has an OTLP collector configured in
// the environment.
func defaultSettings(cfg config.TerminalConfig) Settings {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	s := Settings{
		TracingEnabled: endpoint != "",
		OTLPEndpoint:   endpoint,
		TerminalTranscript: TerminalTranscript{
			PerActorBytes: cfg.PerActorBytes,
			MaxBytesCap:   cfg.MaxBytesCap,
		},
	}
	return s.clampedCopy()
}

func loadSettings(paths storage.Paths, cfg config.TerminalConfig) (Settings, error) {
	var s Settings
	err := storage.ReadJSON(paths.SettingsFile(), &s)
	if os.IsNotExist(err) {
		return defaultSettings(cfg), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load observability settings: %w", err)
	}
	return s.clampedCopy(), nil
}

func saveSettings(paths storage.Paths, s Settings) error {
	s.UpdatedAt = time.Now().UTC()
	return storage.WriteJSONAtomic(paths.SettingsFile(), s, 0o644)
}

// Patch carries the subset of fields an observability_update call may
// change; nil fields are left untouched.
type Patch struct {
	TracingEnabled *bool
	OTLPEndpoint   *string
	PerActorBytes  *int64
	MaxBytesCap    *int64
}

func (s Settings) applyPatch(p Patch) Settings {
	out := s
	if p.TracingEnabled != nil {
		out.TracingEnabled = *p.TracingEnabled
	}
	if p.OTLPEndpoint != nil {
		out.OTLPEndpoint = *p.OTLPEndpoint
	}
	if p.PerActorBytes != nil {
		out.TerminalTranscript.PerActorBytes = *p.PerActorBytes
	}
	if p.MaxBytesCap != nil {
		out.TerminalTranscript.MaxBytesCap = *p.MaxBytesCap
	}
	return out.clampedCopy()
}
