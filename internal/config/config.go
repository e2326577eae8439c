// Package config loads CCCC daemon configuration from environment
// variables, an optional config file, and defaults, the way
// internal/common/config does it in the teacher repo.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every configuration section for the daemon.
type Config struct {
	Home       string           `mapstructure:"home"`
	Daemon     DaemonConfig     `mapstructure:"daemon"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Automation AutomationConfig `mapstructure:"automation"`
	Delivery   DeliveryConfig   `mapstructure:"delivery"`
	Terminal   TerminalConfig   `mapstructure:"terminal"`
	Remote     RemoteConfig     `mapstructure:"remote"`
	Broadcast  BroadcastConfig  `mapstructure:"broadcast"`
	MCPFacade  MCPFacadeConfig  `mapstructure:"mcpFacade"`
}

// DaemonConfig controls the IPC transport (spec §4.H, §6.1).
type DaemonConfig struct {
	Transport   string `mapstructure:"transport"` // unix | tcp
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	AllowRemote bool   `mapstructure:"allowRemote"`
	// DevMode gates the debug_* diagnostics op group (spec §6.1).
	DevMode bool `mapstructure:"devMode"`
}

// LoggingConfig mirrors logging.Config for mapstructure binding.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// AutomationConfig holds automation settings (spec §4.I). Only
// TickIntervalSeconds is read (by internal/daemon's automation ticker);
// the threshold fields are not applied: for any threshold group.yaml
// leaves unset, internal/automation uses its own package defaults.
type AutomationConfig struct {
	TickIntervalSeconds          int `mapstructure:"tickIntervalSeconds"`
	ReplyRequiredNudgeAfter      int `mapstructure:"replyRequiredNudgeAfterSeconds"`
	AttentionAckNudgeAfter       int `mapstructure:"attentionAckNudgeAfterSeconds"`
	UnreadNudgeAfter             int `mapstructure:"unreadNudgeAfterSeconds"`
	NudgeDigestMinInterval       int `mapstructure:"nudgeDigestMinIntervalSeconds"`
	NudgeMaxRepeatsPerObligation int `mapstructure:"nudgeMaxRepeatsPerObligation"`
	NudgeEscalateAfterRepeats    int `mapstructure:"nudgeEscalateAfterRepeats"`
	ActorIdleTimeoutSeconds      int `mapstructure:"actorIdleTimeoutSeconds"`
	KeepaliveDelaySeconds        int `mapstructure:"keepaliveDelaySeconds"`
	KeepaliveMaxPerActor         int `mapstructure:"keepaliveMaxPerActor"`
	SilenceTimeoutSeconds        int `mapstructure:"silenceTimeoutSeconds"`
	HelpNudgeIntervalSeconds     int `mapstructure:"helpNudgeIntervalSeconds"`
	HelpNudgeMinMessages         int `mapstructure:"helpNudgeMinMessages"`
}

// DeliveryConfig holds delivery pipeline knobs (spec §4.G). Only
// TickIntervalMillis is read (by internal/daemon's delivery ticker); the
// pipeline takes min interval and auto-mark from each group's group.yaml.
type DeliveryConfig struct {
	MinIntervalSeconds int  `mapstructure:"minIntervalSeconds"`
	AutoMarkOnDelivery bool `mapstructure:"autoMarkOnDelivery"`
	TickIntervalMillis int  `mapstructure:"tickIntervalMillis"`
}

// TerminalConfig seeds the ring-buffer sizes of a fresh observability
// settings document (spec §4.F.1); the PTY supervisor does not read it.
type TerminalConfig struct {
	PerActorBytes int64 `mapstructure:"perActorBytes"`
	MaxBytesCap   int64 `mapstructure:"maxBytesCap"`
}

// RemoteConfig is loaded but not read by the daemon (spec §6.1); the
// non-loopback bind check uses DaemonConfig.AllowRemote alone.
type RemoteConfig struct {
	AllowInsecure bool `mapstructure:"allowInsecure"`
	AllowLoopback bool `mapstructure:"allowLoopback"`
}

// BroadcastConfig selects the event broadcaster backend (spec §4.J).
// The in-memory backend is the default; nats is an opt-in distributed
// backend for running the subscriber fan-out outside the daemon
// process (e.g. a separate dashboard reading the same NATS subject).
type BroadcastConfig struct {
	Backend       string `mapstructure:"backend"` // memory | nats
	NATSURL       string `mapstructure:"natsUrl"`
	SubjectPrefix string `mapstructure:"subjectPrefix"`
	BufferSize    int    `mapstructure:"bufferSize"`
}

// MCPFacadeConfig controls the inbound MCP tool server (spec §6.3).
// Loopback-only regardless of daemon.transport/remote settings.
type MCPFacadeConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"` // 0 = OS-assigned ephemeral port
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("home", home)

	v.SetDefault("daemon.transport", "unix")
	v.SetDefault("daemon.host", "127.0.0.1")
	v.SetDefault("daemon.port", 0)
	v.SetDefault("daemon.allowRemote", false)
	v.SetDefault("daemon.devMode", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("automation.tickIntervalSeconds", 1)
	v.SetDefault("automation.replyRequiredNudgeAfterSeconds", 300)
	v.SetDefault("automation.attentionAckNudgeAfterSeconds", 180)
	v.SetDefault("automation.unreadNudgeAfterSeconds", 600)
	v.SetDefault("automation.nudgeDigestMinIntervalSeconds", 300)
	v.SetDefault("automation.nudgeMaxRepeatsPerObligation", 5)
	v.SetDefault("automation.nudgeEscalateAfterRepeats", 3)
	v.SetDefault("automation.actorIdleTimeoutSeconds", 120)
	v.SetDefault("automation.keepaliveDelaySeconds", 60)
	v.SetDefault("automation.keepaliveMaxPerActor", 2)
	v.SetDefault("automation.silenceTimeoutSeconds", 900)
	v.SetDefault("automation.helpNudgeIntervalSeconds", 1800)
	v.SetDefault("automation.helpNudgeMinMessages", 5)

	v.SetDefault("delivery.minIntervalSeconds", 0)
	v.SetDefault("delivery.autoMarkOnDelivery", false)
	v.SetDefault("delivery.tickIntervalMillis", 1000)

	v.SetDefault("terminal.perActorBytes", 10*1024*1024)
	v.SetDefault("terminal.maxBytesCap", 50*1024*1024)

	v.SetDefault("remote.allowInsecure", false)
	v.SetDefault("remote.allowLoopback", true)

	v.SetDefault("broadcast.backend", "memory")
	v.SetDefault("broadcast.natsUrl", "nats://127.0.0.1:4222")
	v.SetDefault("broadcast.subjectPrefix", "cccc.events")
	v.SetDefault("broadcast.bufferSize", 256)

	v.SetDefault("mcpFacade.enabled", true)
	v.SetDefault("mcpFacade.port", 0)
}

// Load reads configuration for CCCC_HOME from defaults, an optional
// config.yaml in CCCC_HOME, and environment variables.
func Load() (*Config, error) {
	home := os.Getenv("CCCC_HOME")
	if home == "" {
		hd, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		home = filepath.Join(hd, ".cccc")
	}
	return LoadWithHome(home)
}

// LoadWithHome loads configuration rooted at the given CCCC_HOME.
func LoadWithHome(home string) (*Config, error) {
	v := viper.New()
	setDefaults(v, home)

	v.SetEnvPrefix("CCCC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("daemon.transport", "CCCC_DAEMON_TRANSPORT")
	_ = v.BindEnv("daemon.host", "CCCC_DAEMON_HOST")
	_ = v.BindEnv("daemon.port", "CCCC_DAEMON_PORT")
	_ = v.BindEnv("daemon.allowRemote", "CCCC_DAEMON_ALLOW_REMOTE")
	_ = v.BindEnv("daemon.devMode", "CCCC_DEV_MODE")
	_ = v.BindEnv("remote.allowInsecure", "CCCC_REMOTE_ALLOW_INSECURE")
	_ = v.BindEnv("remote.allowLoopback", "CCCC_REMOTE_ALLOW_LOOPBACK")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(home)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Home == "" {
		cfg.Home = home
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Daemon.Transport != "unix" && cfg.Daemon.Transport != "tcp" {
		errs = append(errs, "daemon.transport must be unix or tcp")
	}
	if cfg.Daemon.Transport == "tcp" && (cfg.Daemon.Port < 0 || cfg.Daemon.Port > 65535) {
		errs = append(errs, "daemon.port must be between 0 and 65535")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	if cfg.Terminal.PerActorBytes > cfg.Terminal.MaxBytesCap {
		errs = append(errs, "terminal.perActorBytes must not exceed terminal.maxBytesCap")
	}
	if cfg.Broadcast.Backend != "memory" && cfg.Broadcast.Backend != "nats" {
		errs = append(errs, "broadcast.backend must be memory or nats")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
