// Package config loads tern's layered YAML configuration: built-in
// defaults, then ~/.tern/config.yaml, then ./.tern/config.yaml, then
// TERN_* environment overrides. Later layers win field by field.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	terrors "github.com/odvcencio/tern/pkg/errors"
)

// MinTokenLength is the minimum accepted length for remote auth tokens.
const MinTokenLength = 32

// Default configuration values exported for documentation and validation
const (
	DefaultBackend       = "auto"
	DefaultColorProfile  = "auto"
	DefaultHistoryLimit  = 100
	DefaultSpinnerFrames = "braille"
	DefaultTickMillis    = 80
	DefaultRevertMillis  = 2000
	DefaultRemoteBind    = "127.0.0.1:7433"
	DefaultNATSURL       = "nats://127.0.0.1:4222"
	DefaultNATSSubject   = "tern"
	DefaultLogLevel      = "info"
)

// Config represents the complete tern configuration.
type Config struct {
	Terminal    TerminalConfig    `yaml:"terminal"`
	Input       InputConfig       `yaml:"input"`
	Progress    ProgressConfig    `yaml:"progress"`
	Remote      RemoteConfig      `yaml:"remote"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Logging     LoggingConfig     `yaml:"logging"`
	Export      ExportConfig      `yaml:"export"`
}

// TerminalConfig selects the rendering backend and its capabilities.
type TerminalConfig struct {
	Backend      string `yaml:"backend"`       // auto, ansi, screen, sim
	ColorProfile string `yaml:"color_profile"` // auto, truecolor, 256, 16, ascii
	Mouse        bool   `yaml:"mouse"`
}

// InputConfig controls the input line and history recall.
type InputConfig struct {
	HistoryLimit int `yaml:"history_limit"`
}

// ProgressConfig controls the activity indicator.
type ProgressConfig struct {
	Frames       string `yaml:"frames"` // braille, dots
	TickMillis   int    `yaml:"tick_interval_ms"`
	RevertMillis int    `yaml:"revert_delay_ms"`
}

// TickInterval returns the spinner frame interval.
func (p ProgressConfig) TickInterval() time.Duration {
	if p.TickMillis <= 0 {
		return DefaultTickMillis * time.Millisecond
	}
	return time.Duration(p.TickMillis) * time.Millisecond
}

// RevertDelay returns how long terminal progress states stay visible.
func (p ProgressConfig) RevertDelay() time.Duration {
	if p.RevertMillis < 0 {
		return DefaultRevertMillis * time.Millisecond
	}
	return time.Duration(p.RevertMillis) * time.Millisecond
}

// RemoteConfig controls the localhost steering server.
type RemoteConfig struct {
	Enabled       bool       `yaml:"enabled"`
	Bind          string     `yaml:"bind"`
	RequireToken  bool       `yaml:"require_token"`
	Token         string     `yaml:"token"` // Can be set here or via TERN_REMOTE_TOKEN
	AllowExternal bool       `yaml:"allow_external"`
	PublicMetrics bool       `yaml:"public_metrics"`
	NATS          NATSConfig `yaml:"nats"`
}

// NATSConfig bridges shell events onto NATS. Subject is a prefix:
// events publish to "<subject>.events" and injected input is read
// from "<subject>.input".
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// PersistenceConfig controls the session/history database.
type PersistenceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Empty means ~/.tern/history.db
}

// TelemetryConfig controls tracing output.
type TelemetryConfig struct {
	TracingEnabled bool `yaml:"tracing_enabled"`
}

// LoggingConfig controls the session event log.
type LoggingConfig struct {
	Dir   string `yaml:"dir"` // Empty means ~/.tern/logs
	Level string `yaml:"level"`
}

// ExportConfig controls transcript export output.
type ExportConfig struct {
	Dir string `yaml:"dir"` // Empty means current directory
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Terminal: TerminalConfig{
			Backend:      DefaultBackend,
			ColorProfile: DefaultColorProfile,
		},
		Input: InputConfig{
			HistoryLimit: DefaultHistoryLimit,
		},
		Progress: ProgressConfig{
			Frames:       DefaultSpinnerFrames,
			TickMillis:   DefaultTickMillis,
			RevertMillis: DefaultRevertMillis,
		},
		Remote: RemoteConfig{
			Enabled:      false,
			Bind:         DefaultRemoteBind,
			RequireToken: true,
			NATS: NATSConfig{
				URL:     DefaultNATSURL,
				Subject: DefaultNATSSubject,
			},
		},
		Persistence: PersistenceConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load loads configuration from default locations with proper precedence:
// defaults, user config, project config, then environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".tern", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, terrors.Wrap(err, terrors.ErrCodeConfigLoad, "loading user config").
				WithContext("path", userConfigPath)
		}
	}

	projectConfigPath := filepath.Join(".", ".tern", "config.yaml")
	if err := loadAndMerge(cfg, projectConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, terrors.Wrap(err, terrors.ErrCodeConfigLoad, "loading project config").
			WithContext("path", projectConfigPath)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path over defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, terrors.Wrap(err, terrors.ErrCodeConfigLoad, "loading config").
			WithContext("path", path)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies TERN_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TERN_BACKEND"); v != "" {
		cfg.Terminal.Backend = v
	}
	if v := os.Getenv("TERN_COLOR_PROFILE"); v != "" {
		cfg.Terminal.ColorProfile = v
	}
	if val, ok := envBool("TERN_MOUSE"); ok {
		cfg.Terminal.Mouse = val
	}

	if v := strings.TrimSpace(os.Getenv("TERN_HISTORY_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Input.HistoryLimit = n
		}
	}

	if val, ok := envBool("TERN_REMOTE_ENABLED"); ok {
		cfg.Remote.Enabled = val
	}
	if v := os.Getenv("TERN_REMOTE_BIND"); v != "" {
		cfg.Remote.Bind = v
	}
	if v := os.Getenv("TERN_REMOTE_TOKEN"); v != "" {
		cfg.Remote.Token = v
	}
	if val, ok := envBool("TERN_NATS_ENABLED"); ok {
		cfg.Remote.NATS.Enabled = val
	}
	if v := os.Getenv("TERN_NATS_URL"); v != "" {
		cfg.Remote.NATS.URL = v
	}

	if val, ok := envBool("TERN_PERSISTENCE"); ok {
		cfg.Persistence.Enabled = val
	}
	if v := os.Getenv("TERN_HISTORY_DB"); v != "" {
		cfg.Persistence.Path = v
	}

	if val, ok := envBool("TERN_TRACING"); ok {
		cfg.Telemetry.TracingEnabled = val
	}

	if v := os.Getenv("TERN_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if v := os.Getenv("TERN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("TERN_EXPORT_DIR"); v != "" {
		cfg.Export.Dir = v
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	validBackends := map[string]bool{
		"auto":   true,
		"ansi":   true,
		"screen": true,
		"sim":    true,
	}
	if !validBackends[strings.ToLower(c.Terminal.Backend)] {
		return terrors.New(terrors.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid backend: %s (valid: auto, ansi, screen, sim)", c.Terminal.Backend))
	}

	validProfiles := map[string]bool{
		"auto":      true,
		"truecolor": true,
		"256":       true,
		"16":        true,
		"ascii":     true,
	}
	if !validProfiles[strings.ToLower(c.Terminal.ColorProfile)] {
		return terrors.New(terrors.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid color profile: %s (valid: auto, truecolor, 256, 16, ascii)", c.Terminal.ColorProfile))
	}

	if c.Input.HistoryLimit < 0 {
		return terrors.New(terrors.ErrCodeConfigInvalid,
			fmt.Sprintf("history limit must not be negative: %d", c.Input.HistoryLimit))
	}

	validFrames := map[string]bool{
		"braille": true,
		"dots":    true,
	}
	if !validFrames[strings.ToLower(c.Progress.Frames)] {
		return terrors.New(terrors.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid spinner frames: %s (valid: braille, dots)", c.Progress.Frames))
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return terrors.New(terrors.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level))
	}

	if c.Remote.Enabled {
		if strings.TrimSpace(c.Remote.Bind) == "" {
			return terrors.New(terrors.ErrCodeConfigInvalid, "remote enabled with empty bind address")
		}
		if !c.Remote.AllowExternal && !isLoopbackBindAddress(c.Remote.Bind) {
			return terrors.New(terrors.ErrCodeConfigInvalid,
				fmt.Sprintf("remote bind %s is not loopback; set allow_external to expose it", c.Remote.Bind))
		}
		if c.Remote.RequireToken && c.Remote.Token != "" && len(c.Remote.Token) < MinTokenLength {
			return terrors.New(terrors.ErrCodeConfigInvalid,
				fmt.Sprintf("remote token shorter than %d characters", MinTokenLength))
		}
		if c.Remote.NATS.Enabled && strings.TrimSpace(c.Remote.NATS.URL) == "" {
			return terrors.New(terrors.ErrCodeConfigInvalid, "nats bridge enabled with empty url")
		}
	}

	return nil
}

// HistoryDBPath resolves the persistence path, defaulting under the home
// directory.
func (c *Config) HistoryDBPath() string {
	if c.Persistence.Path != "" {
		return expandHomeDir(c.Persistence.Path)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", ".tern", "history.db")
	}
	return filepath.Join(home, ".tern", "history.db")
}

// LogDir resolves the log directory, defaulting under the home directory.
func (c *Config) LogDir() string {
	if c.Logging.Dir != "" {
		return expandHomeDir(c.Logging.Dir)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", ".tern", "logs")
	}
	return filepath.Join(home, ".tern", "logs")
}

// ExportDir resolves the export output directory.
func (c *Config) ExportDir() string {
	if c.Export.Dir != "" {
		return expandHomeDir(c.Export.Dir)
	}
	return "."
}

func expandHomeDir(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func envBool(key string) (bool, bool) {
	val := os.Getenv(key)
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func isLoopbackBindAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	switch strings.ToLower(host) {
	case "localhost":
		return true
	case "0.0.0.0", "::":
		return false
	default:
		ip := net.ParseIP(host)
		if ip == nil {
			return false
		}
		return ip.IsLoopback()
	}
}
