package config

import (
	"os"

	"gopkg.in/yaml.v3"

	terrors "github.com/odvcencio/tern/pkg/errors"
)

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return terrors.Wrap(err, terrors.ErrCodeConfigParse, "parsing YAML")
	}

	// The raw document distinguishes "field absent" from "field false",
	// which zero values alone cannot.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return terrors.Wrap(err, terrors.ErrCodeConfigParse, "parsing YAML")
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base, field by field.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if override.Terminal.Backend != "" {
		base.Terminal.Backend = override.Terminal.Backend
	}
	if override.Terminal.ColorProfile != "" {
		base.Terminal.ColorProfile = override.Terminal.ColorProfile
	}
	if boolFieldSet(raw, "terminal", "mouse") {
		base.Terminal.Mouse = override.Terminal.Mouse
	}

	if override.Input.HistoryLimit != 0 {
		base.Input.HistoryLimit = override.Input.HistoryLimit
	}

	if override.Progress.Frames != "" {
		base.Progress.Frames = override.Progress.Frames
	}
	if override.Progress.TickMillis != 0 {
		base.Progress.TickMillis = override.Progress.TickMillis
	}
	if override.Progress.RevertMillis != 0 {
		base.Progress.RevertMillis = override.Progress.RevertMillis
	}

	if boolFieldSet(raw, "remote", "enabled") {
		base.Remote.Enabled = override.Remote.Enabled
	}
	if override.Remote.Bind != "" {
		base.Remote.Bind = override.Remote.Bind
	}
	if boolFieldSet(raw, "remote", "require_token") {
		base.Remote.RequireToken = override.Remote.RequireToken
	}
	if override.Remote.Token != "" {
		base.Remote.Token = override.Remote.Token
	}
	if boolFieldSet(raw, "remote", "allow_external") {
		base.Remote.AllowExternal = override.Remote.AllowExternal
	}
	if boolFieldSet(raw, "remote", "public_metrics") {
		base.Remote.PublicMetrics = override.Remote.PublicMetrics
	}
	if boolFieldSet(raw, "remote", "nats", "enabled") {
		base.Remote.NATS.Enabled = override.Remote.NATS.Enabled
	}
	if override.Remote.NATS.URL != "" {
		base.Remote.NATS.URL = override.Remote.NATS.URL
	}
	if override.Remote.NATS.Subject != "" {
		base.Remote.NATS.Subject = override.Remote.NATS.Subject
	}

	if boolFieldSet(raw, "persistence", "enabled") {
		base.Persistence.Enabled = override.Persistence.Enabled
	}
	if override.Persistence.Path != "" {
		base.Persistence.Path = override.Persistence.Path
	}

	if boolFieldSet(raw, "telemetry", "tracing_enabled") {
		base.Telemetry.TracingEnabled = override.Telemetry.TracingEnabled
	}

	if override.Logging.Dir != "" {
		base.Logging.Dir = override.Logging.Dir
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Export.Dir != "" {
		base.Export.Dir = override.Export.Dir
	}
}

// boolFieldSet reports whether the raw YAML document contains a value at
// the given path.
func boolFieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}
