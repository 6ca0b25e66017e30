// Package config loads the toolkit's user configuration from
// ~/.mpdt/config.toml, with MPDT_* environment overrides. Everything has
// a working default; the file is optional.
package config

import (
	"path/filepath"
)

// Config is the root toolkit configuration.
type Config struct {
	Check   CheckConfig   `json:"check" mapstructure:"check"`
	Dev     DevConfig     `json:"dev" mapstructure:"dev"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// DataDir holds logs and other toolkit state.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// CheckConfig holds defaults for the check command.
type CheckConfig struct {
	// Level is the minimum severity shown: error, warning or info.
	Level string `json:"level" mapstructure:"level"`
	// Format selects the report renderer: console, markdown or json.
	Format string `json:"format" mapstructure:"format"`
	// Concurrent runs independent validators in parallel.
	Concurrent bool `json:"concurrent" mapstructure:"concurrent"`
	// RulesPath overrides the embedded component rule table.
	RulesPath string `json:"rules_path" mapstructure:"rules_path"`
	// TypeChecker and Linter name the external tool binaries.
	TypeChecker string `json:"type_checker" mapstructure:"type_checker"`
	Linter      string `json:"linter" mapstructure:"linter"`
}

// DevConfig holds defaults for the dev command.
type DevConfig struct {
	// DiscoveryPort is the host's fixed discovery endpoint port.
	DiscoveryPort int `json:"discovery_port" mapstructure:"discovery_port"`
	// DiscoveryRetries bounds the discovery attempt budget.
	DiscoveryRetries int `json:"discovery_retries" mapstructure:"discovery_retries"`
	// DebounceMs is the file-event quiet window in milliseconds.
	DebounceMs int `json:"debounce_ms" mapstructure:"debounce_ms"`
	// HeartbeatSeconds paces the control channel liveness exchange.
	HeartbeatSeconds int `json:"heartbeat_seconds" mapstructure:"heartbeat_seconds"`
	// HostPath is the host installation plugins are injected into.
	HostPath string `json:"host_path" mapstructure:"host_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Check: CheckConfig{
			Level:       "info",
			Format:      "console",
			TypeChecker: "mypy",
			Linter:      "ruff",
		},
		Dev: DevConfig{
			DiscoveryPort:    12318,
			DiscoveryRetries: 10,
			DebounceMs:       300,
			HeartbeatSeconds: 15,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
			MaxSize:   50,
			MaxAge:    7,
			Compress:  true,
		},
	}
}

// LogFile returns the session log path, derived from DataDir when the
// logging section leaves it unset.
func (c *Config) LogFile() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, "mpdt.log")
}
