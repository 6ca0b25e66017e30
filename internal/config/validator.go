package config

import (
	"fmt"
)

var (
	validLevels  = map[string]bool{"error": true, "warning": true, "info": true}
	validFormats = map[string]bool{"console": true, "markdown": true, "json": true}
)

// Validate rejects configurations the commands cannot act on.
func Validate(cfg *Config) error {
	if !validLevels[cfg.Check.Level] {
		return fmt.Errorf("check.level must be error, warning or info, got %q", cfg.Check.Level)
	}
	if !validFormats[cfg.Check.Format] {
		return fmt.Errorf("check.format must be console, markdown or json, got %q", cfg.Check.Format)
	}
	if cfg.Check.TypeChecker == "" {
		return fmt.Errorf("check.type_checker cannot be empty")
	}
	if cfg.Check.Linter == "" {
		return fmt.Errorf("check.linter cannot be empty")
	}

	if cfg.Dev.DiscoveryPort < 1 || cfg.Dev.DiscoveryPort > 65535 {
		return fmt.Errorf("dev.discovery_port must be in [1,65535], got %d", cfg.Dev.DiscoveryPort)
	}
	if cfg.Dev.DiscoveryRetries < 1 {
		return fmt.Errorf("dev.discovery_retries must be positive, got %d", cfg.Dev.DiscoveryRetries)
	}
	if cfg.Dev.DebounceMs < 1 {
		return fmt.Errorf("dev.debounce_ms must be positive, got %d", cfg.Dev.DebounceMs)
	}
	if cfg.Dev.HeartbeatSeconds < 1 {
		return fmt.Errorf("dev.heartbeat_seconds must be positive, got %d", cfg.Dev.HeartbeatSeconds)
	}

	return nil
}
