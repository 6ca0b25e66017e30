package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, Validate(DefaultConfig()))
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad level", func(c *Config) { c.Check.Level = "loud" }, "check.level"},
		{"bad format", func(c *Config) { c.Check.Format = "xml" }, "check.format"},
		{"empty type checker", func(c *Config) { c.Check.TypeChecker = "" }, "type_checker"},
		{"empty linter", func(c *Config) { c.Check.Linter = "" }, "linter"},
		{"port too high", func(c *Config) { c.Dev.DiscoveryPort = 70000 }, "discovery_port"},
		{"port zero", func(c *Config) { c.Dev.DiscoveryPort = 0 }, "discovery_port"},
		{"zero debounce", func(c *Config) { c.Dev.DebounceMs = 0 }, "debounce_ms"},
		{"zero heartbeat", func(c *Config) { c.Dev.HeartbeatSeconds = 0 }, "heartbeat_seconds"},
		{"zero retries", func(c *Config) { c.Dev.DiscoveryRetries = 0 }, "discovery_retries"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
