package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultDiscoveryRetries = 10
	defaultDiscoveryDelay   = 500 * time.Millisecond
)

// DiscoveryConfig controls how the client locates the control channel.
type DiscoveryConfig struct {
	// Addr is the discovery endpoint, host:port. Defaults to localhost on
	// the well-known port.
	Addr string
	// Retries is the total attempt budget.
	Retries int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Discoverer polls the host's discovery endpoint for the control channel
// address.
type Discoverer struct {
	cfg    DiscoveryConfig
	logger zerolog.Logger
}

func NewDiscoverer(cfg DiscoveryConfig, logger zerolog.Logger) *Discoverer {
	if cfg.Addr == "" {
		cfg.Addr = fmt.Sprintf("127.0.0.1:%d", DefaultDiscoveryPort)
	}
	if cfg.Retries <= 0 {
		cfg.Retries = defaultDiscoveryRetries
	}
	if cfg.Delay <= 0 {
		cfg.Delay = defaultDiscoveryDelay
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 2 * time.Second}
	}
	return &Discoverer{
		cfg:    cfg,
		logger: logger.With().Str("component", "discovery").Logger(),
	}
}

// Discover polls the health route, then asks for the control address.
// The attempt budget is exact: it makes cfg.Retries attempts and no more.
func (d *Discoverer) Discover(ctx context.Context) (ServerInfo, error) {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.Retries; attempt++ {
		info, err := d.probe(ctx)
		if err == nil {
			d.logger.Debug().
				Int("attempt", attempt).
				Str("host", info.Host).
				Int("port", info.Port).
				Msg("Discovered control channel")
			return info, nil
		}
		lastErr = err
		d.logger.Debug().Err(err).Int("attempt", attempt).Msg("Discovery attempt failed")

		if attempt == d.cfg.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return ServerInfo{}, ctx.Err()
		case <-time.After(d.cfg.Delay):
		}
	}

	return ServerInfo{}, fmt.Errorf(
		"cannot discover the dev bridge at %s after %d attempts (likely causes: "+
			"the host process is not running, the bridge component is not injected, "+
			"or the discovery port is occupied by another process): %w",
		d.cfg.Addr, d.cfg.Retries, lastErr)
}

func (d *Discoverer) probe(ctx context.Context) (ServerInfo, error) {
	if err := d.get(ctx, HealthPath, nil); err != nil {
		return ServerInfo{}, err
	}
	var info ServerInfo
	if err := d.get(ctx, ServerInfoPath, &info); err != nil {
		return ServerInfo{}, err
	}
	if info.Port == 0 {
		return ServerInfo{}, fmt.Errorf("server info reports no control port")
	}
	if info.Host == "" {
		info.Host = "127.0.0.1"
	}
	return info, nil
}

func (d *Discoverer) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+d.cfg.Addr+path, nil)
	if err != nil {
		return err
	}
	resp, err := d.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
