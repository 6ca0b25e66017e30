package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/model"
)

// State is a dev session's position in its lifecycle. Progression is
// strictly linear; only Active re-enters itself, once per completed
// reload round-trip.
type State string

const (
	StateDiscovering        State = "discovering"
	StateConnecting         State = "connecting"
	StateAwaitingLoadNotice State = "awaiting_load_notice"
	StateActive             State = "active"
	StateClosing            State = "closing"
	StateClosed             State = "closed"
)

const (
	defaultConnectRetries    = 5
	defaultConnectDelay      = 500 * time.Millisecond
	defaultLoadNoticeTimeout = 10 * time.Second
	defaultReloadTimeout     = 30 * time.Second
)

// SessionConfig configures a dev session.
type SessionConfig struct {
	// PluginPath is the plugin source directory being developed.
	PluginPath string
	// Discovery locates the host's control channel.
	Discovery DiscoveryConfig
	// Debounce is the file-event quiet window.
	Debounce time.Duration
	// HeartbeatInterval paces the ping/pong liveness exchange. A missed
	// pong across two intervals counts as a silent disconnection.
	HeartbeatInterval time.Duration
	// LoadNoticeTimeout bounds the wait for the host's startup push.
	LoadNoticeTimeout time.Duration
	// ReloadTimeout bounds the wait for a reload result. A host that never
	// answers gives up its in-flight slot after this long, so later file
	// changes still trigger reloads.
	ReloadTimeout time.Duration
	// ConnectRetries and ConnectDelay bound the websocket dial budget.
	ConnectRetries int
	ConnectDelay   time.Duration

	// Host, when non-nil, is a host this session started and must
	// terminate on close.
	Host *Host
	// Injector, when non-nil, tracks artifacts to remove on close.
	Injector *Injector
}

// Session drives the dev bridge lifecycle for one plugin: discovery,
// control channel, load notice, then the watch/reload loop.
type Session struct {
	cfg    SessionConfig
	logger zerolog.Logger

	runtimeName  string
	nameFallback bool

	watcher *Watcher
	conn    *websocket.Conn

	inbound chan []byte
	readErr chan error

	mu    sync.Mutex
	state State

	closeOnce sync.Once
	closeErr  error
}

// NewSession resolves the plugin's runtime name and prepares a session.
// When the name cannot be resolved from source, the directory name is
// used instead and every reload carries a warning for the whole session.
func NewSession(cfg SessionConfig, logger zerolog.Logger) (*Session, error) {
	abs, err := filepath.Abs(cfg.PluginPath)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve plugin path: %w", err)
	}
	cfg.PluginPath = abs
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.LoadNoticeTimeout <= 0 {
		cfg.LoadNoticeTimeout = defaultLoadNoticeTimeout
	}
	if cfg.ReloadTimeout <= 0 {
		cfg.ReloadTimeout = defaultReloadTimeout
	}
	if cfg.ConnectRetries <= 0 {
		cfg.ConnectRetries = defaultConnectRetries
	}
	if cfg.ConnectDelay <= 0 {
		cfg.ConnectDelay = defaultConnectDelay
	}

	s := &Session{
		cfg:     cfg,
		logger:  logger.With().Str("component", "dev-session").Logger(),
		inbound: make(chan []byte, 16),
		readErr: make(chan error, 1),
		state:   StateDiscovering,
	}

	s.runtimeName = model.ExtractRuntimeName(abs)
	if s.runtimeName == "" {
		s.runtimeName = filepath.Base(abs)
		s.nameFallback = true
		s.logger.Warn().
			Str("fallback", s.runtimeName).
			Msg("Cannot resolve the runtime plugin name from plugin.py, using the directory name; reloads may silently target nothing")
	}

	return s, nil
}

// AttachHost registers a host this session started and must terminate on
// close.
func (s *Session) AttachHost(h *Host) { s.cfg.Host = h }

// AttachInjector registers injected artifacts to remove on close.
func (s *Session) AttachInjector(in *Injector) { s.cfg.Injector = in }

// RuntimeName returns the plugin name reload commands will carry.
func (s *Session) RuntimeName() string { return s.runtimeName }

// NameFallback reports whether the directory-name fallback is in effect.
func (s *Session) NameFallback() bool { return s.nameFallback }

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.logger.Debug().Str("state", string(st)).Msg("Session state changed")
}

// Run drives the session until the context is cancelled or the control
// channel fails. Close is always executed on the way out, in its fixed
// order.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	s.setState(StateDiscovering)
	info, err := NewDiscoverer(s.cfg.Discovery, s.logger).Discover(ctx)
	if err != nil {
		return err
	}

	s.setState(StateConnecting)
	if err := s.connect(ctx, info); err != nil {
		return err
	}
	go s.readPump()

	s.setState(StateAwaitingLoadNotice)
	s.awaitLoadNotice(ctx)

	s.watcher, err = NewWatcher(WatcherConfig{Root: s.cfg.PluginPath, Debounce: s.cfg.Debounce}, s.logger)
	if err != nil {
		return err
	}
	if err := s.watcher.Start(); err != nil {
		return err
	}

	s.setState(StateActive)
	if s.nameFallback {
		s.logger.Warn().Str("plugin", s.runtimeName).Msg("Session is using the directory-name fallback")
	}
	return s.active(ctx)
}

// connect dials the control channel with a bounded retry budget.
func (s *Session) connect(ctx context.Context, info ServerInfo) error {
	url := fmt.Sprintf("ws://%s:%d%s", info.Host, info.Port, ControlPath)
	var lastErr error
	for attempt := 1; attempt <= s.cfg.ConnectRetries; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			s.conn = conn
			s.logger.Info().Str("url", url).Msg("Control channel connected")
			return nil
		}
		lastErr = err
		if attempt == s.cfg.ConnectRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ConnectDelay):
		}
	}
	return fmt.Errorf("cannot connect to the control channel at %s after %d attempts: %w",
		url, s.cfg.ConnectRetries, lastErr)
}

// readPump owns all reads on the control channel. The blocking read is
// unblocked by Close closing the connection, so a silent peer never
// prevents process exit.
func (s *Session) readPump() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case s.readErr <- err:
			default:
			}
			return
		}
		select {
		case s.inbound <- data:
		default:
			s.logger.Warn().Msg("Inbound message dropped, consumer is behind")
		}
	}
}

// awaitLoadNotice waits for the host's startup push and classifies the
// watched plugin's fate. Every outcome proceeds to Active: a failed or
// unlisted plugin is a warning, not a dead end, so the developer can keep
// editing and retry.
func (s *Session) awaitLoadNotice(ctx context.Context) {
	select {
	case data := <-s.inbound:
		if MessageType(data) != TypePluginsLoaded {
			s.logger.Warn().Str("type", MessageType(data)).Msg("Expected a load notice, got something else")
			return
		}
		var notice LoadNotice
		if err := json.Unmarshal(data, &notice); err != nil {
			s.logger.Warn().Err(err).Msg("Cannot decode load notice")
			return
		}
		switch {
		case contains(notice.LoadedPlugins, s.runtimeName):
			s.logger.Info().Str("plugin", s.runtimeName).Msg("Plugin loaded by host")
		case contains(notice.FailedPlugins, s.runtimeName):
			s.logger.Warn().Str("plugin", s.runtimeName).Msg("Plugin failed to load; edit and save to retry")
		default:
			s.logger.Warn().
				Str("plugin", s.runtimeName).
				Msg("Plugin is neither loaded nor failed on the host; the resolved runtime name may not match what the host registered")
		}
	case <-time.After(s.cfg.LoadNoticeTimeout):
		s.logger.Warn().Msg("No load notice from host, proceeding optimistically")
	case <-ctx.Done():
	}
}

// active is the watch/reload loop. At most one reload is in flight;
// events arriving meanwhile coalesce into a single pending follow-up.
func (s *Session) active(ctx context.Context) error {
	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	watchdog := time.NewTicker(s.cfg.ReloadTimeout / 2)
	defer watchdog.Stop()

	inFlight := false
	pending := false
	var inFlightSince time.Time
	lastPong := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil

		case change := <-s.watcher.Events():
			s.logger.Info().Str("path", change.Path).Str("kind", string(change.Kind)).Msg("File changed")
			if inFlight {
				pending = true
				continue
			}
			if err := s.sendReload(); err != nil {
				return err
			}
			inFlight = true
			inFlightSince = time.Now()

		case data := <-s.inbound:
			switch MessageType(data) {
			case TypeReloadResult:
				var res ReloadResult
				if err := json.Unmarshal(data, &res); err != nil {
					s.logger.Warn().Err(err).Msg("Cannot decode reload result")
					continue
				}
				if res.Success {
					s.logger.Info().Str("plugin", res.PluginName).Str("message", res.Message).Msg("Reload succeeded")
				} else {
					s.logger.Error().Str("plugin", res.PluginName).Str("message", res.Message).Msg("Reload failed")
				}
				inFlight = false
				if pending {
					pending = false
					if err := s.sendReload(); err != nil {
						return err
					}
					inFlight = true
					inFlightSince = time.Now()
				}

			case TypePong:
				lastPong = time.Now()

			case TypeStatus:
				var st StatusReply
				if err := json.Unmarshal(data, &st); err == nil {
					s.logger.Info().
						Strs("loaded", st.LoadedPlugins).
						Strs("failed", st.FailedPlugins).
						Msg("Host status")
				}

			case TypePluginsLoaded:
				// The host restarted its plugin set mid-session.
				s.logger.Info().Msg("Host re-announced its plugin set")
			}

		case err := <-s.readErr:
			return fmt.Errorf("control channel closed: %w", err)

		case <-watchdog.C:
			if !inFlight || time.Since(inFlightSince) < s.cfg.ReloadTimeout {
				continue
			}
			s.logger.Warn().
				Str("plugin", s.runtimeName).
				Dur("waited", time.Since(inFlightSince)).
				Msg("No reload result from host, giving up on this attempt")
			inFlight = false
			if pending {
				pending = false
				if err := s.sendReload(); err != nil {
					return err
				}
				inFlight = true
				inFlightSince = time.Now()
			}

		case <-heartbeat.C:
			if time.Since(lastPong) > 2*s.cfg.HeartbeatInterval {
				return fmt.Errorf("host stopped answering heartbeats, connection is silently dead")
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, marshalCommand(CommandPing, "")); err != nil {
				return fmt.Errorf("cannot send heartbeat: %w", err)
			}
		}
	}
}

func (s *Session) sendReload() error {
	if s.nameFallback {
		s.logger.Warn().Str("plugin", s.runtimeName).Msg("Reloading with the directory-name fallback")
	}
	s.logger.Info().Str("plugin", s.runtimeName).Msg("Requesting reload")
	if err := s.conn.WriteMessage(websocket.TextMessage, marshalCommand(CommandReload, s.runtimeName)); err != nil {
		return fmt.Errorf("cannot send reload command: %w", err)
	}
	return nil
}

// Close tears the session down in its required order: stop the file
// watch, close the control channel, terminate the host if this session
// started it, then remove injected artifacts. Artifacts go last so their
// removal cannot race the host's own shutdown file I/O.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)

		if s.watcher != nil {
			if err := s.watcher.Stop(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
		if s.conn != nil {
			if err := s.conn.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
		if s.cfg.Host != nil {
			if err := s.cfg.Host.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
		if s.cfg.Injector != nil {
			if err := s.cfg.Injector.Cleanup(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}

		s.setState(StateClosed)
		s.logger.Info().Msg("Session closed")
	})
	return s.closeErr
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
