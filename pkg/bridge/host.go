package bridge

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	defaultPreferredControlPort = 8765
	defaultControlPortProbes    = 20
)

// HostConfig configures the reference host-side bridge server.
type HostConfig struct {
	// DiscoveryAddr is the fixed discovery endpoint bind address.
	DiscoveryAddr string
	// PreferredControlPort is the first control port tried; the host
	// increments on conflict.
	PreferredControlPort int
	// ControlPortProbes bounds how many consecutive ports are tried.
	ControlPortProbes int
	// Loaded and Failed seed the load notice pushed to new clients.
	Loaded []string
	Failed []string
	// Reload performs the actual plugin reload. Nil means every reload
	// succeeds, which is what session tests want.
	Reload func(pluginName string) error
}

// Host is the host-side half of the bridge protocol: discovery endpoint
// on the fixed port, websocket control channel on a dynamically probed
// one. Production hosts embed the same protocol; this implementation
// backs self-hosted dev runs and tests.
type Host struct {
	cfg     HostConfig
	logger  zerolog.Logger
	metrics *Metrics

	sessionID string
	upgrader  websocket.Upgrader

	discoveryLn  net.Listener
	controlLn    net.Listener
	discoverySrv *http.Server
	controlSrv   *http.Server

	mu     sync.Mutex
	loaded []string
	failed []string
}

func NewHost(cfg HostConfig, logger zerolog.Logger) *Host {
	if cfg.DiscoveryAddr == "" {
		cfg.DiscoveryAddr = fmt.Sprintf("127.0.0.1:%d", DefaultDiscoveryPort)
	}
	if cfg.PreferredControlPort == 0 {
		cfg.PreferredControlPort = defaultPreferredControlPort
	}
	if cfg.ControlPortProbes <= 0 {
		cfg.ControlPortProbes = defaultControlPortProbes
	}
	return &Host{
		cfg:       cfg,
		logger:    logger.With().Str("component", "bridge-host").Logger(),
		metrics:   NewMetrics(),
		sessionID: uuid.NewString(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		loaded: cfg.Loaded,
		failed: cfg.Failed,
	}
}

// Start binds the discovery endpoint and probes for a control port, then
// serves both in the background.
func (h *Host) Start() error {
	discoveryLn, err := net.Listen("tcp", h.cfg.DiscoveryAddr)
	if err != nil {
		return fmt.Errorf("cannot bind discovery endpoint at %s: %w", h.cfg.DiscoveryAddr, err)
	}
	h.discoveryLn = discoveryLn

	controlLn, err := h.probeControlPort()
	if err != nil {
		discoveryLn.Close()
		return err
	}
	h.controlLn = controlLn

	h.discoverySrv = &http.Server{Handler: h.discoveryMux(), ReadHeaderTimeout: 5 * time.Second}
	h.controlSrv = &http.Server{Handler: h.controlMux(), ReadHeaderTimeout: 5 * time.Second}

	go h.discoverySrv.Serve(discoveryLn) //nolint:errcheck
	go h.controlSrv.Serve(controlLn)     //nolint:errcheck

	h.logger.Info().
		Str("session_id", h.sessionID).
		Str("discovery", h.DiscoveryAddr()).
		Int("control_port", h.ControlPort()).
		Msg("Bridge host started")
	return nil
}

// probeControlPort tries the preferred port and increments on conflict.
func (h *Host) probeControlPort() (net.Listener, error) {
	if h.cfg.PreferredControlPort < 0 {
		// Negative means "any free port", used by tests.
		return net.Listen("tcp", "127.0.0.1:0")
	}
	var lastErr error
	for i := 0; i < h.cfg.ControlPortProbes; i++ {
		port := h.cfg.PreferredControlPort + i
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return ln, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("cannot bind a control port in [%d,%d): %w",
		h.cfg.PreferredControlPort, h.cfg.PreferredControlPort+h.cfg.ControlPortProbes, lastErr)
}

// Close shuts both servers down.
func (h *Host) Close() error {
	var first error
	if h.controlSrv != nil {
		if err := h.controlSrv.Close(); err != nil && first == nil {
			first = err
		}
	}
	if h.discoverySrv != nil {
		if err := h.discoverySrv.Close(); err != nil && first == nil {
			first = err
		}
	}
	h.logger.Info().Msg("Bridge host stopped")
	return first
}

// DiscoveryAddr returns the bound discovery address, host:port.
func (h *Host) DiscoveryAddr() string {
	if h.discoveryLn == nil {
		return h.cfg.DiscoveryAddr
	}
	return h.discoveryLn.Addr().String()
}

// ControlPort returns the bound control channel port.
func (h *Host) ControlPort() int {
	if h.controlLn == nil {
		return 0
	}
	return h.controlLn.Addr().(*net.TCPAddr).Port
}

func (h *Host) discoveryMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok", "session_id": h.sessionID})
	})
	mux.HandleFunc(ServerInfoPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, ServerInfo{Host: "127.0.0.1", Port: h.ControlPort()})
	})
	mux.Handle(MetricsPath, h.metrics.Handler())
	return mux
}

func (h *Host) controlMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(ControlPath, h.handleControl)
	return mux
}

func (h *Host) handleControl(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Websocket upgrade failed")
		return
	}
	clientID, _ := gonanoid.New()
	h.metrics.ConnectedClients.Inc()
	defer func() {
		h.metrics.ConnectedClients.Dec()
		conn.Close()
		h.logger.Info().Str("client_id", clientID).Msg("Control client disconnected")
	}()

	h.logger.Info().Str("client_id", clientID).Msg("Control client connected")

	// The load notice goes out once, unsolicited, right after connect.
	h.mu.Lock()
	notice := LoadNotice{Type: TypePluginsLoaded, LoadedPlugins: h.loaded, FailedPlugins: h.failed}
	h.mu.Unlock()
	if err := conn.WriteJSON(notice); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := h.dispatch(conn, data); err != nil {
			h.logger.Error().Err(err).Str("client_id", clientID).Msg("Cannot answer command")
			return
		}
	}
}

func (h *Host) dispatch(conn *websocket.Conn, data []byte) error {
	switch CommandName(data) {
	case CommandReload:
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			return err
		}
		return conn.WriteJSON(h.reload(cmd.PluginName))

	case CommandStatus:
		h.mu.Lock()
		reply := StatusReply{Type: TypeStatus, LoadedPlugins: h.loaded, FailedPlugins: h.failed}
		h.mu.Unlock()
		return conn.WriteJSON(reply)

	case CommandPing:
		return conn.WriteJSON(Pong{Type: TypePong})
	}
	h.logger.Warn().Str("command", CommandName(data)).Msg("Unknown command ignored")
	return nil
}

func (h *Host) reload(pluginName string) ReloadResult {
	h.metrics.ReloadsTotal.Inc()

	if h.cfg.Reload != nil {
		if err := h.cfg.Reload(pluginName); err != nil {
			h.metrics.ReloadFailures.Inc()
			return ReloadResult{Type: TypeReloadResult, PluginName: pluginName, Success: false, Message: err.Error()}
		}
	}

	h.logger.Info().Str("plugin", pluginName).Msg("Plugin reloaded")
	return ReloadResult{Type: TypeReloadResult, PluginName: pluginName, Success: true, Message: "reloaded"}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
