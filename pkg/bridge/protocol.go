// Package bridge implements the development bridge: the discovery and
// control channel a CLI session uses to hot-reload a plugin inside a
// running host process.
package bridge

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// DefaultDiscoveryPort is the fixed, well-known port the host's
	// discovery endpoint listens on.
	DefaultDiscoveryPort = 12318

	// ControlPath is the websocket path of the control channel, namespaced
	// by the bridge component's registered name.
	ControlPath = "/ws/dev_bridge"

	// HealthPath and ServerInfoPath are the discovery endpoint routes.
	HealthPath     = "/healthz"
	ServerInfoPath = "/server-info"
	MetricsPath    = "/metrics"

	// DefaultDebounce collapses editor write bursts into one reload.
	DefaultDebounce = 300 * time.Millisecond

	// DefaultHeartbeatInterval paces the ping/pong liveness exchange.
	DefaultHeartbeatInterval = 15 * time.Second
)

// Client-to-host command names.
const (
	CommandReload = "reload"
	CommandStatus = "status"
	CommandPing   = "ping"
)

// Host-to-client message types.
const (
	TypePluginsLoaded = "plugins_loaded"
	TypeReloadResult  = "reload_result"
	TypeStatus        = "status"
	TypePong          = "pong"
)

// Command is a client-to-host control message.
type Command struct {
	Command    string `json:"command"`
	PluginName string `json:"plugin_name,omitempty"`
}

// ServerInfo is the discovery endpoint's answer: where the control
// channel actually listens.
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LoadNotice is pushed once by the host after startup completes.
type LoadNotice struct {
	Type          string   `json:"type"`
	LoadedPlugins []string `json:"loaded_plugins"`
	FailedPlugins []string `json:"failed_plugins"`
}

// ReloadResult answers a reload command.
type ReloadResult struct {
	Type       string `json:"type"`
	PluginName string `json:"plugin_name"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
}

// StatusReply answers a status command.
type StatusReply struct {
	Type          string   `json:"type"`
	LoadedPlugins []string `json:"loaded_plugins"`
	FailedPlugins []string `json:"failed_plugins"`
}

// Pong answers a ping command.
type Pong struct {
	Type string `json:"type"`
}

// MessageType sniffs the type discriminator of an inbound host message
// without decoding the full payload.
func MessageType(data []byte) string {
	return gjson.GetBytes(data, "type").String()
}

// CommandName sniffs the command discriminator of a client message.
func CommandName(data []byte) string {
	return gjson.GetBytes(data, "command").String()
}

func marshalCommand(cmd, plugin string) []byte {
	data, _ := json.Marshal(Command{Command: cmd, PluginName: plugin})
	return data
}
