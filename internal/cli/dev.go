package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/pkg/bridge"
)

var devFlags struct {
	hostPath string
	port     int
	debounce int
	selfHost bool
}

var devCmd = &cobra.Command{
	Use:   "dev [plugin-path]",
	Short: "Hot-reload a plugin inside a running host",
	Long: `Attach to a running host's dev bridge, watch the plugin directory
and reload the plugin on every change. Ctrl-C detaches cleanly.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDev,
}

func init() {
	rootCmd.AddCommand(devCmd)

	devCmd.Flags().StringVar(&devFlags.hostPath, "host-path", "", "host installation to inject the plugin into")
	devCmd.Flags().IntVar(&devFlags.port, "port", 0, "discovery port of the host's dev bridge")
	devCmd.Flags().IntVar(&devFlags.debounce, "debounce", 0, "reload debounce window in milliseconds")
	devCmd.Flags().BoolVar(&devFlags.selfHost, "self-host", false, "start the built-in reference host instead of attaching to one")
}

func runDev(cmd *cobra.Command, args []string) error {
	pluginPath := "."
	if len(args) == 1 {
		pluginPath = args[0]
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if devFlags.hostPath == "" {
		devFlags.hostPath = cfg.Dev.HostPath
	}
	if devFlags.port == 0 {
		devFlags.port = cfg.Dev.DiscoveryPort
	}
	if devFlags.debounce == 0 {
		devFlags.debounce = cfg.Dev.DebounceMs
	}

	log, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionCfg := bridge.SessionConfig{
		PluginPath: pluginPath,
		Discovery: bridge.DiscoveryConfig{
			Addr:    fmt.Sprintf("127.0.0.1:%d", devFlags.port),
			Retries: cfg.Dev.DiscoveryRetries,
		},
		Debounce:          time.Duration(devFlags.debounce) * time.Millisecond,
		HeartbeatInterval: time.Duration(cfg.Dev.HeartbeatSeconds) * time.Second,
	}

	session, err := bridge.NewSession(sessionCfg, log.Zerolog())
	if err != nil {
		return err
	}

	if devFlags.hostPath != "" {
		injector := bridge.NewInjector(devFlags.hostPath, log.Zerolog())
		if _, err := injector.Inject(pluginPath, session.RuntimeName()); err != nil {
			return err
		}
		session.AttachInjector(injector)
	}

	if devFlags.selfHost {
		host := bridge.NewHost(bridge.HostConfig{
			DiscoveryAddr: fmt.Sprintf("127.0.0.1:%d", devFlags.port),
		}, log.Zerolog())
		if err := host.Start(); err != nil {
			return err
		}
		session.AttachHost(host)
	}

	zl := log.Zerolog()
	zl.Info().
		Str("plugin", session.RuntimeName()).
		Str("path", pluginPath).
		Msg("Starting dev session")

	return session.Run(ctx)
}
