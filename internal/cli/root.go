// Package cli wires the mpdt commands: check runs the static validators
// over a plugin directory, dev attaches a hot-reload session to a running
// host.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/internal/config"
	"github.com/MoFox-Studio/mofox-plugin-toolkit/internal/logger"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "mpdt",
	Short: "MoFox plugin development toolkit",
	Long: `mpdt validates MoFox bot plugins statically and hot-reloads them
inside a running host during development.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mpdt/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level debug")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// loadConfig reads the toolkit configuration, applying the global
// log-level flag on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the command logger from configuration. File output is
// only wired for long-running commands.
func newLogger(cfg *config.Config, withFile bool) (*logger.Logger, error) {
	lc := logger.Config{
		Level:     cfg.Logging.Level,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	}
	if withFile {
		lc.File = cfg.LogFile()
	}
	return logger.New(lc)
}

// GetRootCmd returns the root command for testing.
func GetRootCmd() *cobra.Command {
	return rootCmd
}
