package bridge

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Injector copies the developed plugin into a host's plugins directory
// and tracks what it created so Cleanup can undo it.
type Injector struct {
	hostPath string
	logger   zerolog.Logger

	injected []string
}

// NewInjector creates an injector for the host installation at hostPath.
func NewInjector(hostPath string, logger zerolog.Logger) *Injector {
	return &Injector{
		hostPath: hostPath,
		logger:   logger.With().Str("component", "inject").Logger(),
	}
}

// Inject copies the plugin tree into <host>/plugins/<runtimeName>,
// replacing a previous copy. When the plugin already lives inside the
// host's plugins directory nothing is copied and nothing is tracked.
func (in *Injector) Inject(pluginRoot, runtimeName string) (string, error) {
	pluginsDir := filepath.Join(in.hostPath, "plugins")
	target := filepath.Join(pluginsDir, runtimeName)

	absRoot, err := filepath.Abs(pluginRoot)
	if err != nil {
		return "", err
	}
	if parent, err := filepath.Abs(filepath.Dir(absRoot)); err == nil {
		if abs, err := filepath.Abs(pluginsDir); err == nil && parent == abs {
			in.logger.Debug().Str("plugin", runtimeName).Msg("Plugin already lives in the host plugins directory")
			return absRoot, nil
		}
	}

	if err := os.MkdirAll(pluginsDir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create plugins directory: %w", err)
	}
	if err := os.RemoveAll(target); err != nil {
		return "", fmt.Errorf("cannot replace previous injection: %w", err)
	}
	if err := copyTree(absRoot, target); err != nil {
		return "", fmt.Errorf("cannot inject plugin: %w", err)
	}

	in.injected = append(in.injected, target)
	in.logger.Info().Str("plugin", runtimeName).Str("target", target).Msg("Plugin injected")
	return target, nil
}

// Cleanup removes every artifact this injector created, in reverse
// injection order.
func (in *Injector) Cleanup() error {
	var first error
	for i := len(in.injected) - 1; i >= 0; i-- {
		target := in.injected[i]
		if err := os.RemoveAll(target); err != nil {
			if first == nil {
				first = err
			}
			in.logger.Error().Err(err).Str("target", target).Msg("Cannot remove injected artifact")
			continue
		}
		in.logger.Info().Str("target", target).Msg("Injected artifact removed")
	}
	in.injected = nil
	return first
}

// Injected lists the artifacts currently tracked for cleanup.
func (in *Injector) Injected() []string {
	out := make([]string, len(in.injected))
	copy(out, in.injected)
	return out
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if shouldIgnorePath(rel) && rel != "." {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
