package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ChangeKind classifies a coalesced file event.
type ChangeKind string

const (
	ChangeWrite  ChangeKind = "write"
	ChangeCreate ChangeKind = "create"
	ChangeRemove ChangeKind = "remove"
)

// Change is one debounced file-system event.
type Change struct {
	Path string
	Kind ChangeKind
}

// WatcherConfig holds configuration for the plugin tree watcher.
type WatcherConfig struct {
	// Root is the plugin directory to watch recursively.
	Root string
	// Debounce is the quiet period after the last event on a path before
	// it is emitted. Restarts on every new event within the window.
	Debounce time.Duration
}

// Watcher monitors a plugin directory and emits debounced changes into a
// single channel. Consumers read Events(); production and consumption are
// fully decoupled.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	debounce time.Duration
	events   chan Change
	done     chan struct{}
	timers   map[string]*time.Timer
	mu       sync.Mutex
	stopOnce sync.Once
	logger   zerolog.Logger
}

// NewWatcher creates a watcher for the given plugin root.
func NewWatcher(cfg WatcherConfig, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("cannot create file watcher: %w", err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Watcher{
		watcher:  fsw,
		root:     cfg.Root,
		debounce: cfg.Debounce,
		events:   make(chan Change, 64),
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
		logger:   logger.With().Str("component", "watcher").Logger(),
	}, nil
}

// Events returns the coalesced change stream.
func (w *Watcher) Events() <-chan Change { return w.events }

// Start begins watching the plugin tree recursively.
func (w *Watcher) Start() error {
	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("cannot watch plugin tree: %w", err)
	}
	go w.eventLoop()

	w.logger.Info().Str("path", w.root).Msg("File watcher started")
	return nil
}

// Stop cancels pending debounce timers and closes the watcher. Safe to
// call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		for _, t := range w.timers {
			t.Stop()
		}
		clear(w.timers)
		w.mu.Unlock()

		err = w.watcher.Close()
		w.logger.Info().Msg("File watcher stopped")
	})
	return err
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if shouldIgnorePath(event.Name) {
		return
	}

	// New directories must be added to the watch set immediately, before
	// the debounce window, or edits inside them are missed.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(event.Name)
		}
	}

	w.debounceEvent(event)
}

// debounceEvent restarts the per-path quiet window and emits the change
// only when the window elapses without further events.
func (w *Watcher) debounceEvent(event fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[event.Name]; ok {
		t.Stop()
	}

	eventCopy := event
	w.timers[event.Name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, eventCopy.Name)
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}

		change := Change{Path: eventCopy.Name, Kind: changeKind(eventCopy.Op)}
		select {
		case w.events <- change:
		case <-w.done:
		}
	})
}

func changeKind(op fsnotify.Op) ChangeKind {
	switch {
	case op&fsnotify.Create != 0:
		return ChangeCreate
	case op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return ChangeRemove
	default:
		return ChangeWrite
	}
}

func (w *Watcher) addRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if shouldIgnorePath(walkPath) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if err := w.watcher.Add(walkPath); err != nil {
			w.logger.Warn().Err(err).Str("path", walkPath).Msg("Failed to watch path")
		}
		return nil
	})
}

// shouldIgnorePath filters editor and interpreter noise: dotfiles,
// bytecode caches and VCS metadata.
func shouldIgnorePath(path string) bool {
	for _, part := range strings.Split(filepath.Clean(path), string(filepath.Separator)) {
		if part == "" {
			continue
		}
		if part[0] == '.' && part != "." && part != ".." {
			return true
		}
		if part == "__pycache__" {
			return true
		}
	}
	return strings.HasSuffix(path, ".pyc") || strings.HasSuffix(path, "~")
}
