package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses the burst of events an editor save produces.
const watchDebounce = 150 * time.Millisecond

var displayFiles = map[string]bool{
	AxesFileName: true, ModesFileName: true, MarkersFileName: true,
	LinesFileName: true, TooltipFileName: true,
}

// WatcherConfig holds configuration for creating a new Watcher.
type WatcherConfig struct {
	Dir      string
	MainFile string
	Pattern  string // pattern in effect at start
	Logger   *slog.Logger

	// CurrentPattern reports the pattern in effect, which may have changed
	// outside the watcher. When nil, the last pattern the watcher applied is
	// used.
	CurrentPattern func() string

	// OnDisplay receives the reloaded display config.
	OnDisplay func(Display)

	// OnPattern is called when main.json names a different key pattern.
	OnPattern func(pattern string) error
}

// Watcher reloads display config and the key pattern when files change.
type Watcher struct {
	cfg     WatcherConfig
	watcher *fsnotify.Watcher
	pattern string
}

// NewWatcher starts watching the config dir and the directory holding
// main.json.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	dirs := map[string]bool{filepath.Clean(cfg.Dir): true}
	if cfg.MainFile != "" {
		dirs[filepath.Dir(cfg.MainFile)] = true
	}
	for d := range dirs {
		if err := fw.Add(d); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watch %s: %w", d, err)
		}
	}

	return &Watcher{cfg: cfg, watcher: fw, pattern: cfg.Pattern}, nil
}

// Run handles events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		timer         *time.Timer
		timerC        <-chan time.Time
		reloadDisplay bool
		reloadMain    bool
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			switch {
			case w.isMain(ev.Name):
				reloadMain = true
			case displayFiles[filepath.Base(ev.Name)]:
				reloadDisplay = true
			default:
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}

		case <-timerC:
			timer, timerC = nil, nil
			if reloadDisplay {
				w.reloadDisplay()
			}
			if reloadMain {
				w.reloadPattern()
			}
			reloadDisplay, reloadMain = false, false

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.cfg.Logger.Warn("config_watch_error", "error", err)
		}
	}
}

func (w *Watcher) isMain(name string) bool {
	main := w.cfg.MainFile
	if main == "" {
		main = joinDir(w.cfg.Dir, MainFileName)
	}
	return filepath.Clean(name) == filepath.Clean(main)
}

func (w *Watcher) reloadDisplay() {
	d, warnings := LoadDisplay(w.cfg.Dir)
	for _, err := range warnings {
		w.cfg.Logger.Warn("display_config_invalid", "error", err)
	}
	w.cfg.Logger.Info("display_config_reloaded", "dir", w.cfg.Dir)
	if w.cfg.OnDisplay != nil {
		w.cfg.OnDisplay(d)
	}
}

func (w *Watcher) reloadPattern() {
	main := w.cfg.MainFile
	if main == "" {
		main = joinDir(w.cfg.Dir, MainFileName)
	}
	p, err := ReadPattern(main)
	if err != nil {
		w.cfg.Logger.Warn("main_config_invalid", "path", main, "error", err)
		return
	}
	current := w.pattern
	if w.cfg.CurrentPattern != nil {
		current = w.cfg.CurrentPattern()
	}
	if p == "" || p == current {
		return
	}
	if w.cfg.OnPattern != nil {
		if err := w.cfg.OnPattern(p); err != nil {
			w.cfg.Logger.Warn("pattern_rejected", "pattern", p, "error", err)
			return
		}
	}
	w.cfg.Logger.Info("pattern_changed", "old_pattern", current, "pattern", p)
	w.pattern = p
}
