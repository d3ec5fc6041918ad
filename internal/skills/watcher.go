package skills

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the workspace skills tree and invokes onChange after the
// filesystem settles. Events are debounced so editors that write several
// files trigger a single reload.
type Watcher struct {
	dir      string
	onChange func()
	logger   *slog.Logger
	debounce time.Duration
}

// NewWatcher creates a watcher over <workspace>/skills.
func NewWatcher(workspace string, logger *slog.Logger, onChange func()) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      filepath.Join(workspace, "skills"),
		onChange: onChange,
		logger:   logger.With("component", "skills"),
		debounce: 500 * time.Millisecond,
	}
}

// Run watches until ctx is cancelled. A missing skills directory is not an
// error; the watcher simply exits.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := os.Stat(w.dir); os.IsNotExist(err) {
		w.logger.Debug("skills directory absent, watcher disabled", "dir", w.dir)
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.dir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				_ = watcher.Add(filepath.Join(w.dir, entry.Name()))
			}
		}
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, "SKILL.md") &&
				!event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			w.logger.Info("skills changed, reloading")
			w.onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("skills watcher error", "error", err)
		}
	}
}
