package policy

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads tunables when the config file changes on disk.
// Editors replace files with rename+create, so the watch is on the
// parent directory rather than the file itself.
type Watcher struct {
	path   string
	pol    *Policy
	logger *log.Logger
}

// NewWatcher creates a config watcher for the given file path.
func NewWatcher(path string, pol *Policy, logger *log.Logger) *Watcher {
	return &Watcher{path: path, pol: pol, logger: logger}
}

// Start watches until ctx is cancelled. Reload errors are logged and
// the previous config stays active.
func (w *Watcher) Start(ctx context.Context) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Printf("Config watcher: init failed: %v (hot reload disabled)", err)
		return
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		w.logger.Printf("Config watcher: cannot watch %s: %v (hot reload disabled)", dir, err)
		return
	}
	w.logger.Printf("Config watcher: watching %s", w.path)

	// Debounce: editors fire several events per save.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(250 * time.Millisecond)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Config watcher: %v", err)
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Printf("Config watcher: reload failed: %v (keeping previous config)", err)
		return
	}
	w.pol.Reload(cfg)
	w.logger.Printf("Config watcher: reloaded (lock_ttl=%ds, lock_sweep=%ds, presence_sweep=%ds, tick=%ds, doc_gc=%ds)",
		cfg.LockTTLSeconds, cfg.LockSweepSeconds, cfg.PresenceSweepSeconds, cfg.ConvergenceTickSeconds, cfg.DocGCSeconds)
}
