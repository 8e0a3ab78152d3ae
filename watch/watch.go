// Package watch processes agendas as they appear in a directory tree.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/brunobiangulo/agendagraph/agenda"
)

const defaultDebounce = 2 * time.Second

// Handler is called once per settled agenda file.
type Handler func(ctx context.Context, path string) error

// Watcher collects create and write events for agenda files and hands each
// file to its Handler after it has been quiet for the debounce delay.
type Watcher struct {
	dir      string
	handle   Handler
	debounce time.Duration
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a file must be unchanged before it is handled.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a Watcher over dir.
func New(dir string, h Handler, opts ...Option) (*Watcher, error) {
	if h == nil {
		return nil, errors.New("watch: nil handler")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		dir:      dir,
		handle:   h,
		debounce: defaultDebounce,
		fsw:      fsw,
		pending:  make(map[string]time.Time),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// IsAgenda reports whether name looks like a dated agenda file.
func IsAgenda(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".pdf", ".txt", ".md":
	default:
		return false
	}
	if !strings.Contains(strings.ToLower(base), "agenda") {
		return false
	}
	_, ok := agenda.ParseFilenameDate(base)
	return ok
}

// Run watches until ctx is done or the watcher fails. Handler errors are
// logged and do not stop the watch.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.addRecursive(w.dir); err != nil {
		return err
	}
	slog.Info("watch: started", "dir", w.dir, "debounce", w.debounce)

	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.observe(ev, time.Now())
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch: error", "error", err)
		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if base := d.Name(); strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			slog.Warn("watch: cannot watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// observe records an event. New directories are watched as they appear.
func (w *Watcher) observe(ev fsnotify.Event, at time.Time) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				slog.Warn("watch: new directory", "path", ev.Name, "error", err)
			}
			return
		}
	}
	if !IsAgenda(ev.Name) {
		return
	}

	w.mu.Lock()
	w.pending[ev.Name] = at
	w.mu.Unlock()
	slog.Debug("watch: change", "file", filepath.Base(ev.Name), "op", ev.Op.String())
}

// flush hands every file quiet since before now-debounce to the handler
// in path order. A file leaves pending once handled; files still waiting
// when ctx ends stay pending.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	w.mu.Lock()
	ready := make(map[string]time.Time)
	var paths []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			ready[path] = last
			paths = append(paths, path)
		}
	}
	w.mu.Unlock()
	sort.Strings(paths)

	for i, path := range paths {
		if ctx.Err() != nil {
			slog.Warn("watch: stopping with agendas unprocessed", "count", len(paths)-i, "files", paths[i:])
			return
		}
		slog.Info("watch: processing", "file", filepath.Base(path))
		if err := w.handle(ctx, path); err != nil {
			slog.Error("watch: processing failed", "file", filepath.Base(path), "error", err)
		}
		w.mu.Lock()
		if last, ok := w.pending[path]; ok && last.Equal(ready[path]) {
			delete(w.pending, path)
		}
		w.mu.Unlock()
	}
}
