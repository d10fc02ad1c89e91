// Package watch reports edits to project source files in debounced batches.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 200 * time.Millisecond

// Config configures a Watcher.
type Config struct {
	// Files are the absolute paths to report on. Their directories are watched.
	Files []string

	// Debounce is how long changes accumulate before a batch is emitted.
	Debounce time.Duration
}

// Watcher emits batches of changed files, each batch sorted by path.
type Watcher struct {
	fsw      *fsnotify.Watcher
	files    map[string]bool
	debounce time.Duration

	pendingMu sync.Mutex
	pending   map[string]struct{}

	batches chan []string
}

// New creates a watcher on the directories holding cfg.Files.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	w := newWatcher(cfg)
	w.fsw = fsw

	dirs := make(map[string]bool)
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
		logrus.Debugf("Watching directory %s", dir)
	}
	return w, nil
}

func newWatcher(cfg Config) *Watcher {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	files := make(map[string]bool, len(cfg.Files))
	for _, f := range cfg.Files {
		files[filepath.Clean(f)] = true
	}
	return &Watcher{
		files:    files,
		debounce: debounce,
		pending:  make(map[string]struct{}),
		batches:  make(chan []string, 16),
	}
}

// Batches returns the channel of change batches. It is closed when Run returns.
func (w *Watcher) Batches() <-chan []string {
	return w.batches
}

// Run processes file system events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.batches)
	defer w.fsw.Close()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.record(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logrus.Errorf("File watcher error: %v", err)

		case <-ticker.C:
			if batch := w.flush(); len(batch) > 0 {
				select {
				case w.batches <- batch:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// record accumulates an event if it touches a tracked file's content.
// Editors that save via rename show up as Create on the tracked name.
func (w *Watcher) record(event fsnotify.Event) bool {
	path := filepath.Clean(event.Name)
	if !w.files[path] {
		return false
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	w.pendingMu.Lock()
	w.pending[path] = struct{}{}
	w.pendingMu.Unlock()
	logrus.Debugf("Change detected: %s (%s)", path, event.Op)
	return true
}

// flush returns and clears the pending paths.
func (w *Watcher) flush() []string {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if len(w.pending) == 0 {
		return nil
	}
	out := make([]string, 0, len(w.pending))
	for p := range w.pending {
		out = append(out, p)
	}
	w.pending = make(map[string]struct{})
	sort.Strings(out)
	return out
}
