// Package watch observes the specs directory and reports which specs
// changed, debounced so editor save bursts collapse into one notification.
package watch

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/specforge/specforge/internal/spec"
)

// DefaultDebounce is the delay between the last observed change and the
// notification.
const DefaultDebounce = 500 * time.Millisecond

// NotifyFunc receives the names of specs whose files changed, sorted.
type NotifyFunc func(specNames []string)

// Watcher monitors a spec store's directory tree.
type Watcher struct {
	store    *spec.Store
	watcher  *fsnotify.Watcher
	notify   NotifyFunc
	debounce time.Duration
	done     chan struct{}

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer
	closed  bool
}

// New starts watching the store's specs directory. The directory is created
// if it does not exist so a watch can begin before the first spec.
func New(store *spec.Store, debounce time.Duration, notify NotifyFunc) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	if err := os.MkdirAll(store.Dir(), 0755); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		store:    store,
		watcher:  fsw,
		notify:   notify,
		debounce: debounce,
		done:     make(chan struct{}),
		pending:  make(map[string]bool),
	}

	if err := fsw.Add(store.Dir()); err != nil {
		fsw.Close()
		return nil, err
	}
	// Existing spec directories are watched individually so document edits
	// inside them are seen.
	names, err := store.List()
	if err != nil {
		fsw.Close()
		return nil, err
	}
	for _, name := range names {
		if err := fsw.Add(store.SpecDir(name)); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	go w.loop()
	return w, nil
}

// Close stops the watcher. Pending but unflushed changes are discarded.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case <-w.watcher.Errors:
			// Keep watching.
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := w.specNameFor(event.Name)
	if name == "" {
		return
	}

	// A newly created spec directory must itself be watched.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.watcher.Add(event.Name)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	w.pending[name] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

// flush delivers the accumulated spec names.
func (w *Watcher) flush() {
	w.mu.Lock()
	if w.closed || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	names := make([]string, 0, len(w.pending))
	for name := range w.pending {
		names = append(names, name)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	sort.Strings(names)
	w.notify(names)
}

// specNameFor maps a changed path to the spec it belongs to, or "" for
// paths outside any spec directory.
func (w *Watcher) specNameFor(path string) string {
	rel, err := filepath.Rel(w.store.Dir(), path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	return parts[0]
}
