// Package watcher reports file changes under a directory tree.
//
// Events from fsnotify are filtered (hidden paths, directories and chmod-only
// events are dropped) and debounced per path, so an editor that writes a file
// in several steps produces a single Change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/kbengine/internal/logger"
)

// DefaultDebounce is the quiet period before a change is emitted.
const DefaultDebounce = 300 * time.Millisecond

// ChangeType is the kind of file change.
type ChangeType int

const (
	ChangeCreated ChangeType = iota
	ChangeUpdated
	ChangeDeleted
)

func (t ChangeType) String() string {
	switch t {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is a debounced file event.
type Change struct {
	Path string
	Type ChangeType
}

// Watcher watches a directory tree for file changes.
type Watcher struct {
	root     string
	debounce time.Duration

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending map[string]*pendingChange
	closed  bool
}

type pendingChange struct {
	timer  *time.Timer
	change Change
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Zero emits changes immediately.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher rooted at dir.
func New(dir string, opts ...Option) *Watcher {
	w := &Watcher{
		root:     dir,
		debounce: DefaultDebounce,
		pending:  make(map[string]*pendingChange),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Validate checks that the root exists and is a directory.
func (w *Watcher) Validate() error {
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", w.root)
	}
	return nil
}

// Watch starts watching and returns a channel of changes. The channel is
// closed when ctx is cancelled or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context) (<-chan Change, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := addTree(fsw, w.root); err != nil {
		fsw.Close()
		return nil, err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		fsw.Close()
		return nil, errors.New("watcher closed")
	}
	w.fsw = fsw
	w.mu.Unlock()

	out := make(chan Change, 64)
	go w.loop(ctx, fsw, out)
	return out, nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, out chan<- Change) {
	emit := make(chan Change, 64)

	defer func() {
		w.stopPending()
		close(out)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case change := <-emit:
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			// New directories are watched as they appear.
			if event.Has(fsnotify.Create) && !w.hidden(event.Name) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(fsw, event.Name); err != nil {
						logger.Warn("watch %s: %v", event.Name, err)
					}
					continue
				}
			}
			if change := w.handleFsEvent(event); change != nil {
				w.schedule(*change, emit)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher error: %v", err)
		}
	}
}

// schedule emits change after the debounce period, replacing any pending
// change for the same path.
func (w *Watcher) schedule(change Change, emit chan<- Change) {
	if w.debounce == 0 {
		select {
		case emit <- change:
		default:
			logger.Warn("watch queue full, dropping %s", change.Path)
		}
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[change.Path]; ok {
		p.timer.Stop()
		// A file created and then written is still reported as created.
		if p.change.Type == ChangeCreated && change.Type == ChangeUpdated {
			change.Type = ChangeCreated
		}
	}
	p := &pendingChange{change: change}
	w.pending[change.Path] = p
	p.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.pending[change.Path] == p {
			delete(w.pending, change.Path)
		}
		w.mu.Unlock()

		select {
		case emit <- change:
		default:
			logger.Warn("watch queue full, dropping %s", change.Path)
		}
	})
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// handleFsEvent maps an fsnotify event to a change. Hidden paths,
// directories and chmod-only events yield nil.
func (w *Watcher) handleFsEvent(event fsnotify.Event) *Change {
	if w.hidden(event.Name) {
		return nil
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return &Change{Path: event.Name, Type: ChangeDeleted}

	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		t := ChangeUpdated
		if event.Has(fsnotify.Create) {
			t = ChangeCreated
		}
		return &Change{Path: event.Name, Type: t}
	}

	return nil
}

// addTree watches dir and every non-hidden directory below it.
func addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// hidden reports whether path is hidden relative to the watch root.
func (w *Watcher) hidden(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return isHidden(path)
	}
	return isHidden(rel)
}

// isHidden reports whether any element of path starts with a dot.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > 1 && strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}
