// Package watch reports changes to a set of local files and directories.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ariel-frischer/stagefile/internal/logging"
)

// DefaultDebounce is how long a burst of events is collected before it is
// reported as one change.
const DefaultDebounce = 300 * time.Millisecond

// Watcher reports changes below a set of paths. Files are watched through
// their parent directory, so files replaced by rename or created later are
// seen too. Directories are watched recursively.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      *logging.Logger

	// files are watched file paths; trees are watched directory roots.
	files map[string]bool
	trees []string

	mu     sync.Mutex
	closed bool
}

// New creates a watcher for paths. Paths that do not exist yet are watched
// as files once their parent directory exists.
func New(paths []string, debounce time.Duration, log *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		watcher:  fw,
		debounce: debounce,
		log:      logging.OrNop(log).WithComponent("watch"),
		files:    make(map[string]bool),
	}

	for _, p := range paths {
		if err := w.add(p); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) add(p string) error {
	abs, err := filepath.Abs(p)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", p, err)
	}

	info, err := os.Stat(abs)
	switch {
	case err == nil && info.IsDir():
		w.trees = append(w.trees, abs)
		return w.addTree(abs)
	case err == nil || errors.Is(err, fs.ErrNotExist):
		w.files[abs] = true
		return w.addDir(filepath.Dir(abs))
	default:
		return fmt.Errorf("watching %s: %w", p, err)
	}
}

func (w *Watcher) addDir(dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			w.log.Warn("parent directory missing, not watching", map[string]interface{}{logging.FieldPath: dir})
			return nil
		}
		return fmt.Errorf("watching directory %s: %w", dir, err)
	}
	return nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.addDir(p)
	})
}

// Relevant reports whether an event for name concerns a watched path.
func (w *Watcher) Relevant(name string) bool {
	if w.files[name] {
		return true
	}
	for _, root := range w.trees {
		if name == root || strings.HasPrefix(name, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Run blocks until ctx is done, calling onChange with the sorted set of
// changed paths after each debounced burst of events.
func (w *Watcher) Run(ctx context.Context, onChange func(paths []string)) error {
	pending := make(map[string]bool)
	var timer *time.Timer
	var fire <-chan time.Time

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.Relevant(event.Name) {
				continue
			}
			w.handleCreate(event)
			pending[event.Name] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)
			onChange(changed)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", map[string]interface{}{"error": err.Error()})
		}
	}
}

// handleCreate starts watching directories created inside a watched tree.
func (w *Watcher) handleCreate(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addTree(event.Name); err != nil {
		w.log.Warn("cannot watch new directory", map[string]interface{}{
			logging.FieldPath: event.Name,
			"error":           err.Error(),
		})
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.watcher.Close()
}
