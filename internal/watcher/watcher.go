package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"wexec/internal/fsutil"
	"wexec/internal/logging"

	"github.com/fsnotify/fsnotify"
)

const defaultBuffer = 64

var errClosed = errors.New("watcher closed")

// New creates a Watcher and starts forwarding fsnotify events.
func New(options Options) (*Watcher, error) {
	backend, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	ops := options.Ops
	if ops == 0 {
		ops = AllOps
	}
	buffer := options.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	instance := &Watcher{
		watcher: backend,
		roots:   make(map[string]struct{}),
		dirs:    make(map[string]struct{}),
		files:   make(map[string]struct{}),
		live:    make(map[string]struct{}),
		events:  make(chan Event, buffer),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
		logger:  logger.With(map[string]string{"component": "watcher"}),
		ops:     ops,
	}
	go instance.forward(backend)
	return instance, nil
}

// Add registers path. Directories are watched recursively; files are watched
// individually and recorded in WatchedFiles. A missing path is an error.
func (watcher *Watcher) Add(path string) (Target, error) {
	target, err := Resolve(path)
	if err != nil {
		return Target{}, err
	}

	if target.Dir {
		watcher.mutex.Lock()
		watcher.roots[target.Path] = struct{}{}
		watcher.mutex.Unlock()
		if err := watcher.addTree(target.Path); err != nil {
			return Target{}, fmt.Errorf("watch %s: %w", path, err)
		}
		return target, nil
	}

	if err := watcher.addFile(target.Path); err != nil {
		return Target{}, fmt.Errorf("watch %s: %w", path, err)
	}
	return target, nil
}

// Resolve canonicalises path and reports whether it is a directory, without
// registering anything. A missing path is an error.
func Resolve(path string) (Target, error) {
	canonical, err := fsutil.Canonical(path)
	if err != nil {
		return Target{}, fmt.Errorf("watch %s: %w", path, err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return Target{}, fmt.Errorf("watch %s: %w", path, err)
	}
	return Target{Path: canonical, Dir: info.IsDir()}, nil
}

func (watcher *Watcher) addFile(path string) error {
	parent := filepath.Dir(path)

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return errClosed
	}
	if _, ok := watcher.files[path]; ok {
		watcher.mutex.Unlock()
		return nil
	}
	_, live := watcher.live[parent]
	watcher.files[path] = struct{}{}
	watcher.live[parent] = struct{}{}
	watcher.mutex.Unlock()

	if live {
		return nil
	}
	// Editors often replace files by renaming over them, which drops a watch
	// on the file itself. Watching the parent survives that.
	if err := watcher.watcher.Add(parent); err != nil {
		watcher.mutex.Lock()
		delete(watcher.files, path)
		delete(watcher.live, parent)
		watcher.mutex.Unlock()
		return err
	}
	watcher.logger.Debug("watch added", map[string]string{"path": path})
	return nil
}

// Events delivers filesystem changes. It is closed when the backend stops.
func (watcher *Watcher) Events() <-chan Event {
	return watcher.events
}

// Errors delivers non-fatal backend errors such as event queue overflow.
func (watcher *Watcher) Errors() <-chan error {
	return watcher.errors
}

// WatchedFiles returns the canonical paths registered as individual files.
func (watcher *Watcher) WatchedFiles() []string {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	return sortedKeys(watcher.files)
}

// Roots returns the canonical directories registered recursively.
func (watcher *Watcher) Roots() []string {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	return sortedKeys(watcher.roots)
}

// Close shuts down the backend. It is safe to call more than once.
func (watcher *Watcher) Close() error {
	if watcher == nil {
		return nil
	}
	var err error
	watcher.closeOnce.Do(func() {
		watcher.mutex.Lock()
		watcher.closed = true
		watcher.mutex.Unlock()
		close(watcher.done)
		err = watcher.watcher.Close()
	})
	return err
}

func (watcher *Watcher) forward(source *fsnotify.Watcher) {
	defer close(watcher.events)
	defer close(watcher.errors)

	for {
		select {
		case event, ok := <-source.Events:
			if !ok {
				return
			}
			if !watcher.handleEvent(event) {
				continue
			}
			entry := Event{Path: event.Name, Op: event.Op, Timestamp: time.Now()}
			select {
			case watcher.events <- entry:
			case <-watcher.done:
				return
			}
		case err, ok := <-source.Errors:
			if !ok {
				return
			}
			watcher.logger.Warn("watcher error", map[string]string{"error": err.Error()})
			select {
			case watcher.errors <- err:
			case <-watcher.done:
				return
			}
		case <-watcher.done:
			return
		}
	}
}

// handleEvent keeps the directory set current and reports whether the event
// should be delivered.
func (watcher *Watcher) handleEvent(event fsnotify.Event) bool {
	path := filepath.Clean(event.Name)
	if !watcher.covered(path) {
		return false
	}

	if event.Has(fsnotify.Create) && watcher.underRoot(path) {
		if info, err := os.Lstat(path); err == nil && info.IsDir() {
			if err := watcher.addTree(path); err != nil {
				watcher.logger.Warn("watch add failed", map[string]string{
					"path":  path,
					"error": err.Error(),
				})
			}
		}
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		watcher.forgetTree(path)
	}
	return event.Op&watcher.ops != 0
}

// covered reports whether path lies under a recursive root or is a watched
// file. Siblings of watched files share the parent watch but are dropped.
func (watcher *Watcher) covered(path string) bool {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	if _, ok := watcher.files[path]; ok {
		return true
	}
	return watcher.underRootLocked(path)
}

func (watcher *Watcher) underRoot(path string) bool {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	return watcher.underRootLocked(path)
}

func (watcher *Watcher) underRootLocked(path string) bool {
	for root := range watcher.roots {
		if fsutil.Within(root, path) {
			return true
		}
	}
	return false
}

func sortedKeys(values map[string]struct{}) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
