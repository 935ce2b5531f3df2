package watcher

import (
	"sync"
	"time"

	"wexec/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// AllOps is every fsnotify operation. Chmod is included: touching a file is
// a common way to force a rerun.
const AllOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename | fsnotify.Chmod

// Event represents a single filesystem change.
type Event struct {
	Path      string
	Op        fsnotify.Op
	Timestamp time.Time
}

// Target describes a registered watch path after canonicalisation.
type Target struct {
	Path string
	Dir  bool
}

// Options controls watcher behavior.
type Options struct {
	Logger *logging.Logger
	// Ops selects the operations delivered. Zero means AllOps.
	Ops fsnotify.Op
	// Buffer is the capacity of the Events channel.
	Buffer int
}

// Watcher is the concrete fsnotify-backed implementation.
type Watcher struct {
	watcher *fsnotify.Watcher
	mutex   sync.Mutex
	roots   map[string]struct{}
	dirs    map[string]struct{}
	files   map[string]struct{}
	// live holds the directories with a kernel watch currently registered.
	// A directory can be both a recursive dir and the parent of a watched
	// file; it is added to fsnotify once.
	live      map[string]struct{}
	events    chan Event
	errors    chan error
	done      chan struct{}
	closed    bool
	closeOnce sync.Once
	logger    *logging.Logger
	ops       fsnotify.Op
}
