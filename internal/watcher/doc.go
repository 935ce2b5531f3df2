// Package watcher adapts fsnotify into a single event source for wexec.
//
// Directories are watched recursively, including directories created after
// startup. Individual files are watched through their parent directory and
// only their own events are delivered. The Events channel is closed when the
// fsnotify backend stops, which callers should treat as fatal.
package watcher
