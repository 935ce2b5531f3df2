package watcher

import (
	"io/fs"
	"path/filepath"

	"wexec/internal/fsutil"
)

// addTree watches root and every directory beneath it. Directories that vanish
// or cannot be read during the walk are skipped.
func (watcher *Watcher) addTree(root string) error {
	paths, err := collectRecursiveDirs(root)
	if err != nil {
		return err
	}
	for i, path := range paths {
		if err := watcher.addDir(path); err != nil {
			if i == 0 {
				return err
			}
			watcher.logger.Warn("watch add failed", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
		}
	}
	return nil
}

// collectRecursiveDirs returns root followed by its subdirectories. Symlinked
// directories are not followed.
func collectRecursiveDirs(root string) ([]string, error) {
	dirs := []string{}
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs, err
}

func (watcher *Watcher) addDir(path string) error {
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return errClosed
	}
	_, known := watcher.dirs[path]
	_, live := watcher.live[path]
	watcher.dirs[path] = struct{}{}
	watcher.live[path] = struct{}{}
	watcher.mutex.Unlock()

	if live {
		return nil
	}
	if err := watcher.watcher.Add(path); err != nil {
		watcher.mutex.Lock()
		if !known {
			delete(watcher.dirs, path)
		}
		delete(watcher.live, path)
		watcher.mutex.Unlock()
		return err
	}
	watcher.logger.Debug("watch added", map[string]string{"path": path})
	return nil
}

// forgetTree drops bookkeeping for a removed or renamed directory. The kernel
// watch is already gone, so fsnotify is not asked to remove it, and a
// directory recreated at the same path is watched afresh.
func (watcher *Watcher) forgetTree(path string) {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	for dir := range watcher.dirs {
		if fsutil.Within(path, dir) {
			delete(watcher.dirs, dir)
		}
	}
	for dir := range watcher.live {
		if fsutil.Within(path, dir) {
			delete(watcher.live, dir)
		}
	}
}
