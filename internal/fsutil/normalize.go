package fsutil

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Canonical returns an absolute, cleaned path with symlinks resolved. When the
// path (or a suffix of it) does not exist yet, the longest existing prefix is
// resolved and the remainder is appended unchanged.
func Canonical(pathValue string) (string, error) {
	if strings.TrimSpace(pathValue) == "" {
		return "", fmt.Errorf("empty path")
	}
	abs, err := filepath.Abs(pathValue)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}

	missing := []string{}
	current := abs
	for {
		parent := filepath.Dir(current)
		missing = append([]string{filepath.Base(current)}, missing...)
		if parent == current {
			return abs, nil
		}
		if resolvedParent, err := filepath.EvalSymlinks(parent); err == nil {
			return filepath.Join(append([]string{resolvedParent}, missing...)...), nil
		}
		current = parent
	}
}

// Within reports whether target is base itself or lies beneath it. Both paths
// are expected to be absolute.
func Within(base, target string) bool {
	base = filepath.Clean(base)
	target = filepath.Clean(target)
	if base == target {
		return true
	}
	prefix := base
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	return strings.HasPrefix(target, prefix)
}

// RelSlash returns target relative to base using forward slashes. It returns
// false when target is outside base.
func RelSlash(base, target string) (string, bool) {
	if !Within(base, target) {
		return "", false
	}
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(target))
	if err != nil {
		return "", false
	}
	return CleanSlash(rel), true
}

// CleanSlash normalizes a relative path to forward slashes without a leading
// slash. The empty path and the base itself both become ".".
func CleanSlash(pathValue string) string {
	slashPath := filepath.ToSlash(pathValue)
	slashPath = strings.TrimPrefix(slashPath, "/")
	if slashPath == "" {
		return "."
	}
	return path.Clean(slashPath)
}

// Components splits a slash-separated relative path into its segments.
func Components(rel string) []string {
	rel = CleanSlash(rel)
	if rel == "." {
		return nil
	}
	return strings.Split(rel, "/")
}
