package filter

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"wexec/internal/fsutil"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Gitignore is a set of gitignore patterns rooted at a directory. Matching is
// last-pattern-wins, and an ignored directory ignores everything beneath it.
type Gitignore struct {
	root    string
	count   int
	matcher gitignore.Matcher
}

func NewGitignore(root string, patterns []gitignore.Pattern) *Gitignore {
	return &Gitignore{
		root:    filepath.Clean(root),
		count:   len(patterns),
		matcher: gitignore.NewMatcher(patterns),
	}
}

// ParseGitignore builds a Gitignore from the lines of a single ignore file.
func ParseGitignore(root string, lines []string) *Gitignore {
	return NewGitignore(root, parseLines(lines, nil))
}

func (g *Gitignore) Root() string {
	if g == nil {
		return ""
	}
	return g.root
}

// Len returns the number of loaded patterns.
func (g *Gitignore) Len() int {
	if g == nil {
		return 0
	}
	return g.count
}

// Ignored reports whether path, or any of its parent directories below the
// root, is excluded. Paths outside the root are never ignored.
func (g *Gitignore) Ignored(pathValue string, isDir func(string) bool) bool {
	if g == nil || g.count == 0 {
		return false
	}
	rel, ok := fsutil.RelSlash(g.root, pathValue)
	if !ok {
		return false
	}
	parts := fsutil.Components(rel)
	if len(parts) == 0 {
		return false
	}
	for i := 1; i < len(parts); i++ {
		if g.matcher.Match(parts[:i], true) {
			return true
		}
	}
	dir := false
	if isDir != nil {
		dir = isDir(pathValue)
	}
	return g.matcher.Match(parts, dir)
}

// FindProjectRoot walks up from start looking for the project the working
// directory belongs to. The nearest directory containing .git wins; without
// one, the nearest directory containing a .gitignore is used.
func FindProjectRoot(start string) (string, bool) {
	dir := filepath.Clean(start)
	nearestIgnore := ""
	for {
		if exists(filepath.Join(dir, ".git")) {
			return dir, true
		}
		if nearestIgnore == "" && isRegular(filepath.Join(dir, ".gitignore")) {
			nearestIgnore = dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if nearestIgnore != "" {
		return nearestIgnore, true
	}
	return "", false
}

// LoadProjectIgnore reads every .gitignore under the project root, plus
// .git/info/exclude. It returns nil when no project is found.
func LoadProjectIgnore(workDir string) (*Gitignore, error) {
	root, ok := FindProjectRoot(workDir)
	if !ok {
		return nil, nil
	}
	patterns, err := gitignore.ReadPatterns(osfs.New(root), nil)
	if err != nil {
		return nil, err
	}
	return NewGitignore(root, patterns), nil
}

// LoadGlobalIgnore reads the user's global excludes file and roots it at root.
// core.excludesfile from ~/.gitconfig is preferred; git's default location
// under $XDG_CONFIG_HOME is the fallback.
func LoadGlobalIgnore(root string) (*Gitignore, error) {
	patterns, err := gitignore.LoadGlobalPatterns(osfs.New("/"))
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		path := defaultGlobalExcludesPath()
		if path == "" {
			return nil, nil
		}
		lines, err := readLines(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}
		patterns = parseLines(lines, nil)
	}
	return NewGitignore(root, patterns), nil
}

func defaultGlobalExcludesPath() string {
	if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
		return filepath.Join(configHome, "git", "ignore")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "git", "ignore")
}

func parseLines(lines []string, domain []string) []gitignore.Pattern {
	patterns := make([]gitignore.Pattern, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, domain))
	}
	return patterns
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	lines := []string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
