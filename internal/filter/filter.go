package filter

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"wexec/internal/fsutil"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnores covers editor backups, macOS metadata, and the .git tree.
var DefaultIgnores = []string{"*~", ".DS_Store", ".git"}

// Rule names the rule that decided an Explain call.
type Rule string

const (
	RuleOutside       Rule = "outside-working-directory"
	RuleWatchedFile   Rule = "watched-file"
	RuleIgnoreGlob    Rule = "ignore-glob"
	RuleExtension     Rule = "extension"
	RuleProjectIgnore Rule = "project-gitignore"
	RuleGlobalIgnore  Rule = "global-gitignore"
	RuleDefault       Rule = "default"
)

type Options struct {
	WorkingDirectory string
	WatchedFiles     []string
	Extensions       []string
	IgnoreGlobs      []string
	NoDefaultIgnore  bool
	ProjectIgnore    *Gitignore
	GlobalIgnore     *Gitignore
	// IsDir reports whether a path is a directory. Defaults to os.Stat.
	IsDir func(string) bool
}

type ignoreGlob struct {
	source  string
	pattern string
}

type Ruleset struct {
	workDir    string
	watched    map[string]struct{}
	extensions []string
	globs      []ignoreGlob
	project    *Gitignore
	global     *Gitignore
	isDir      func(string) bool
}

// InvalidGlobError reports an ignore pattern doublestar cannot parse.
type InvalidGlobError struct {
	Pattern string
}

func (e *InvalidGlobError) Error() string {
	return fmt.Sprintf("invalid ignore glob %q", e.Pattern)
}

func New(options Options) (*Ruleset, error) {
	if strings.TrimSpace(options.WorkingDirectory) == "" {
		return nil, fmt.Errorf("working directory is required")
	}
	workDir := filepath.Clean(options.WorkingDirectory)
	if !filepath.IsAbs(workDir) {
		return nil, fmt.Errorf("working directory must be absolute: %q", workDir)
	}

	ruleset := &Ruleset{
		workDir: workDir,
		watched: make(map[string]struct{}, len(options.WatchedFiles)),
		project: options.ProjectIgnore,
		global:  options.GlobalIgnore,
		isDir:   options.IsDir,
	}
	if ruleset.isDir == nil {
		ruleset.isDir = statIsDir
	}
	for _, file := range options.WatchedFiles {
		ruleset.watched[filepath.Clean(file)] = struct{}{}
	}
	for _, extension := range options.Extensions {
		if normalized := NormalizeExtension(extension); normalized != "" {
			ruleset.extensions = append(ruleset.extensions, normalized)
		}
	}

	patterns := append([]string(nil), options.IgnoreGlobs...)
	if !options.NoDefaultIgnore {
		patterns = append(patterns, DefaultIgnores...)
	}
	for _, source := range patterns {
		compiled, err := compileGlob(workDir, source)
		if err != nil {
			return nil, err
		}
		ruleset.globs = append(ruleset.globs, ignoreGlob{source: source, pattern: compiled})
	}
	return ruleset, nil
}

// Admit reports whether a change at path should schedule a restart.
func (r *Ruleset) Admit(pathValue string) bool {
	admitted, _ := r.Explain(pathValue)
	return admitted
}

// Explain is Admit plus the rule that made the decision.
func (r *Ruleset) Explain(pathValue string) (bool, Rule) {
	abs := pathValue
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.workDir, abs)
	}
	abs = filepath.Clean(abs)

	rel, ok := fsutil.RelSlash(r.workDir, abs)
	if !ok {
		return false, RuleOutside
	}
	if _, ok := r.watched[abs]; ok {
		return true, RuleWatchedFile
	}
	if r.matchesIgnoreGlob(rel) {
		return false, RuleIgnoreGlob
	}
	if len(r.extensions) > 0 {
		return matchesExtension(path.Base(rel), r.extensions), RuleExtension
	}
	if r.project.Ignored(abs, r.isDir) {
		return false, RuleProjectIgnore
	}
	if r.global.Ignored(abs, r.isDir) {
		return false, RuleGlobalIgnore
	}
	return true, RuleDefault
}

// WorkingDirectory returns the base path all rules are relative to.
func (r *Ruleset) WorkingDirectory() string {
	return r.workDir
}

// IgnorePatterns returns the compiled ignore globs in evaluation order.
func (r *Ruleset) IgnorePatterns() []string {
	patterns := make([]string, 0, len(r.globs))
	for _, glob := range r.globs {
		patterns = append(patterns, glob.pattern)
	}
	return patterns
}

// matchesIgnoreGlob tests the path and every ancestor directory, so a glob
// naming a directory covers its whole subtree.
func (r *Ruleset) matchesIgnoreGlob(rel string) bool {
	parts := fsutil.Components(rel)
	for i := range parts {
		candidate := strings.Join(parts[:i+1], "/")
		for _, glob := range r.globs {
			if matched, err := doublestar.Match(glob.pattern, candidate); err == nil && matched {
				return true
			}
		}
	}
	return false
}

// compileGlob turns a user glob into a doublestar pattern relative to the
// working directory. Patterns without a separator match at any depth; a
// leading slash anchors the pattern at the working directory.
func compileGlob(workDir, source string) (string, error) {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		return "", &InvalidGlobError{Pattern: source}
	}
	if filepath.IsAbs(trimmed) {
		if rel, ok := fsutil.RelSlash(workDir, trimmed); ok && rel != "." {
			trimmed = "/" + rel
		}
	}

	pattern := filepath.ToSlash(trimmed)
	switch {
	case strings.HasPrefix(pattern, "/"):
		pattern = strings.TrimLeft(pattern, "/")
	case !strings.Contains(strings.TrimSuffix(pattern, "/"), "/"):
		pattern = "**/" + pattern
	}
	pattern = strings.TrimSuffix(pattern, "/")
	if pattern == "" || !doublestar.ValidatePattern(pattern) {
		return "", &InvalidGlobError{Pattern: source}
	}
	return pattern, nil
}

// NormalizeExtension strips whitespace and a leading dot, so ".rs" and "rs"
// configure the same filter.
func NormalizeExtension(extension string) string {
	return strings.TrimPrefix(strings.TrimSpace(extension), ".")
}

// Extension returns the text after the last dot of name. A dotfile with no
// other dot, such as ".env", uses the remainder after the leading dot.
func Extension(name string) (string, bool) {
	index := strings.LastIndex(name, ".")
	if index < 0 || index == len(name)-1 {
		return "", false
	}
	return name[index+1:], true
}

func matchesExtension(name string, extensions []string) bool {
	extension, ok := Extension(name)
	for _, candidate := range extensions {
		if strings.Contains(candidate, ".") {
			if strings.HasSuffix(name, "."+candidate) {
				return true
			}
			continue
		}
		if ok && extension == candidate {
			return true
		}
	}
	return false
}

func statIsDir(pathValue string) bool {
	info, err := os.Stat(pathValue)
	if err != nil {
		return false
	}
	return info.IsDir()
}
