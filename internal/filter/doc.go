// Package filter decides whether a changed path should trigger a restart.
//
// A Ruleset is built once per run and is read-only afterwards. Rules are
// evaluated in a fixed order and the first decisive rule wins:
//
//  1. paths outside the working directory are rejected
//  2. explicitly watched files are admitted
//  3. ignore globs reject
//  4. a non-empty extension allow-list admits or rejects, skipping the rest
//  5. the project gitignore rejects
//  6. the global gitignore rejects
//
// Anything left over is admitted.
package filter
