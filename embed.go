package wexec

import "embed"

// EmbeddedConfigFS provides the default settings merged beneath wexec.toml,
// environment overrides, and command-line flags.
//
//go:embed config
var EmbeddedConfigFS embed.FS
