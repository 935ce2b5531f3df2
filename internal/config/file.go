package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const DefaultFileName = "wexec.toml"

// ResolveFile picks the config file to load. An explicit path must exist;
// otherwise DefaultFileName in dir is used when present. An empty result
// means no file.
func ResolveFile(explicit, dir string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		info, err := os.Stat(explicit)
		if err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("config file %s is a directory", explicit)
		}
		return explicit, nil
	}
	candidate := filepath.Join(dir, DefaultFileName)
	if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
		return candidate, nil
	}
	return "", nil
}
