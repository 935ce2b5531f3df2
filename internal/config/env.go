package config

import (
	"errors"
	"strconv"
	"strings"
)

const envPrefix = "WEXEC_"

type envKind int

const (
	envString envKind = iota
	envInt
	envBool
)

var envKeys = []struct {
	name string
	key  string
	kind envKind
}{
	{name: "WEXEC_DEBOUNCE", key: "debounce", kind: envInt},
	{name: "WEXEC_ON_BUSY_UPDATE", key: "on-busy-update", kind: envString},
	{name: "WEXEC_SIGNAL", key: "signal", kind: envString},
	{name: "WEXEC_GRACE_PERIOD", key: "supervisor.grace-period", kind: envInt},
	{name: "WEXEC_LOG_LEVEL", key: "log-level", kind: envString},
	{name: "WEXEC_CLEAR", key: "clear", kind: envBool},
}

// EnvOverrides reads the WEXEC_* variables through lookup and converts them to
// typed override values. Empty variables are ignored.
func EnvOverrides(lookup func(string) (string, bool)) (map[string]any, error) {
	overrides := map[string]any{}
	if lookup == nil {
		return overrides, nil
	}
	for _, entry := range envKeys {
		raw, ok := lookup(entry.name)
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		switch entry.kind {
		case envInt:
			value, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, &ValidationError{Key: entry.name, Value: raw, Err: errors.New("expected an integer")}
			}
			overrides[entry.key] = value
		case envBool:
			value, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, &ValidationError{Key: entry.name, Value: raw, Err: errors.New("expected a boolean")}
			}
			overrides[entry.key] = value
		default:
			overrides[entry.key] = raw
		}
	}
	return overrides, nil
}

// MergeOverrides layers maps left to right; later maps win.
func MergeOverrides(layers ...map[string]any) map[string]any {
	merged := map[string]any{}
	for _, layer := range layers {
		for key, value := range layer {
			merged[key] = value
		}
	}
	return merged
}
