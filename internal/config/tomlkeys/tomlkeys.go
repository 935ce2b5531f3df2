// Package tomlkeys flattens TOML documents into dotted, normalised keys so
// defaults, config files and overrides can be layered key by key.
package tomlkeys

import (
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Store is an immutable set of flattened values. Keys are lower case, use
// dashes instead of underscores, and join nested tables with dots.
type Store struct {
	values map[string]any
}

func Decode(data []byte) (Store, error) {
	raw := map[string]any{}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return Store{}, err
	}
	return FromRaw(raw), nil
}

// FromRaw flattens a decoded document or an override map. When two spellings
// normalise to the same key the first in sorted order wins.
func FromRaw(raw map[string]any) Store {
	store := Store{values: map[string]any{}}
	store.absorb("", raw)
	return store
}

func (s Store) absorb(prefix string, table map[string]any) {
	keys := make([]string, 0, len(table))
	for key := range table {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := table[key].(map[string]any); ok {
			s.absorb(full, nested)
			continue
		}
		normalized := NormalizeKey(full)
		if normalized == "" {
			continue
		}
		if _, taken := s.values[normalized]; !taken {
			s.values[normalized] = table[key]
		}
	}
}

// Merge returns a store holding s overlaid with layer.
func (s Store) Merge(layer Store) Store {
	merged := Store{values: make(map[string]any, len(s.values)+len(layer.values))}
	for key, value := range s.values {
		merged.values[key] = value
	}
	for key, value := range layer.values {
		merged.values[key] = value
	}
	return merged
}

func (s Store) Flat() map[string]any {
	flat := make(map[string]any, len(s.values))
	for key, value := range s.values {
		flat[key] = value
	}
	return flat
}

func (s Store) Lookup(key string) (any, bool) {
	value, ok := s.values[NormalizeKey(key)]
	return value, ok
}

func (s Store) Has(key string) bool {
	_, ok := s.Lookup(key)
	return ok
}

func (s Store) GetBool(key string) (bool, bool) {
	value, _ := s.Lookup(key)
	typed, ok := value.(bool)
	return typed, ok
}

func (s Store) GetString(key string) (string, bool) {
	value, _ := s.Lookup(key)
	typed, ok := value.(string)
	return typed, ok
}

// GetInt accepts any Go integer type; TOML itself decodes to int64, flag
// overrides arrive as int.
func (s Store) GetInt(key string) (int64, bool) {
	value, _ := s.Lookup(key)
	switch typed := value.(type) {
	case int64:
		return typed, true
	case int:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case uint32:
		return int64(typed), true
	}
	return 0, false
}

// GetStringSlice accepts a TOML array of strings or a single string.
func (s Store) GetStringSlice(key string) ([]string, bool) {
	value, ok := s.Lookup(key)
	if !ok {
		return nil, false
	}
	switch typed := value.(type) {
	case []string:
		return append([]string(nil), typed...), true
	case string:
		return []string{typed}, true
	case []any:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			text, ok := item.(string)
			if !ok {
				return nil, false
			}
			items = append(items, text)
		}
		return items, true
	}
	return nil, false
}

func NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(key), "_", "-")
}
