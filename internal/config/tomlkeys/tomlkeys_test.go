package tomlkeys

import "testing"

func TestTableAndDottedKeysAreEquivalent(t *testing.T) {
	cases := []string{
		`[supervisor]
grace-period = 4096
`,
		`supervisor.grace-period = 4096
`,
	}
	for _, input := range cases {
		store, err := Decode([]byte(input))
		if err != nil {
			t.Fatalf("decode toml: %v", err)
		}
		value, ok := store.GetInt("supervisor.grace-period")
		if !ok {
			t.Fatalf("expected supervisor.grace-period value")
		}
		if value != 4096 {
			t.Fatalf("expected 4096, got %d", value)
		}
	}
}

func TestNormalizationHandlesUnderscoresAndCase(t *testing.T) {
	input := `[Supervisor]
QUEUE_BACKOFF = 123
`
	store, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	value, ok := store.GetInt("supervisor.queue-backoff")
	if !ok {
		t.Fatalf("expected normalized key to resolve")
	}
	if value != 123 {
		t.Fatalf("expected 123, got %d", value)
	}
}

func TestTypePreservation(t *testing.T) {
	input := `flag = true
count = 7
name = "hello"
`
	store, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	flag, ok := store.GetBool("flag")
	if !ok || !flag {
		t.Fatalf("expected flag true")
	}
	count, ok := store.GetInt("count")
	if !ok || count != 7 {
		t.Fatalf("expected count 7, got %d", count)
	}
	name, ok := store.GetString("name")
	if !ok || name != "hello" {
		t.Fatalf("expected name hello, got %q", name)
	}
	if _, ok := store.GetString("count"); ok {
		t.Fatalf("expected count to not be a string")
	}
}

func TestGetStringSlice(t *testing.T) {
	input := `exts = ["go", "mod"]
ignore = "*.log"
mixed = ["a", 1]
`
	store, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	exts, ok := store.GetStringSlice("exts")
	if !ok || len(exts) != 2 || exts[0] != "go" || exts[1] != "mod" {
		t.Fatalf("expected [go mod], got %v", exts)
	}
	ignore, ok := store.GetStringSlice("ignore")
	if !ok || len(ignore) != 1 || ignore[0] != "*.log" {
		t.Fatalf("expected single string to become a slice, got %v", ignore)
	}
	if _, ok := store.GetStringSlice("mixed"); ok {
		t.Fatalf("expected mixed array to be rejected")
	}
	if !store.Has("EXTS") || store.Has("missing") {
		t.Fatalf("expected Has to follow key normalization")
	}
}

func TestMergeLaysLaterValuesOnTop(t *testing.T) {
	defaults, err := Decode([]byte("debounce = 100\nclear = false\n[supervisor]\ngrace-period = 3000\n"))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	overrides := FromRaw(map[string]any{"Debounce": 250, "supervisor.grace_period": int64(10), "": true})

	merged := defaults.Merge(overrides)

	cases := []struct {
		key      string
		expected int64
	}{
		{key: "debounce", expected: 250},
		{key: "supervisor.grace-period", expected: 10},
	}
	for _, tc := range cases {
		value, ok := merged.GetInt(tc.key)
		if !ok || value != tc.expected {
			t.Fatalf("expected %s=%d, got %d (%v)", tc.key, tc.expected, value, ok)
		}
	}
	if clear, ok := merged.GetBool("clear"); !ok || clear {
		t.Fatalf("expected clear to keep its default")
	}
	if debounce, _ := defaults.GetInt("debounce"); debounce != 100 {
		t.Fatalf("expected merge to leave the base store untouched, got %d", debounce)
	}
	if len(merged.Flat()) != 3 {
		t.Fatalf("expected 3 keys, got %v", merged.Flat())
	}
}
