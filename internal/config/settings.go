package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"wexec/internal/config/tomlkeys"
	"wexec/internal/logging"
	"wexec/internal/supervisor"
)

// ErrNoCommand is returned when neither the command line nor the config file
// names a command to run.
var ErrNoCommand = errors.New("no command given")

// ValidationError reports a configuration value that cannot be used.
type ValidationError struct {
	Key   string
	Value any
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("invalid %s %v: %v", e.Key, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type Settings struct {
	Paths           []string
	Command         []string
	Debounce        time.Duration
	Clear           bool
	LogLevel        logging.Level
	Ignore          []string
	Exts            []string
	NoDefaultIgnore bool
	NoGlobalIgnore  bool
	NoProjectIgnore bool
	OnBusyUpdate    supervisor.Policy
	Signal          syscall.Signal
	Supervisor      SupervisorSettings
}

type SupervisorSettings struct {
	GracePeriod  time.Duration
	PollInterval time.Duration
	QueueBackoff time.Duration
}

// LoadSettings merges the embedded defaults, the config file at path (if it
// exists) and overrides, in that order, then validates the result. Override
// keys use the same names as the config file.
func LoadSettings(path string, defaultsPayload []byte, overrides map[string]any) (Settings, error) {
	store, err := tomlkeys.Decode(defaultsPayload)
	if err != nil {
		return Settings{}, fmt.Errorf("decode defaults: %w", err)
	}

	if strings.TrimSpace(path) != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Settings{}, err
			}
		} else {
			file, err := tomlkeys.Decode(payload)
			if err != nil {
				return Settings{}, fmt.Errorf("decode %s: %w", path, err)
			}
			store = store.Merge(file)
		}
	}

	return decodeSettings(store.Merge(tomlkeys.FromRaw(overrides)))
}

type settingsReader struct {
	store tomlkeys.Store
	err   error
}

func (r *settingsReader) fail(key string, value any, err error) {
	if r.err == nil {
		r.err = &ValidationError{Key: key, Value: value, Err: err}
	}
}

func (r *settingsReader) raw(key string) any {
	value, _ := r.store.Lookup(key)
	return value
}

func (r *settingsReader) boolean(key string) bool {
	value, ok := r.store.GetBool(key)
	if !ok {
		r.fail(key, r.raw(key), errors.New("expected a boolean"))
	}
	return value
}

func (r *settingsReader) text(key string) string {
	value, ok := r.store.GetString(key)
	if !ok {
		r.fail(key, r.raw(key), errors.New("expected a string"))
	}
	return strings.TrimSpace(value)
}

func (r *settingsReader) list(key string) []string {
	if !r.store.Has(key) {
		return nil
	}
	value, ok := r.store.GetStringSlice(key)
	if !ok {
		r.fail(key, r.raw(key), errors.New("expected a list of strings"))
	}
	return value
}

// millis reads a duration given in milliseconds. Zero is allowed only when
// allowZero is set.
func (r *settingsReader) millis(key string, allowZero bool) time.Duration {
	value, ok := r.store.GetInt(key)
	if !ok {
		r.fail(key, r.raw(key), errors.New("expected milliseconds as an integer"))
		return 0
	}
	if value < 0 || (value == 0 && !allowZero) {
		r.fail(key, value, errors.New("must be positive"))
		return 0
	}
	return time.Duration(value) * time.Millisecond
}

func decodeSettings(store tomlkeys.Store) (Settings, error) {
	reader := &settingsReader{store: store}
	settings := Settings{
		Paths:           reader.list("paths"),
		Command:         reader.list("command"),
		Debounce:        reader.millis("debounce", true),
		Clear:           reader.boolean("clear"),
		Ignore:          reader.list("ignore"),
		Exts:            splitExtensions(reader.list("exts")),
		NoDefaultIgnore: reader.boolean("no-default-ignore"),
		NoGlobalIgnore:  reader.boolean("no-global-ignore"),
		NoProjectIgnore: reader.boolean("no-project-ignore"),
		Supervisor: SupervisorSettings{
			GracePeriod:  reader.millis("supervisor.grace-period", false),
			PollInterval: reader.millis("supervisor.poll-interval", false),
			QueueBackoff: reader.millis("supervisor.queue-backoff", false),
		},
	}

	verbose := reader.boolean("verbose")
	levelText := reader.text("log-level")
	policyText := reader.text("on-busy-update")
	signalText := reader.text("signal")
	if reader.err != nil {
		return Settings{}, reader.err
	}

	level, ok := logging.ParseLevel(levelText)
	if !ok {
		return Settings{}, &ValidationError{Key: "log-level", Value: levelText, Err: errors.New("expected debug, info, warning, or error")}
	}
	if verbose {
		level = logging.LevelDebug
	}
	settings.LogLevel = level

	policy, err := supervisor.ParsePolicy(policyText)
	if err != nil {
		return Settings{}, &ValidationError{Key: "on-busy-update", Err: err}
	}
	settings.OnBusyUpdate = policy

	signal, err := supervisor.ParseSignal(signalText)
	if err != nil {
		return Settings{}, &ValidationError{Key: "signal", Err: err}
	}
	settings.Signal = signal

	if len(settings.Paths) == 0 {
		settings.Paths = []string{"."}
	}
	return settings, nil
}

// Validate checks the settings that can only be judged once every layer has
// been applied.
func (s Settings) Validate() error {
	if len(s.Command) == 0 || strings.TrimSpace(s.Command[0]) == "" {
		return ErrNoCommand
	}
	for _, path := range s.Paths {
		if strings.TrimSpace(path) == "" {
			return &ValidationError{Key: "paths", Err: errors.New("empty watch path")}
		}
	}
	return nil
}

// splitExtensions accepts both repeated values and comma-separated lists.
func splitExtensions(values []string) []string {
	if values == nil {
		return nil
	}
	extensions := []string{}
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				extensions = append(extensions, part)
			}
		}
	}
	return extensions
}
