// Package logging writes wexec's own diagnostics to stderr, one line per
// entry, so they stay apart from the command's output.
package logging

import (
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Logger is safe for concurrent use. A nil *Logger drops everything.
type Logger struct {
	sink   *sink
	fields map[string]string
}

type sink struct {
	mutex    sync.Mutex
	writer   io.Writer
	minLevel Level
	colorize bool
	now      func() time.Time
}

var levelColors = map[Level]*color.Color{
	LevelDebug:   color.New(color.FgHiBlack),
	LevelInfo:    color.New(color.FgGreen),
	LevelWarning: color.New(color.FgYellow, color.Bold),
	LevelError:   color.New(color.FgRed, color.Bold),
}

// NewLogger writes to stderr, colouring level tags when stderr is a terminal.
func NewLogger(minLevel Level) *Logger {
	return NewLoggerWithOutput(minLevel, os.Stderr)
}

func NewLoggerWithOutput(minLevel Level, output io.Writer) *Logger {
	if output == nil {
		output = io.Discard
	}
	if minLevel < LevelDebug || minLevel > LevelError {
		minLevel = LevelInfo
	}
	return &Logger{sink: &sink{
		writer:   output,
		minLevel: minLevel,
		colorize: isTerminal(output),
		now:      time.Now,
	}}
}

func Discard() *Logger {
	return NewLoggerWithOutput(LevelError, io.Discard)
}

// With returns a logger that adds fields to every entry. Entry fields win on
// key collisions.
func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{sink: l.sink, fields: mergeFields(l.fields, fields)}
}

func (l *Logger) Enabled(level Level) bool {
	return l != nil && level >= l.sink.minLevel
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.write(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.write(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.write(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.write(LevelError, message, fields)
}

func (l *Logger) write(level Level, message string, fields map[string]string) {
	if !l.Enabled(level) {
		return
	}
	s := l.sink
	line := formatLine(s.now(), level, message, mergeFields(l.fields, fields), s.colorize)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, _ = io.WriteString(s.writer, line)
}

func formatLine(at time.Time, level Level, message string, fields map[string]string, colorize bool) string {
	tag := level.tag()
	if colorize {
		tag = levelColors[level].Sprint(tag)
	}

	var builder strings.Builder
	builder.WriteString("[wexec] ")
	builder.WriteString(at.Format("15:04:05"))
	builder.WriteByte(' ')
	builder.WriteString(tag)
	builder.WriteByte(' ')
	builder.WriteString(message)

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		builder.WriteByte(' ')
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(formatValue(fields[key]))
	}
	builder.WriteByte('\n')
	return builder.String()
}

// formatValue quotes values that would otherwise be ambiguous on one line.
func formatValue(value string) string {
	if value == "" || strings.ContainsAny(value, " \t\r\n\"=") {
		return strconv.Quote(value)
	}
	return value
}

func mergeFields(base, extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return base
	}
	merged := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	return merged
}

func isTerminal(output io.Writer) bool {
	file, ok := output.(*os.File)
	return ok && isatty.IsTerminal(file.Fd())
}
