package logging

import "strings"

// Level orders log severities; higher is more severe.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

var levelNames = [...]string{
	LevelDebug:   "debug",
	LevelInfo:    "info",
	LevelWarning: "warning",
	LevelError:   "error",
}

func (level Level) String() string {
	if level < LevelDebug || level > LevelError {
		return "info"
	}
	return levelNames[level]
}

func (level Level) tag() string {
	switch level {
	case LevelDebug:
		return "DBG"
	case LevelWarning:
		return "WRN"
	case LevelError:
		return "ERR"
	default:
		return "INF"
	}
}

// ParseLevel accepts debug, info, warning (or warn) and error in any case.
func ParseLevel(value string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warning", "warn":
		return LevelWarning, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}
