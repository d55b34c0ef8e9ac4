package config

import (
	"log/slog"
	"os"
	"strings"
)

// Level is a coarse log-filter level, parsed from TSUKU_LOG. Case-insensitive;
// unrecognized values fall back to LevelInfo.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func parseLogLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// slogLevel maps Level onto the slog.Level the standard library's handlers
// filter on.
func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ConfigureLogger installs level as the process-wide slog filter, writing
// text-formatted records to stderr. Call once at startup, after Load
// resolves TSUKU_LOG; every slog.Info/Debug/Warn/Error call anywhere in the
// process is filtered against it from that point on.
func ConfigureLogger(level Level) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.slogLevel()})
	slog.SetDefault(slog.New(handler))
}
