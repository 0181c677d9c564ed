package app

import (
	"io"
	"log/slog"
	"strings"
)

// parseLevel maps a log-level name to its slog level. Unknown names fall
// back to info.
func parseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// newLogger builds the build's logger without touching the global one. Every
// record carries the tool name; debug output also records the call site.
func newLogger(levelName, format string, outW io.Writer) *slog.Logger {
	level := parseLevel(levelName)
	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(outW, opts)
	} else {
		handler = slog.NewTextHandler(outW, opts)
	}
	return slog.New(handler).With("tool", "dataprep")
}
