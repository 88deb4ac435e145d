package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger. Format is "json" (the default,
// for log shippers) or "text" (local development). Level is one of
// debug, info, warn, error. Debug level also records source positions,
// which are too costly to emit on every production line but are what
// you want when tracing a single scan through the pipeline.
func NewLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", "openlabels")
}
