package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var base = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Init replaces the process logger. format is "json" or "text".
func Init(level, format string) {
	base = New(os.Stdout, level, format)
}

func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Debug(msg string, args ...any) { base.Debug(msg, normalize(args)...) }
func Info(msg string, args ...any)  { base.Info(msg, normalize(args)...) }
func Warn(msg string, args ...any)  { base.Warn(msg, normalize(args)...) }
func Error(msg string, args ...any) { base.Error(msg, normalize(args)...) }

// Critical is an error-level entry tagged for alerting. Money that moved
// without its bookkeeping following goes through here.
func Critical(msg string, args ...any) {
	base.Error(msg, append([]any{"severity", "CRITICAL"}, normalize(args)...)...)
}

// normalize lets callers pass a bare error as the only argument.
func normalize(args []any) []any {
	if len(args) == 1 {
		if err, ok := args[0].(error); ok {
			return []any{"error", err}
		}
	}
	return args
}
