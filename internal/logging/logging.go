package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls where logs go and how verbose they are.
type Options struct {
	// Level overrides LOG_LEVEL when non-empty.
	Level string
	// Output defaults to stderr.
	Output io.Writer
}

// ParseLevel maps the accepted level names onto slog levels.
// Unknown names fall back to the production default (error).
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func Init(opts Options) *slog.Logger {
	level := slog.LevelError // default: production only shows errors

	if opts.Level != "" {
		level = ParseLevel(opts.Level)
	} else if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		level = ParseLevel(l)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	logger := slog.New(
		slog.NewTextHandler(out, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
	return logger
}

// OpenFile opens (appending) the file the interactive UI logs into, so log
// lines never land on top of the terminal screen.
func OpenFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
