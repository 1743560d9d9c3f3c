package rtc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// levelTrace sits below slog's debug; pion's trace output is only shown
// when the handler is opened all the way.
const levelTrace = slog.LevelDebug - 4

// slogFactory routes pion's internal logging into slog, one scope attribute
// per pion subsystem (ice, dtls, sctp, ...).
type slogFactory struct {
	base *slog.Logger
}

func newLoggerFactory(base *slog.Logger) logging.LoggerFactory {
	if base == nil {
		base = slog.Default()
	}
	return slogFactory{base: base}
}

func (f slogFactory) NewLogger(scope string) logging.LeveledLogger {
	return scopedLogger{l: f.base.With("component", "pion", "scope", scope)}
}

type scopedLogger struct {
	l *slog.Logger
}

func (s scopedLogger) log(level slog.Level, msg string) {
	s.l.Log(context.Background(), level, msg)
}

func (s scopedLogger) Trace(msg string) { s.log(levelTrace, msg) }
func (s scopedLogger) Tracef(format string, args ...any) {
	s.log(levelTrace, fmt.Sprintf(format, args...))
}
func (s scopedLogger) Debug(msg string) { s.log(slog.LevelDebug, msg) }
func (s scopedLogger) Debugf(format string, args ...any) {
	s.log(slog.LevelDebug, fmt.Sprintf(format, args...))
}
func (s scopedLogger) Info(msg string) { s.log(slog.LevelInfo, msg) }
func (s scopedLogger) Infof(format string, args ...any) {
	s.log(slog.LevelInfo, fmt.Sprintf(format, args...))
}
func (s scopedLogger) Warn(msg string) { s.log(slog.LevelWarn, msg) }
func (s scopedLogger) Warnf(format string, args ...any) {
	s.log(slog.LevelWarn, fmt.Sprintf(format, args...))
}
func (s scopedLogger) Error(msg string) { s.log(slog.LevelError, msg) }
func (s scopedLogger) Errorf(format string, args ...any) {
	s.log(slog.LevelError, fmt.Sprintf(format, args...))
}
