package log

import (
	"context"
	"log/slog"
)

// SlogLogger adapts a *slog.Logger to Logger.
type SlogLogger struct {
	sl *slog.Logger
}

// NewSlogLogger wraps sl.
func NewSlogLogger(sl *slog.Logger) *SlogLogger {
	return &SlogLogger{sl: sl}
}

func (l *SlogLogger) Debug(msg string, fields ...any) { l.sl.Debug(msg, slogArgs(fields)...) }
func (l *SlogLogger) Info(msg string, fields ...any)  { l.sl.Info(msg, slogArgs(fields)...) }
func (l *SlogLogger) Warn(msg string, fields ...any)  { l.sl.Warn(msg, slogArgs(fields)...) }
func (l *SlogLogger) Error(msg string, fields ...any) { l.sl.Error(msg, slogArgs(fields)...) }

func (l *SlogLogger) With(fields ...any) Logger {
	return &SlogLogger{sl: l.sl.With(slogArgs(fields)...)}
}

func (l *SlogLogger) Enabled(ctx context.Context, level Level) bool {
	return l.sl.Enabled(ctx, slog.Level(level))
}

// slogArgs converts a leading error into ErrAttr so ErrFmtHandler can pick it up.
func slogArgs(fields []any) []any {
	if len(fields) == 0 {
		return fields
	}
	if err, ok := fields[0].(error); ok {
		return append([]any{ErrAttr(err)}, fields[1:]...)
	}
	return fields
}
