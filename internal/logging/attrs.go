package logging

import (
	"context"
	"log/slog"
	"time"
)

type Attr = slog.Attr

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

// Error wraps err under the "error" key. A nil error is logged as "<nil>" so
// the key is never silently missing.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Args converts attrs to the variadic form accepted by slog.Logger methods.
func Args(attrs ...Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}

func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewComponentLogger tags logger with a component name. A nil logger yields
// a discarding one.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

type eventDefaults struct {
	hint   string
	impact string
}

var (
	warnDefaults = eventDefaults{
		hint:   "check the daemon log around this episode",
		impact: "episode generation continues",
	}
	errorDefaults = eventDefaults{
		hint: "inspect the episode failure marker and daemon log",
	}
)

// WarnWithContext logs a warning tagged with eventType. error_hint and impact
// are filled in when the caller did not supply them.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	logEvent(logger, slog.LevelWarn, msg, eventType, warnDefaults, attrs)
}

// ErrorWithContext logs an error tagged with eventType and an error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	logEvent(logger, slog.LevelError, msg, eventType, errorDefaults, attrs)
}

func logEvent(logger *slog.Logger, level slog.Level, msg, eventType string, defaults eventDefaults, attrs []Attr) {
	if logger == nil {
		return
	}
	present := make(map[string]bool, len(attrs))
	for _, attr := range attrs {
		present[attr.Key] = true
	}
	add := func(key, value string) {
		if value != "" && !present[key] {
			attrs = append(attrs, String(key, value))
		}
	}
	add(FieldEventType, eventType)
	add(FieldErrorHint, defaults.hint)
	add(FieldImpact, defaults.impact)
	logger.LogAttrs(context.Background(), level, msg, attrs...)
}
