package logging

import (
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const jsonTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// newJSONHandler emits one object per line with short top-level keys
// (ts, level, msg, src). Durations are written as fractional seconds.
func newJSONHandler(w io.Writer, level slog.Leveler, withSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   withSource,
		ReplaceAttr: rewriteJSONAttr,
	})
}

func rewriteJSONAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) == 0 {
		switch attr.Key {
		case slog.TimeKey:
			return slog.String("ts", attr.Value.Time().UTC().Format(jsonTimeLayout))
		case slog.LevelKey:
			return slog.String("level", strings.ToLower(attr.Value.String()))
		case slog.SourceKey:
			if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
				return slog.String("src", filepath.Base(src.File)+":"+strconv.Itoa(src.Line))
			}
		}
	}
	if attr.Value.Kind() == slog.KindDuration {
		attr.Value = slog.Float64Value(roundSeconds(attr.Value.Duration()))
	}
	return attr
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(time.Millisecond)) / float64(time.Second)
}
