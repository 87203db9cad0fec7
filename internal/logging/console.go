package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const consoleTimeLayout = "2006-01-02 15:04:05.000"

type consoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *consoleSink) write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(p)
	return err
}

// consoleHandler renders a one-line header per record followed by indented
// fields. INFO and above show a curated subset; DEBUG dumps every field.
type consoleHandler struct {
	sink       *consoleSink
	level      slog.Leveler
	withSource bool
	fields     []kv
	prefix     string
}

type kv struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, level slog.Leveler, withSource bool) slog.Handler {
	return &consoleHandler{sink: &consoleSink{w: w}, level: level, withSource: withSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.fields = make([]kv, len(h.fields), len(h.fields)+len(attrs))
	copy(next.fields, h.fields)
	for _, attr := range attrs {
		next.fields = appendFlattened(next.fields, h.prefix, attr)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]kv, len(h.fields), len(h.fields)+record.NumAttrs())
	copy(fields, h.fields)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendFlattened(fields, h.prefix, attr)
		return true
	})
	fields = lastValueWins(fields)

	var buf bytes.Buffer
	buf.Grow(192 + 32*len(fields))
	h.writeHeader(&buf, record, fields)
	if record.Level < slog.LevelInfo {
		writeDebugFields(&buf, fields)
	} else {
		writeInfoFields(&buf, fields)
	}
	return h.sink.write(buf.Bytes())
}

func (h *consoleHandler) writeHeader(buf *bytes.Buffer, record slog.Record, fields []kv) {
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString(ts.Local().Format(consoleTimeLayout))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))

	var component, episode, stage string
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			component = plainString(f.value)
		case FieldEpisodeID:
			episode = plainString(f.value)
		case FieldStage:
			stage = plainString(f.value)
		}
	}
	if component != "" {
		buf.WriteString(" [" + component + "]")
	}
	if subject := episodeSubject(episode, stage); subject != "" {
		buf.WriteString(" " + subject)
	}
	buf.WriteString(" | ")
	if msg := strings.TrimSpace(record.Message); msg != "" {
		buf.WriteString(msg)
	} else {
		buf.WriteString("(no message)")
	}
	if h.withSource {
		if src := record.Source(); src != nil && src.File != "" {
			buf.WriteString(" (" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + ")")
		}
	}
	buf.WriteByte('\n')
}

func episodeSubject(episode, stage string) string {
	episode = strings.TrimSpace(episode)
	stage = strings.TrimSpace(stage)
	if episode == "" {
		return stage
	}
	if stage == "" {
		return "Episode #" + episode
	}
	return "Episode #" + episode + " (" + stage + ")"
}

func writeInfoFields(buf *bytes.Buffer, fields []kv) {
	shown, hidden := selectInfoFields(fields)
	for _, f := range shown {
		fmt.Fprintf(buf, "    - %s: %s\n", f.label, f.value)
	}
	switch {
	case hidden == 1:
		buf.WriteString("    + 1 more field hidden\n")
	case hidden > 1:
		fmt.Fprintf(buf, "    + %d more fields hidden\n", hidden)
	}
}

func writeDebugFields(buf *bytes.Buffer, fields []kv) {
	for _, f := range fields {
		if f.key == FieldComponent {
			continue
		}
		fmt.Fprintf(buf, "    %s=%s\n", f.key, formatValue(f.value))
	}
}

func appendFlattened(dst []kv, prefix string, attr slog.Attr) []kv {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	value := attr.Value.Resolve()
	if value.Kind() != slog.KindGroup {
		return append(dst, kv{key: prefix + attr.Key, value: value})
	}
	inner := prefix
	if attr.Key != "" {
		inner += attr.Key + "."
	}
	for _, member := range value.Group() {
		dst = appendFlattened(dst, inner, member)
	}
	return dst
}

// lastValueWins collapses repeated keys, keeping the first position and the
// latest value.
func lastValueWins(fields []kv) []kv {
	index := make(map[string]int, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if f.key == "" {
			continue
		}
		if i, ok := index[f.key]; ok {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN "
	case level >= slog.LevelInfo:
		return "INFO "
	default:
		return "DEBUG"
	}
}

// plainString renders v without quoting, for header parts.
func plainString(v slog.Value) string {
	if v.Kind() == slog.KindAny {
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return formatValue(v)
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return quoteIfNeeded(v.String())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return v.Time().Local().Format(consoleTimeLayout)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return quoteIfNeeded(err.Error())
		}
		return quoteIfNeeded(fmt.Sprint(v.Any()))
	default:
		return quoteIfNeeded(v.String())
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r < ' ' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

// formatBytes renders n with a decimal unit (kB, MB, GB), matching how audio
// file sizes are usually quoted.
func formatBytes(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return strconv.FormatFloat(float64(n)/1e9, 'f', 2, 64) + " GB"
	case n >= 1_000_000:
		return strconv.FormatFloat(float64(n)/1e6, 'f', 1, 64) + " MB"
	case n >= 1_000:
		return strconv.FormatFloat(float64(n)/1e3, 'f', 1, 64) + " kB"
	default:
		return strconv.FormatInt(n, 10) + " B"
	}
}
