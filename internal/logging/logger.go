package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"episodegen/internal/config"
)

// LogFileName is the file written inside the configured log directory.
const LogFileName = "episodegen.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string // console, json or auto
	// Outputs lists sinks: "stdout", "stderr" or a file path. Defaults to stdout.
	Outputs []string
	// Writer, when set, receives output instead of Outputs.
	Writer      io.Writer
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	format, err := resolveFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	w := opts.Writer
	if w == nil {
		if w, err = openOutputs(opts.Outputs); err != nil {
			return nil, err
		}
	}

	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))
	withSource := opts.Development || level.Level() <= slog.LevelDebug

	if format == "json" {
		return slog.New(newJSONHandler(w, level, withSource)), nil
	}
	return slog.New(newConsoleHandler(w, level, withSource)), nil
}

// NewFromConfig builds the daemon logger: stdout plus LogFileName under the
// configured log directory, when one is set.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info"})
	}
	outputs := []string{"stdout"}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		outputs = append(outputs, filepath.Join(dir, LogFileName))
	}
	return New(Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Outputs: outputs,
	})
}

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func resolveFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", "console":
		return "console", nil
	case "json":
		return "json", nil
	case "auto":
		fd := os.Stdout.Fd()
		if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			return "console", nil
		}
		return "json", nil
	default:
		return "", fmt.Errorf("log format: unsupported value %q", format)
	}
}

func openOutputs(outputs []string) (io.Writer, error) {
	if len(outputs) == 0 {
		return os.Stdout, nil
	}
	seen := make(map[string]bool, len(outputs))
	writers := make([]io.Writer, 0, len(outputs))
	for _, out := range outputs {
		out = strings.TrimSpace(out)
		if out == "" || seen[out] {
			continue
		}
		seen[out] = true
		switch out {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return nil, fmt.Errorf("ensure log directory: %w", err)
			}
			file, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", out, err)
			}
			writers = append(writers, file)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}
