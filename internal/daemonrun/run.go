package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"episodegen/internal/config"
	"episodegen/internal/daemon"
	"episodegen/internal/deps"
	"episodegen/internal/logging"
)

const shutdownTimeout = 20 * time.Second

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the episodegen daemon and blocks until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(signalCtx, logger, cfg)
	pidPath := filepath.Join(cfg.Paths.DataDir, "episodegen.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Assemble(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("assemble runtime", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, rt.Store, rt.Pipeline, rt.Executor, rt.Metrics, logger)
	if err != nil {
		_ = rt.Close(shutdownTimeout)
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.String(logging.FieldErrorHint, "check api_bind and whether another daemon holds the lock"),
			logging.String(logging.FieldImpact, "no episodes will be generated"),
			logging.Error(err),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("episodegen daemon shutting down")
	return nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	if strings.TrimSpace(opts.LogLevel) == "" && !opts.Development {
		return logging.NewFromConfig(cfg)
	}
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		Outputs:     []string{"stdout", filepath.Join(cfg.Paths.LogDir, logging.LogFileName)},
		Development: opts.Development,
	})
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpeg := deps.CheckFFmpeg(ctx, cfg.Pipeline.FFmpegBinary)
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.String("llm_model", cfg.LLM.Model),
		logging.Bool("search_key_present", strings.TrimSpace(cfg.Search.APIKey) != ""),
		logging.String("tts_provider", cfg.TTS.Provider),
		logging.String("storage_provider", cfg.Storage.Provider),
		logging.Bool("ffmpeg_available", ffmpeg.Available),
		logging.String("ffmpeg_binary", ffmpeg.Command),
		logging.String("ffmpeg_detail", ffmpeg.Detail),
		logging.Bool("notifications_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}
