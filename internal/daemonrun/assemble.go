package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"episodegen/internal/audio"
	"episodegen/internal/config"
	"episodegen/internal/executor"
	"episodegen/internal/logging"
	"episodegen/internal/metrics"
	"episodegen/internal/notifications"
	"episodegen/internal/pipeline"
	"episodegen/internal/ports"
	"episodegen/internal/services/blob"
	"episodegen/internal/services/llm"
	"episodegen/internal/services/search"
	"episodegen/internal/services/tts"
	"episodegen/internal/stage"
	"episodegen/internal/stages"
	"episodegen/internal/store"
)

// Runtime holds the wired components of one episodegen process.
type Runtime struct {
	Store    *store.Store
	Executor *executor.Local
	Metrics  *metrics.Pipeline
	Pipeline *pipeline.Controller
}

// Assemble opens the store and builds the provider clients, stages, and
// pipeline controller described by cfg.
func Assemble(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open episode store: %w", err)
	}

	stageSet, blobStore, err := buildStages(ctx, cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	exec := executor.New(cfg.Pipeline.MaxConcurrentRuns, logger)
	m := metrics.New()
	ctrl, err := pipeline.NewController(cfg, st, exec, blobStore, stageSet, logger,
		pipeline.WithMetrics(m),
		pipeline.WithNotifier(notifications.NewService(cfg)),
	)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	return &Runtime{Store: st, Executor: exec, Metrics: m, Pipeline: ctrl}, nil
}

// Close waits for in-flight runs up to timeout and closes the store.
func (r *Runtime) Close(timeout time.Duration) error {
	if r == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	shutdownErr := r.Executor.Shutdown(ctx)
	return errors.Join(shutdownErr, r.Store.Close())
}

func buildStages(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]stage.Stage, ports.BlobStore, error) {
	llmClient := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		MaxToolRounds:  cfg.LLM.MaxToolRounds,
	})
	searchClient := search.NewClient(search.Config{
		APIKey:         cfg.Search.APIKey,
		BaseURL:        cfg.Search.BaseURL,
		TimeoutSeconds: cfg.Search.TimeoutSeconds,
		DefaultResults: cfg.Search.DefaultResults,
		MaxResults:     cfg.Search.MaxResults,
		ContentChars:   cfg.Search.ContentChars,
	}, nil)

	speech, err := tts.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create tts provider: %w", err)
	}
	blobStore, err := blob.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create blob store: %w", err)
	}

	compose, err := stages.NewCompose(llmClient, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create compose stage: %w", err)
	}

	encoder := audio.NewPool(
		audio.NewFFmpegEncoder(cfg.Pipeline.FFmpegBinary, cfg.Pipeline.AudioBitrate),
		cfg.Pipeline.EncodeWorkers,
	)
	voice := stages.NewVoice(stages.VoiceConfig{
		TTS:          speech,
		Finalizer:    audio.NewFinalizer(encoder),
		Blob:         blobStore,
		Bucket:       cfg.Storage.Bucket,
		VoiceFor:     cfg.VoiceFor,
		FFmpegBinary: cfg.Pipeline.FFmpegBinary,
	}, logger)

	return []stage.Stage{
		stages.NewResearch(llmClient, searchClient, logger),
		compose,
		voice,
	}, blobStore, nil
}
