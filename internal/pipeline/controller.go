package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"episodegen/internal/config"
	"episodegen/internal/logging"
	"episodegen/internal/metrics"
	"episodegen/internal/notifications"
	"episodegen/internal/ports"
	"episodegen/internal/services"
	"episodegen/internal/stage"
	"episodegen/internal/store"
)

// RunHandle identifies a submitted run.
type RunHandle struct {
	EpisodeID int64
	RunRef    string
}

// Option customizes a Controller.
type Option func(*Controller)

// WithNotifier publishes completion and failure events.
func WithNotifier(n notifications.Service) Option {
	return func(c *Controller) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithMetrics records run and stage metrics.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Controller owns the lifecycle of generation runs.
type Controller struct {
	store    *store.Store
	executor ports.RunExecutor
	blob     ports.BlobStore
	notifier notifications.Service
	metrics  *metrics.Pipeline
	logger   *slog.Logger

	stages    map[store.Step]stage.Stage
	heartbeat *heartbeatMonitor

	bucket           string
	voiceTimeout     time.Duration
	heartbeatTimeout time.Duration
	audioURLTTL      time.Duration
	downloadURLTTL   time.Duration

	mu       sync.Mutex
	inflight map[int64]string
}

// NewController wires the store, executor, blob store, and the ordered stage
// list. stages must contain one stage per store.Steps entry, in order.
func NewController(
	cfg *config.Config,
	st *store.Store,
	exec ports.RunExecutor,
	blob ports.BlobStore,
	stages []stage.Stage,
	logger *slog.Logger,
	opts ...Option,
) (*Controller, error) {
	if cfg == nil || st == nil || exec == nil || blob == nil {
		return nil, errors.New("pipeline requires config, store, executor, and blob store")
	}
	if len(stages) != len(store.Steps) {
		return nil, fmt.Errorf("pipeline requires %d stages, got %d", len(store.Steps), len(stages))
	}
	byStep := make(map[store.Step]stage.Stage, len(stages))
	for i, s := range stages {
		if s == nil {
			return nil, fmt.Errorf("stage %d is nil", i)
		}
		if s.Step() != store.Steps[i] {
			return nil, fmt.Errorf("stage %d is %q, expected %q", i, s.Step(), store.Steps[i])
		}
		byStep[s.Step()] = s
	}

	c := &Controller{
		store:            st,
		executor:         exec,
		blob:             blob,
		notifier:         notifications.NewService(cfg),
		logger:           logging.NewComponentLogger(logger, "pipeline"),
		stages:           byStep,
		bucket:           cfg.Storage.Bucket,
		voiceTimeout:     cfg.VoiceTimeout(),
		heartbeatTimeout: cfg.HeartbeatTimeout(),
		audioURLTTL:      cfg.AudioURLTTL(),
		downloadURLTTL:   cfg.DownloadURLTTL(),
		inflight:         make(map[int64]string),
	}
	c.heartbeat = newHeartbeatMonitor(st, logger, cfg.HeartbeatInterval())
	for _, opt := range opts {
		opt(c)
	}
	for _, s := range stages {
		if aware, ok := s.(stage.LoggerAware); ok {
			aware.SetLogger(logger)
		}
	}
	return c, nil
}

// Start creates a pending episode for req, submits its run, and moves it to
// active/research. A missing podcast is reported as services.ErrNotFound and
// an invalid request as services.ErrValidation.
func (c *Controller) Start(ctx context.Context, req store.Request) (RunHandle, error) {
	ep, err := c.store.NewEpisode(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrPodcastNotFound):
			return RunHandle{}, services.Wrap(services.ErrNotFound, "", "start", "podcast not found", err)
		case errors.Is(err, store.ErrInvalidRequest):
			return RunHandle{}, services.Wrap(services.ErrValidation, "", "start", "invalid request", err)
		}
		return RunHandle{}, fmt.Errorf("create episode: %w", err)
	}

	logging.WithContext(services.WithEpisodeID(ctx, ep.ID), c.logger).Info(
		"episode created",
		logging.String(logging.FieldEventType, "episode_created"),
		logging.Int64(logging.FieldPodcastID, ep.PodcastID()),
		logging.String("topic", ep.Request.Topic),
		logging.String("format", string(ep.Request.Format)),
	)

	ref, err := c.launch(ctx, ep, store.StepResearch, inputFor(ep), true)
	if err != nil {
		return RunHandle{EpisodeID: ep.ID}, err
	}
	return RunHandle{EpisodeID: ep.ID, RunRef: ref}, nil
}

// launch submits a run starting at from. The job blocks until the run
// reference is recorded on the episode, so a run never executes a stage for
// an episode that does not point at it. activate selects pending→active versus
// re-attaching an already active episode.
func (c *Controller) launch(ctx context.Context, ep *store.Episode, from store.Step, in stage.Input, activate bool) (string, error) {
	id := ep.ID
	ready := make(chan string, 1)
	ref, err := c.executor.Submit(ctx, func(runCtx context.Context) error {
		var ref string
		select {
		case ref = <-ready:
		case <-runCtx.Done():
			return nil
		}
		if ref == "" {
			return nil
		}
		defer c.untrack(id, ref)
		return c.run(runCtx, id, ref, from, in)
	})
	if err != nil {
		cause := services.Wrap(services.ErrExternalService, string(from), "submit", "executor rejected run", err)
		if failErr := c.Fail(context.WithoutCancel(ctx), id, from, cause); failErr != nil {
			c.logger.Warn("failed to record submit failure", logging.Int64(logging.FieldEpisodeID, id), logging.Error(failErr))
		}
		return "", cause
	}

	var ok bool
	if activate {
		ok, err = c.store.Activate(ctx, id, ref)
	} else {
		ok, err = c.store.AttachRunRef(ctx, id, ref)
	}
	if err != nil || !ok {
		ready <- ""
		if err != nil {
			cause := fmt.Errorf("record run ref: %w", err)
			if failErr := c.Fail(context.WithoutCancel(ctx), id, from, cause); failErr != nil {
				c.logger.Warn("failed to record launch failure", logging.Int64(logging.FieldEpisodeID, id), logging.Error(failErr))
			}
			return "", cause
		}
		return "", services.Wrap(services.ErrValidation, string(from), "launch", "episode is no longer live", nil)
	}

	c.track(id, ref)
	if activate {
		c.metrics.RunStarted()
	}
	logging.WithContext(services.WithRunRef(services.WithEpisodeID(ctx, id), ref), c.logger).Info(
		"run submitted",
		logging.String(logging.FieldEventType, "run_submitted"),
		logging.String(logging.FieldStage, string(from)),
		logging.Bool("resumed", !activate),
	)
	ready <- ref
	return ref, nil
}

func (c *Controller) track(id int64, ref string) {
	c.mu.Lock()
	c.inflight[id] = ref
	c.mu.Unlock()
}

func (c *Controller) untrack(id int64, ref string) {
	c.mu.Lock()
	if current, ok := c.inflight[id]; ok && (ref == "" || current == ref) {
		delete(c.inflight, id)
	}
	c.mu.Unlock()
}

// InFlight reports whether this process is executing a run for the episode.
func (c *Controller) InFlight(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[id]
	return ok
}

// Advance persists the output of a completed step and moves the run to the
// next step. After the last step the run is completed. The boolean is false
// when the run was no longer live at step and nothing was written.
func (c *Controller) Advance(ctx context.Context, id int64, step store.Step, out stage.Output) (bool, error) {
	if err := out.Check(step); err != nil {
		return false, err
	}
	effects := out.Effects()
	if step.Next() != store.StepNone {
		return c.store.Advance(ctx, id, step, effects)
	}

	completed, err := c.store.Complete(ctx, id, effects)
	if err != nil || !completed {
		return completed, err
	}
	c.onCompleted(ctx, id)
	return true, nil
}

func (c *Controller) onCompleted(ctx context.Context, id int64) {
	ctx = context.WithoutCancel(ctx)
	logger := logging.WithContext(services.WithEpisodeID(ctx, id), c.logger)
	c.metrics.RunFinished(string(store.StatusCompleted))

	ep, err := c.store.GetEpisode(ctx, id)
	if err != nil || ep == nil {
		logger.Info("episode completed", logging.String(logging.FieldEventType, "run_completed"))
		return
	}
	notice := notifications.Notice{EpisodeID: ep.ID, Topic: ep.Request.Topic}
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "run_completed")}
	if ep.Content != nil {
		notice.Title = ep.Content.Title
		attrs = append(attrs, logging.String("title", ep.Content.Title))
	}
	if ep.Audio != nil {
		notice.Duration = time.Duration(ep.Audio.DurationSeconds) * time.Second
		c.metrics.AudioProduced(ep.Audio.DurationSeconds)
		attrs = append(attrs,
			logging.String("object_key", ep.Audio.ObjectKey),
			logging.Int("duration_seconds", ep.Audio.DurationSeconds),
		)
	}
	attrs = append(attrs, logging.Int64("usage_tokens", ep.UsageTokens))
	logger.Info("episode completed", logging.Args(attrs...)...)
	c.notify(ctx, logger, notifications.EventEpisodeCompleted, notice)
}

// Fail marks a live run failed at step with a marker derived from cause.
// Terminal runs are left untouched and no error is returned for them.
func (c *Controller) Fail(ctx context.Context, id int64, step store.Step, cause error) error {
	marker := FailureMarker(step, cause)
	failed, err := c.store.Fail(ctx, id, marker)
	if err != nil {
		return err
	}
	if !failed {
		return nil
	}

	kind := services.Kind(cause)
	logger := logging.WithContext(services.WithEpisodeID(ctx, id), c.logger)
	logging.ErrorWithContext(logger, "episode generation failed", "run_failed",
		logging.String(logging.FieldStage, string(step)),
		logging.String(logging.FieldErrorKind, kind),
		logging.String(logging.FieldErrorHint, errorHint(kind)),
		logging.String("failure_marker", marker),
		logging.Error(cause),
	)
	c.metrics.RunFinished(string(store.StatusFailed))

	notice := notifications.Notice{EpisodeID: id, Step: StageLabel(step), Kind: kind}
	if ep, getErr := c.store.GetEpisode(ctx, id); getErr == nil && ep != nil {
		notice.Topic = ep.Request.Topic
	}
	c.notify(ctx, logger, notifications.EventEpisodeFailed, notice)
	return nil
}

// Cancel stops a run. Terminal runs return nil without side effects. The
// store is marked cancelled first; the executor is then asked to stop the
// in-flight stage, and a run it no longer knows about is not an error.
func (c *Controller) Cancel(ctx context.Context, id int64) error {
	ep, err := c.store.GetEpisode(ctx, id)
	if err != nil {
		return err
	}
	if ep == nil {
		return services.Wrap(services.ErrNotFound, "", "cancel", fmt.Sprintf("episode %d not found", id), nil)
	}
	if ep.Status.IsTerminal() {
		return nil
	}

	cancelled, err := c.store.Cancel(ctx, id)
	if err != nil {
		return err
	}
	if !cancelled {
		return nil
	}

	logger := logging.WithContext(services.WithEpisodeID(ctx, id), c.logger)
	if ep.RunRef != "" {
		if err := c.executor.Cancel(ctx, ep.RunRef); err != nil && !errors.Is(err, ports.ErrRunNotFound) {
			logging.WarnWithContext(logger, "executor did not acknowledge cancel", "cancel_forward_failed",
				logging.String(logging.FieldRunRef, ep.RunRef),
				logging.String(logging.FieldImpact, "the in-flight stage may finish but its output is discarded"),
				logging.Error(err),
			)
		}
	}
	c.untrack(id, "")
	c.metrics.RunFinished(string(store.StatusCancelled))
	logger.Info("episode cancelled",
		logging.String(logging.FieldEventType, "run_cancelled"),
		logging.String(logging.FieldStage, string(ep.Step)),
		logging.String(logging.FieldRunRef, ep.RunRef),
	)
	return nil
}

// Wait polls until the episode reaches a terminal status or ctx ends.
func (c *Controller) Wait(ctx context.Context, id int64, poll time.Duration) (*store.Episode, error) {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		ep, err := c.store.GetEpisode(ctx, id)
		if err != nil {
			return nil, err
		}
		if ep == nil {
			return nil, services.Wrap(services.ErrNotFound, "", "wait", fmt.Sprintf("episode %d not found", id), nil)
		}
		if ep.Status.IsTerminal() {
			return ep, nil
		}
		select {
		case <-ctx.Done():
			return ep, ctx.Err()
		case <-ticker.C:
		}
	}
}

// HealthCheck reports the readiness of every stage in order.
func (c *Controller) HealthCheck(ctx context.Context) []stage.Health {
	out := make([]stage.Health, 0, len(store.Steps))
	for _, step := range store.Steps {
		out = append(out, c.stages[step].HealthCheck(ctx))
	}
	return out
}

func (c *Controller) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, notice notifications.Notice) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Publish(ctx, event, notice); err != nil {
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

func inputFor(ep *store.Episode) stage.Input {
	in := stage.Input{EpisodeID: ep.ID, Request: ep.Request}
	in.Research.Text = ep.ResearchText
	if ep.Content != nil {
		in.Compose = stage.ComposeOutput{
			Title:      ep.Content.Title,
			Summary:    ep.Content.Summary,
			Transcript: ep.Content.Transcript,
		}
	}
	return in
}
