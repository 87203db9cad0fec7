package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"episodegen/internal/logging"
	"episodegen/internal/metrics"
	"episodegen/internal/services"
	"episodegen/internal/stage"
	"episodegen/internal/store"
)

// run executes the chain from step from until the last stage completes, the
// run is cancelled, or a stage fails.
func (c *Controller) run(ctx context.Context, id int64, ref string, from store.Step, in stage.Input) error {
	ctx = services.WithRunRef(services.WithEpisodeID(ctx, id), ref)
	logger := logging.WithContext(ctx, c.logger)

	c.metrics.RunEntered()
	defer c.metrics.RunExited()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go c.heartbeat.StartLoop(hbCtx, &wg, id)
	defer func() {
		stopHeartbeat()
		wg.Wait()
	}()

	step := from
	defer func() {
		if rec := recover(); rec != nil {
			cause := fmt.Errorf("stage %s panicked: %v", step, rec)
			if failErr := c.Fail(context.WithoutCancel(ctx), id, step, cause); failErr != nil {
				logger.Warn("failed to record panic", logging.Error(failErr))
			}
			panic(rec)
		}
	}()

	for ; step != store.StepNone; step = step.Next() {
		if ctx.Err() != nil {
			logger.Info("run stopped before stage", logging.String(logging.FieldStage, string(step)))
			return nil
		}
		live, err := c.stillLive(ctx, logger, id, step)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			_ = c.Fail(context.WithoutCancel(ctx), id, step, err)
			return err
		}
		if !live {
			return nil
		}

		out, err := c.runStage(ctx, step, in)
		if err != nil {
			if errors.Is(err, errRunStopped) {
				return nil
			}
			if failErr := c.Fail(context.WithoutCancel(ctx), id, step, err); failErr != nil {
				logger.Warn("failed to record stage failure", logging.Error(failErr))
			}
			return err
		}

		if ctx.Err() != nil {
			c.discard(ctx, logger, step, out)
			return nil
		}
		advanced, err := c.Advance(ctx, id, step, out)
		if err != nil {
			c.discard(ctx, logger, step, out)
			if ctx.Err() != nil {
				return nil
			}
			if failErr := c.Fail(context.WithoutCancel(ctx), id, step, err); failErr != nil {
				logger.Warn("failed to record advance failure", logging.Error(failErr))
			}
			return err
		}
		if !advanced {
			logger.Info("run no longer live, stage output discarded", logging.String(logging.FieldStage, string(step)))
			c.discard(ctx, logger, step, out)
			return nil
		}
		in = in.Apply(out)
	}
	return nil
}

// stillLive reports whether the episode is active at step. A deleted episode
// aborts the run without error.
func (c *Controller) stillLive(ctx context.Context, logger *slog.Logger, id int64, step store.Step) (bool, error) {
	ep, err := c.store.GetEpisode(ctx, id)
	if err != nil {
		return false, fmt.Errorf("load episode: %w", err)
	}
	if ep == nil {
		logger.Info("episode removed, run aborted", logging.String(logging.FieldStage, string(step)))
		return false, nil
	}
	if ep.Status != store.StatusActive || ep.Step != step {
		logger.Info("run no longer live",
			logging.String(logging.FieldStage, string(step)),
			logging.String("status", string(ep.Status)),
			logging.String("current_step", string(ep.Step)),
		)
		return false, nil
	}
	return true, nil
}

func (c *Controller) runStage(ctx context.Context, step store.Step, in stage.Input) (stage.Output, error) {
	stageCtx := services.WithStage(ctx, string(step))
	logger := logging.WithContext(stageCtx, c.logger)
	if err := in.Ready(step); err != nil {
		return stage.Output{}, err
	}
	handler := c.stages[step]

	execCtx, cancel := c.stageContext(stageCtx, step)
	defer cancel()

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("stage_label", StageLabel(step)),
	)
	started := time.Now()
	out, err := handler.Execute(execCtx, in)
	if err == nil {
		err = out.Check(step)
	}
	elapsed := time.Since(started)

	if err != nil {
		err = c.classify(ctx, execCtx, step, err)
		if errors.Is(err, errRunStopped) {
			c.metrics.StageObserved(string(step), metrics.OutcomeCancelled, elapsed)
			logger.Info("stage interrupted",
				logging.String(logging.FieldEventType, "stage_cancelled"),
				logging.Duration("elapsed", elapsed),
			)
			return stage.Output{}, err
		}
		c.metrics.StageObserved(string(step), metrics.OutcomeError, elapsed)
		logger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
		)
		return stage.Output{}, err
	}

	tokens := out.Effects().UsageTokens
	c.metrics.StageObserved(string(step), metrics.OutcomeSuccess, elapsed)
	c.metrics.TokensUsed(string(step), tokens)
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", elapsed),
		logging.Int64("usage_tokens", tokens),
	)
	return out, nil
}

// discard removes uploaded audio whose step was never committed.
func (c *Controller) discard(ctx context.Context, logger *slog.Logger, step store.Step, out stage.Output) {
	if out.Voice == nil || out.Voice.ObjectKey == "" {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := c.blob.Delete(cleanupCtx, c.bucket, out.Voice.ObjectKey); err != nil && !errors.Is(err, services.ErrNotFound) {
		logging.WarnWithContext(logger, "failed to remove uncommitted audio", "audio_cleanup_failed",
			logging.String(logging.FieldStage, string(step)),
			logging.String("object_key", out.Voice.ObjectKey),
			logging.String(logging.FieldImpact, "an orphaned audio object remains in storage"),
			logging.Error(err),
		)
	}
}
