package pipeline

import (
	"context"
	"fmt"
	"time"

	"episodegen/internal/logging"
	"episodegen/internal/services"
	"episodegen/internal/store"
)

// Resume relaunches every live episode after a restart. Pending episodes start
// from research; active episodes continue from their current step when the
// predecessor's output was persisted and are failed otherwise. It returns how
// many runs were relaunched.
func (c *Controller) Resume(ctx context.Context) (int, error) {
	active, err := c.store.ActiveEpisodes(ctx, time.Time{})
	if err != nil {
		return 0, err
	}
	pending, err := c.store.ListEpisodes(ctx, store.ListFilter{Statuses: []store.Status{store.StatusPending}})
	if err != nil {
		return 0, err
	}
	return c.relaunch(ctx, append(active, pending...)), nil
}

// ReclaimStale relaunches active episodes whose heartbeat is older than the
// configured timeout and that this process is not executing.
func (c *Controller) ReclaimStale(ctx context.Context) (int, error) {
	if c.heartbeatTimeout <= 0 {
		return 0, nil
	}
	stale, err := c.store.ActiveEpisodes(ctx, time.Now().Add(-c.heartbeatTimeout))
	if err != nil {
		return 0, err
	}
	candidates := stale[:0]
	for _, ep := range stale {
		if !c.InFlight(ep.ID) {
			candidates = append(candidates, ep)
		}
	}
	reclaimed := c.relaunch(ctx, candidates)
	if reclaimed > 0 {
		c.logger.Info("reclaimed stale runs", logging.Int("count", reclaimed))
	}
	return reclaimed, nil
}

// ResumeEpisode relaunches one live episode that is not executing in this
// process.
func (c *Controller) ResumeEpisode(ctx context.Context, id int64) (RunHandle, error) {
	ep, err := c.store.GetEpisode(ctx, id)
	if err != nil {
		return RunHandle{}, err
	}
	if ep == nil {
		return RunHandle{}, services.Wrap(services.ErrNotFound, "", "resume", fmt.Sprintf("episode %d not found", id), nil)
	}
	if ep.Status.IsTerminal() {
		return RunHandle{}, services.Wrap(services.ErrValidation, "", "resume", fmt.Sprintf("episode %d is %s", id, ep.Status), nil)
	}
	if c.InFlight(id) {
		return RunHandle{}, services.Wrap(services.ErrValidation, "", "resume", fmt.Sprintf("episode %d is already running", id), nil)
	}
	ref, err := c.resume(ctx, ep)
	if err != nil {
		return RunHandle{EpisodeID: id}, err
	}
	return RunHandle{EpisodeID: id, RunRef: ref}, nil
}

func (c *Controller) relaunch(ctx context.Context, episodes []*store.Episode) int {
	var count int
	for _, ep := range episodes {
		if _, err := c.resume(ctx, ep); err != nil {
			logging.WarnWithContext(logging.WithContext(services.WithEpisodeID(ctx, ep.ID), c.logger),
				"could not resume episode", "resume_failed",
				logging.String(logging.FieldStage, string(ep.Step)),
				logging.String(logging.FieldImpact, "episode was not relaunched"),
				logging.Error(err),
			)
			continue
		}
		count++
	}
	return count
}

func (c *Controller) resume(ctx context.Context, ep *store.Episode) (string, error) {
	in := inputFor(ep)
	if ep.Status == store.StatusPending {
		return c.launch(ctx, ep, store.StepResearch, in, true)
	}

	step := ep.Step
	if step == store.StepNone {
		step = store.StepResearch
	}
	if err := in.Ready(step); err != nil {
		if failErr := c.Fail(ctx, ep.ID, step, err); failErr != nil {
			return "", failErr
		}
		return "", err
	}
	return c.launch(ctx, ep, step, in, false)
}
