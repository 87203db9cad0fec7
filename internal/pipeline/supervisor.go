package pipeline

import (
	"context"
	"errors"
	"fmt"

	"episodegen/internal/services"
	"episodegen/internal/store"
)

// errRunStopped marks a stage that ended because its run was cancelled or the
// process is shutting down. It never reaches Fail.
var errRunStopped = errors.New("run stopped")

// stageContext applies the wall-clock budget of step. Only voice synthesis is
// bounded; the LLM stages rely on their clients' own timeouts.
func (c *Controller) stageContext(ctx context.Context, step store.Step) (context.Context, context.CancelFunc) {
	if step == store.StepVoice && c.voiceTimeout > 0 {
		return context.WithTimeout(ctx, c.voiceTimeout)
	}
	return context.WithCancel(ctx)
}

// classify maps a stage error onto the run's outcome. Cancellation of the run
// context wins over whatever the stage returned; an exhausted stage budget
// becomes services.ErrTimeout.
func (c *Controller) classify(runCtx, stageCtx context.Context, step store.Step, err error) error {
	if runCtx.Err() != nil {
		return fmt.Errorf("%w: %w", errRunStopped, err)
	}
	if errors.Is(stageCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrTimeout) {
		return services.Wrap(services.ErrTimeout, string(step), "execute",
			fmt.Sprintf("exceeded %s budget", c.voiceTimeout), err)
	}
	return err
}
