// Package executor runs pipeline jobs on in-process goroutines.
//
// Each submitted job gets a run reference (a UUID) and its own cancellable
// context derived from the executor's base context. A weighted semaphore caps
// how many jobs execute at once; queued jobs wait for a slot and give up if
// cancelled first. Shutdown cancels every run and waits for them to return.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"episodegen/internal/logging"
	"episodegen/internal/ports"
)

// ErrClosed is returned by Submit after Shutdown.
var ErrClosed = errors.New("executor closed")

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Local is a ports.RunExecutor backed by goroutines.
type Local struct {
	logger *slog.Logger
	sem    *semaphore.Weighted

	base       context.Context
	baseCancel context.CancelFunc

	mu     sync.Mutex
	runs   map[string]*run
	closed bool
	wg     sync.WaitGroup
}

var _ ports.RunExecutor = (*Local)(nil)

// New returns an executor that runs at most maxConcurrent jobs at a time.
func New(maxConcurrent int, logger *slog.Logger) *Local {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	base, cancel := context.WithCancel(context.Background())
	return &Local{
		logger:     logging.NewComponentLogger(logger, "executor"),
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		base:       base,
		baseCancel: cancel,
		runs:       make(map[string]*run),
	}
}

// Submit schedules job and returns its run reference. ctx only bounds the
// submission; the job runs under the executor's own context.
func (l *Local) Submit(ctx context.Context, job ports.Job) (string, error) {
	if job == nil {
		return "", errors.New("executor: nil job")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return "", ErrClosed
	}
	ref := uuid.NewString()
	runCtx, cancel := context.WithCancel(l.base)
	r := &run{cancel: cancel, done: make(chan struct{})}
	l.runs[ref] = r
	l.wg.Add(1)
	l.mu.Unlock()

	go l.execute(runCtx, ref, r, job)
	return ref, nil
}

func (l *Local) execute(ctx context.Context, ref string, r *run, job ports.Job) {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		delete(l.runs, ref)
		l.mu.Unlock()
		r.cancel()
		close(r.done)
	}()

	logger := l.logger.With(logging.String(logging.FieldRunRef, ref))
	if err := l.sem.Acquire(ctx, 1); err != nil {
		logger.Debug("run cancelled before start", logging.Error(err))
		return
	}
	defer l.sem.Release(1)

	if err := l.invoke(ctx, job); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("run cancelled", logging.Error(err))
			return
		}
		logger.Debug("run returned error", logging.Error(err))
	}
}

func (l *Local) invoke(ctx context.Context, job ports.Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.ErrorWithContext(l.logger, "run panicked", "run_panic",
				logging.String("panic", fmt.Sprint(rec)),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "report this crash; the episode stays active until resumed"),
			)
			err = fmt.Errorf("run panicked: %v", rec)
		}
	}()
	return job(ctx)
}

// Cancel cancels the run's context. Unknown or finished runs return
// ports.ErrRunNotFound.
func (l *Local) Cancel(_ context.Context, runRef string) error {
	l.mu.Lock()
	r, ok := l.runs[runRef]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ports.ErrRunNotFound, runRef)
	}
	r.cancel()
	return nil
}

// Wait blocks until the run finishes or ctx ends. Unknown runs return
// immediately.
func (l *Local) Wait(ctx context.Context, runRef string) error {
	l.mu.Lock()
	r, ok := l.runs[runRef]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports how many runs are queued or executing.
func (l *Local) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.runs)
}

// Shutdown stops accepting runs, cancels the ones in flight, and waits for
// them to return or for ctx to end.
func (l *Local) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.baseCancel()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
