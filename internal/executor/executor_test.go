package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"episodegen/internal/logging"
	"episodegen/internal/ports"
)

func TestSubmitRunsJobAndForgetsIt(t *testing.T) {
	exec := New(2, logging.NewNop())
	done := make(chan struct{})
	ref, err := exec.Submit(context.Background(), func(ctx context.Context) error {
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ref == "" {
		t.Fatal("expected run reference")
	}
	<-done
	if err := exec.Wait(context.Background(), ref); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := exec.Cancel(context.Background(), ref); !errors.Is(err, ports.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound after completion, got %v", err)
	}
}

func TestCancelStopsRun(t *testing.T) {
	exec := New(1, nil)
	started := make(chan struct{})
	var sawCancel atomic.Bool
	ref, err := exec.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started
	if err := exec.Cancel(context.Background(), ref); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := exec.Wait(ctx, ref); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !sawCancel.Load() {
		t.Fatal("job did not observe cancellation")
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	exec := New(2, nil)
	release := make(chan struct{})
	var current, peak atomic.Int32
	refs := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		ref, err := exec.Submit(context.Background(), func(ctx context.Context) error {
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			current.Add(-1)
			return nil
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		refs = append(refs, ref)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	for _, ref := range refs {
		if err := exec.Wait(context.Background(), ref); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent runs, saw %d", peak.Load())
	}
}

func TestQueuedRunCancelledBeforeStartNeverRuns(t *testing.T) {
	exec := New(1, nil)
	block := make(chan struct{})
	started := make(chan struct{})
	first, _ := exec.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	})
	<-started
	var ran atomic.Bool
	second, err := exec.Submit(context.Background(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := exec.Cancel(context.Background(), second); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := exec.Wait(context.Background(), second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	close(block)
	_ = exec.Wait(context.Background(), first)
	if ran.Load() {
		t.Fatal("cancelled queued run should not execute")
	}
}

func TestPanicIsRecovered(t *testing.T) {
	exec := New(1, nil)
	ref, err := exec.Submit(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := exec.Wait(context.Background(), ref); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if exec.Running() != 0 {
		t.Fatalf("expected no running jobs, got %d", exec.Running())
	}
}

func TestShutdownCancelsAndRejects(t *testing.T) {
	exec := New(1, nil)
	started := make(chan struct{})
	_, err := exec.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := exec.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := exec.Submit(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
