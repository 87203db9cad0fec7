package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// backoff retries a call on rate limits, 5xx replies, empty replies and
// network timeouts. Delays double from base up to max; a Retry-After header
// takes precedence, still capped by max.
type backoff struct {
	attempts int
	base     time.Duration
	max      time.Duration
	sleep    func(context.Context, time.Duration) error
}

func defaultBackoff() backoff {
	return backoff{attempts: 5, base: time.Second, max: 10 * time.Second, sleep: sleepContext}
}

func (b backoff) run(ctx context.Context, call func() error) error {
	attempts := max(b.attempts, 1)
	var err error
	for attempt := 1; ; attempt++ {
		if err = call(); err == nil {
			return nil
		}
		hint, retry := shouldRetry(ctx, err)
		if !retry {
			return err
		}
		if attempt >= attempts {
			break
		}
		if sleepErr := b.sleep(ctx, b.delay(attempt, hint)); sleepErr != nil {
			return sleepErr
		}
	}
	return fmt.Errorf("llm: giving up after %d attempts: %w", attempts, err)
}

func (b backoff) delay(attempt int, hint time.Duration) time.Duration {
	d := hint
	if d <= 0 && b.base > 0 {
		d = b.base
		for i := 1; i < attempt && (b.max <= 0 || d < b.max); i++ {
			d *= 2
		}
	}
	if b.max > 0 && d > b.max {
		d = b.max
	}
	return d
}

// shouldRetry classifies err and returns the server-requested delay, if any.
func shouldRetry(ctx context.Context, err error) (time.Duration, bool) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return 0, false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.RetryAfter, status.temporary()
	}
	var empty *emptyReplyError
	if errors.As(err, &empty) {
		return 0, true
	}
	var transport *transportError
	if errors.As(err, &transport) {
		return 0, isTimeout(transport.err)
	}
	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(time.Until(when), 0)
	}
	return 0
}
