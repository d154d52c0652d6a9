package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// backoffMultiplier is the growth factor between successive retry delays.
const backoffMultiplier = 4

type retryStopKey struct{}

// WithRetryStop returns a copy of ctx carrying stop. A Retrier analyzing under
// the returned context gives up once stop is done, even when ctx itself is
// never canceled.
func WithRetryStop(ctx, stop context.Context) context.Context {
	return context.WithValue(ctx, retryStopKey{}, stop)
}

func retryStop(ctx context.Context) context.Context {
	stop, ok := ctx.Value(retryStopKey{}).(context.Context)
	if ok {
		return stop
	}

	return ctx
}

// Retrier re-runs a failed batch up to a fixed number of times.
type Retrier struct {
	inner   Analyzer
	retries int
	backoff time.Duration
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// Retrying wraps a so that a failed batch is attempted up to retries more
// times. Delays start at backoff and grow by a factor of four.
func Retrying(a Analyzer, retries int, backoff time.Duration, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}

	return &Retrier{
		inner:   a,
		retries: max(retries, 0),
		backoff: backoff,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Name implements Analyzer.
func (r *Retrier) Name() string {
	return r.inner.Name()
}

// Analyze implements Analyzer. Backoff waits and the decision to retry
// follow the stop context set by WithRetryStop, falling back to ctx.
func (r *Retrier) Analyze(ctx context.Context, texts []string) ([][]Detection, error) {
	var lastErr error

	stop := retryStop(ctx)

	for attempt := range r.retries + 1 {
		if attempt > 0 {
			delay := BackoffDuration(r.backoff, attempt)

			r.logger.Warn("retrying batch", "analyzer", r.inner.Name(), "attempt", attempt,
				"delay", delay, "error", lastErr)

			err := r.sleep(stop, delay)
			if err != nil {
				return nil, err
			}
		}

		out, err := r.inner.Analyze(ctx, texts)
		if err == nil {
			return out, nil
		}

		stopErr := stop.Err()
		if stopErr != nil {
			return nil, fmt.Errorf("%w: %w", stopErr, err)
		}

		lastErr = err
	}

	return nil, fmt.Errorf("analyze after %d attempts: %w", r.retries+1, lastErr)
}

// Close releases the wrapped analyzer.
func (r *Retrier) Close() error {
	return Close(r.inner)
}

// BackoffDuration returns the delay before retry attempt (1-indexed).
// Sequence: base, 4*base, 16*base.
func BackoffDuration(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	dur := base
	for range attempt - 1 {
		dur *= backoffMultiplier
	}

	return dur
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
