package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

type flakyAnalyzer struct {
	failures int
	calls    int
}

func (f *flakyAnalyzer) Name() string { return "flaky" }

func (f *flakyAnalyzer) Analyze(_ context.Context, texts []string) ([][]Detection, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errFlaky
	}

	return make([][]Detection, len(texts)), nil
}

func newTestRetrier(a Analyzer, retries int) (*Retrier, *[]time.Duration) {
	var delays []time.Duration

	r := Retrying(a, retries, time.Second, nil)
	r.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)

		return nil
	}

	return r, &delays
}

func TestRetrying_RecoversWithinBudget(t *testing.T) {
	t.Parallel()

	inner := &flakyAnalyzer{failures: 2}
	r, delays := newTestRetrier(inner, 2)

	out, err := r.Analyze(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Len(t, out, 2)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, []time.Duration{time.Second, 4 * time.Second}, *delays)
}

func TestRetrying_ExhaustsBudget(t *testing.T) {
	t.Parallel()

	inner := &flakyAnalyzer{failures: 5}
	r, _ := newTestRetrier(inner, 1)

	_, err := r.Analyze(context.Background(), []string{"a"})
	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 2, inner.calls)
}

func TestRetrying_ZeroRetries(t *testing.T) {
	t.Parallel()

	inner := &flakyAnalyzer{failures: 1}
	r, delays := newTestRetrier(inner, 0)

	_, err := r.Analyze(context.Background(), nil)
	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, inner.calls)
	assert.Empty(t, *delays)
}

func TestRetrying_CanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &flakyAnalyzer{failures: 1}
	r := Retrying(inner, 3, time.Hour, nil)

	_, err := r.Analyze(ctx, []string{"a"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestRetrying_StopsOnRetryStopDespiteDetachedContext(t *testing.T) {
	t.Parallel()

	stop, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &flakyAnalyzer{failures: 1}
	r := Retrying(inner, 3, time.Hour, nil)

	_, err := r.Analyze(WithRetryStop(context.WithoutCancel(stop), stop), []string{"a"})
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, inner.calls)
}

func TestRetrying_BackoffWaitsOnRetryStop(t *testing.T) {
	t.Parallel()

	stop, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner := &flakyAnalyzer{failures: 1}
	r := Retrying(inner, 3, time.Hour, nil)
	r.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()

		return ctx.Err()
	}

	_, err := r.Analyze(WithRetryStop(context.WithoutCancel(stop), stop), []string{"a"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestBackoffDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Duration(0), BackoffDuration(time.Second, 0))
	assert.Equal(t, time.Second, BackoffDuration(time.Second, 1))
	assert.Equal(t, 4*time.Second, BackoffDuration(time.Second, 2))
	assert.Equal(t, 16*time.Second, BackoffDuration(time.Second, 3))
}
