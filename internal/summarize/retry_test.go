package summarize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterRetryableFailures(t *testing.T) {
	var backoffs []time.Duration
	policy := Policy{
		MaxAttempts: 3,
		Backoff: func(attempt int) time.Duration {
			d := time.Duration(attempt) * time.Millisecond
			backoffs = append(backoffs, d)
			return d
		},
	}

	attempts := 0
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return Retryable(errors.New("rate limited"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	// Two backoff delays observed before the successful third attempt.
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, backoffs)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	policy := Policy{MaxAttempts: 5, Backoff: LinearBackoff(time.Millisecond)}

	fatal := errors.New("bad request")
	attempts := 0
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		return fatal
	})

	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	policy := Policy{MaxAttempts: 3, Backoff: LinearBackoff(time.Millisecond)}

	limited := errors.New("rate limited")
	attempts := 0
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		return Retryable(limited)
	})

	require.ErrorIs(t, err, limited)
	assert.Equal(t, 3, attempts)
	assert.False(t, IsRetryable(err), "exhausted error should be unwrapped")
}

func TestDoRespectsContextCancellation(t *testing.T) {
	policy := Policy{MaxAttempts: 10, Backoff: LinearBackoff(time.Hour)}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Do(ctx, policy, func(ctx context.Context) error {
			return Retryable(errors.New("again"))
		})
	}()

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Do did not observe cancellation during backoff")
	}
}

func TestLinearBackoff(t *testing.T) {
	backoff := LinearBackoff(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, backoff(1))
	assert.Equal(t, 300*time.Millisecond, backoff(3))
}
