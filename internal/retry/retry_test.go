package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obadiaz/lyricsbot/internal/retry"
)

var errUpstream = errors.New("upstream broke")

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := retry.Do(context.Background(), fastPolicy(), func() error {
		attempts++
		if attempts < 3 {
			return &retry.Transient{Err: errUpstream}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := retry.Do(context.Background(), fastPolicy(), func() error {
		attempts++
		return errUpstream
	})
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, 1, attempts, "permanent errors must not be retried")
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := retry.Do(context.Background(), fastPolicy(), func() error {
		attempts++
		return &retry.Transient{Err: errUpstream}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, 3, attempts)
}

func TestDoHonorsServerBackoff(t *testing.T) {
	t.Parallel()

	attempts := 0
	start := time.Now()
	err := retry.Do(context.Background(), fastPolicy(), func() error {
		attempts++
		if attempts == 1 {
			return &retry.Transient{RetryAfter: 50 * time.Millisecond, Err: errUpstream}
		}
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.Do(ctx, retry.Policy{MaxAttempts: 5, BaseDelay: time.Hour}, func() error {
		return &retry.Transient{Err: errUpstream}
	})
	assert.ErrorIs(t, err, context.Canceled)
}
