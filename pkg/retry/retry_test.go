package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/adflow-io/adflow/pkg/errkind"
)

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := Do(context.Background(), clockwork.NewFakeClock(), DefaultConfig(), func() error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	cfg := Config{MaxAttempts: 3, BaseBackoff: time.Second, BackoffMultiplier: 2, MaxBackoff: 10 * time.Second}

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(context.Background(), clock, cfg, func() error {
			attempts++
			if attempts < 3 {
				return errkind.New(errkind.Transport, "linkedin", errors.New("connection reset"))
			}
			return nil
		})
	}()

	clock.BlockUntilContext(context.Background(), 1)
	clock.Advance(5 * time.Second)
	clock.BlockUntilContext(context.Background(), 1)
	clock.Advance(10 * time.Second)

	require.NoError(t, <-done)
	require.Equal(t, 3, attempts)
}

func TestDo_NonTransientFailsImmediately(t *testing.T) {
	t.Parallel()
	attempts := 0
	original := errkind.New(errkind.Config, "linkedin", errors.New("bad config"))
	err := Do(context.Background(), clockwork.NewFakeClock(), DefaultConfig(), func() error {
		attempts++
		return original
	})
	require.ErrorIs(t, err, original)
	require.Equal(t, 1, attempts)
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewFakeClock()
	cfg := Config{MaxAttempts: 5, BaseBackoff: time.Second, BackoffMultiplier: 2, MaxBackoff: time.Minute}

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, clock, cfg, func() error {
			attempts++
			return errkind.New(errkind.Transport, "google", errors.New("timeout"))
		})
	}()

	clock.BlockUntilContext(context.Background(), 1)
	cancel()
	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, attempts)
}

func TestNextBackoff_HonorsRetryAfterHint(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	err := &hintedErr{seconds: 30}
	d := nextBackoff(cfg, 1, err)
	require.Equal(t, 30*time.Second, d)
}

type hintedErr struct{ seconds int }

func (e *hintedErr) Error() string          { return "rate limited" }
func (e *hintedErr) RetryAfterSeconds() int { return e.seconds }

func TestCalculateBackoff_CapsAtMax(t *testing.T) {
	t.Parallel()
	d := calculateBackoff(time.Second, 5*time.Second, 2, 10)
	require.LessOrEqual(t, d, 5*time.Second)
}
