package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dukex/storeflow/pkg/httpclient"
	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noNotify(error, time.Duration) {}

func TestInvoke_SucceedsFirstAttempt(t *testing.T) {
	node := testutil.CreateTestNode("n", &models.TriggerConfig{}, testutil.WithRetry(3, "fixed"))

	proceed, attempts, err := invoke(t.Context(), node, func(context.Context) (bool, error) {
		return true, nil
	}, noNotify)

	require.NoError(t, err)
	assert.True(t, proceed)
	assert.Equal(t, 1, attempts)
}

func TestInvoke_NotifiesBetweenAttempts(t *testing.T) {
	node := testutil.CreateTestNode("n", &models.TriggerConfig{}, testutil.WithRetry(3, "fixed"))

	var notified []error

	_, attempts, err := invoke(t.Context(), node, func(context.Context) (bool, error) {
		return false, errors.New("flaky")
	}, func(err error, _ time.Duration) {
		notified = append(notified, err)
	})

	require.EqualError(t, err, "flaky")
	assert.Equal(t, 3, attempts)
	assert.Len(t, notified, 2)
}

func TestInvoke_PermanentErrorsStopRetrying(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "client error", err: &httpclient.HTTPError{StatusCode: 404, Message: "not found"}},
		{name: "write outside scope", err: models.ErrWriteOutsideScope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := testutil.CreateTestNode("n", &models.TriggerConfig{}, testutil.WithRetry(5, "exponential"))

			_, attempts, err := invoke(t.Context(), node, func(context.Context) (bool, error) {
				return false, tt.err
			}, noNotify)

			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, attempts)

			var permanent *backoff.PermanentError
			assert.False(t, errors.As(err, &permanent))
		})
	}
}

func TestInvoke_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	node := testutil.CreateTestNode("n", &models.TriggerConfig{}, testutil.WithRetry(5, "fixed"))

	_, attempts, err := invoke(ctx, node, func(context.Context) (bool, error) {
		cancel()

		return false, context.Canceled
	}, noNotify)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("boom")))
	assert.True(t, retryable(&httpclient.HTTPError{StatusCode: 503}))
	assert.False(t, retryable(&httpclient.HTTPError{StatusCode: 400}))
	assert.False(t, retryable(models.ErrWriteOutsideScope))
}

func TestMaxAttempts(t *testing.T) {
	assert.Equal(t, 1, maxAttempts(nil))
	assert.Equal(t, 1, maxAttempts(&models.RetryPolicy{}))
	assert.Equal(t, 4, maxAttempts(&models.RetryPolicy{MaxAttempts: 4}))
}

func TestNewBackOff(t *testing.T) {
	constant := newBackOff(nil)
	assert.Equal(t, defaultInitialInterval, constant.NextBackOff())

	fixed := newBackOff(&models.RetryPolicy{Strategy: "fixed", InitialIntervalMs: 200})
	assert.Equal(t, 200*time.Millisecond, fixed.NextBackOff())
	assert.Equal(t, 200*time.Millisecond, fixed.NextBackOff())

	exponential := newBackOff(&models.RetryPolicy{Strategy: "exponential", InitialIntervalMs: 100, MaxIntervalMs: 250})
	assert.Equal(t, 100*time.Millisecond, exponential.NextBackOff())
	assert.Equal(t, 150*time.Millisecond, exponential.NextBackOff())
	assert.Equal(t, 225*time.Millisecond, exponential.NextBackOff())
	assert.Equal(t, 250*time.Millisecond, exponential.NextBackOff())
}
