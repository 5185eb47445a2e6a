package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dukex/storeflow/pkg/httpclient"
	"github.com/dukex/storeflow/pkg/models"
)

const (
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 30 * time.Second
	maxRetryElapsedTime    = time.Hour
)

// ErrNodeTimeout is returned when one attempt outlives the node's timeout_seconds.
var ErrNodeTimeout = errors.New("node timed out")

type attemptFunc func(ctx context.Context) (bool, error)

// invoke runs attempt under the node's retry policy and per-attempt timeout.
// It returns the continue signal, the number of attempts made and the last error.
func invoke(ctx context.Context, node *models.WorkflowNode, attempt attemptFunc, notify backoff.Notify) (bool, int, error) {
	attempts := 0

	operation := func() (bool, error) {
		attempts++

		proceed, err := runAttempt(ctx, node, attempt)
		if err == nil {
			return proceed, nil
		}

		if ctx.Err() != nil || !retryable(err) {
			return false, backoff.Permanent(err)
		}

		return false, err
	}

	proceed, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(newBackOff(node.Retry)),
		backoff.WithMaxTries(uint(maxAttempts(node.Retry))),
		backoff.WithMaxElapsedTime(maxRetryElapsedTime),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}

		return false, attempts, err
	}

	return proceed, attempts, nil
}

func runAttempt(ctx context.Context, node *models.WorkflowNode, attempt attemptFunc) (bool, error) {
	if node.TimeoutSeconds <= 0 {
		return attempt(ctx)
	}

	timeout := time.Duration(node.TimeoutSeconds) * time.Second

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	proceed, err := attempt(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return false, fmt.Errorf("%w after %s: %w", ErrNodeTimeout, timeout, err)
	}

	return proceed, err
}

// retryable reports whether another attempt could succeed. Client errors and scope violations cannot.
func retryable(err error) bool {
	return !httpclient.IsClientError(err) && !errors.Is(err, models.ErrWriteOutsideScope)
}

func maxAttempts(policy *models.RetryPolicy) int {
	if policy == nil || policy.MaxAttempts < 1 {
		return 1
	}

	return policy.MaxAttempts
}

func newBackOff(policy *models.RetryPolicy) backoff.BackOff {
	initial := defaultInitialInterval
	maxInterval := defaultMaxInterval

	if policy != nil && policy.InitialIntervalMs > 0 {
		initial = time.Duration(policy.InitialIntervalMs) * time.Millisecond
	}

	if policy != nil && policy.MaxIntervalMs > 0 {
		maxInterval = time.Duration(policy.MaxIntervalMs) * time.Millisecond
	}

	if policy == nil || policy.Strategy != "exponential" {
		return backoff.NewConstantBackOff(initial)
	}

	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = initial
	exponential.MaxInterval = maxInterval
	exponential.RandomizationFactor = 0
	exponential.Reset()

	return exponential
}
