// Package retry implements the decorrelated-jitter retry strategy from
// spec.md §4.5, gated by classifier.CanRetry so only idempotent methods
// and retryable faults are ever retried.
package retry

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"resilience-pipeline/pkg/classifier"
	"resilience-pipeline/pkg/config"
	"resilience-pipeline/pkg/logging"
	"resilience-pipeline/pkg/telemetry"

	"go.uber.org/zap"
)

// Action is the operation the retry strategy wraps.
type Action func(ctx context.Context) (any, error)

// Strategy retries a failed action using the decorrelated-jitter backoff
// popularized by AWS's "Exponential Backoff And Jitter" post: each delay
// is a random value between the seed and three times the previous delay,
// capped at a configured maximum.
type Strategy struct {
	retries      int
	seed         time.Duration
	maximum      time.Duration
	method       string
	operationKey string
	logger       *logging.Logger
	listener     telemetry.Listener
	sleep        func(context.Context, time.Duration) error
}

// New builds a retry strategy from an endpoint's configuration. method is
// the HTTP-style method of the call being wrapped (used by
// classifier.CanRetry to gate non-idempotent methods to a single attempt).
// listener, if non-nil, receives an on-retry event (with the attempt
// number suffix from spec.md §6) before each backoff sleep.
func New(ec config.EndpointConfig, method, operationKey string, logger *logging.Logger, listener telemetry.Listener) *Strategy {
	if logger == nil {
		logger = logging.Global()
	}
	return &Strategy{
		retries:      ec.Retries,
		seed:         ec.RetryDelaySeed,
		maximum:      ec.RetryDelayMaximum,
		method:       method,
		operationKey: operationKey,
		logger:       logger.Named("retry").ForOperation(operationKey),
		listener:     listener,
		sleep:        sleepOrCancel,
	}
}

// Execute runs action, retrying on retryable faults up to the configured
// attempt count. The final attempt's outcome (success or failure) is
// always returned.
func (s *Strategy) Execute(ctx context.Context, action Action) (any, error) {
	var delay time.Duration

	for attempt := 0; ; attempt++ {
		result, err := action(ctx)
		if err == nil {
			return result, nil
		}

		if attempt >= s.retries || !classifier.CanRetry(s.method, err) {
			return result, err
		}

		executionID := telemetry.ExecutionIDFromContext(ctx)
		delay = s.nextDelay(delay)
		s.logger.Info("retrying after fault",
			zap.String("execution_id", executionID),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if s.listener != nil {
			s.listener.OnEvent(telemetry.Event{
				Strategy:     "retry",
				Name:         "on-retry." + strconv.Itoa(attempt+1),
				OperationKey: s.operationKey,
				ExecutionID:  executionID,
				Delay:        delay.String(),
				Err:          err,
			})
		}

		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
	}
}

// nextDelay computes the decorrelated-jitter backoff step:
//
//	current_0 = seed
//	current_n = clamp(seed, maximum, current_{n-1} * 3 * U(0,1))
func (s *Strategy) nextDelay(previous time.Duration) time.Duration {
	if previous <= 0 {
		return clampDuration(s.seed, s.seed, s.maximum)
	}
	candidate := time.Duration(float64(previous) * 3 * rand.Float64())
	return clampDuration(candidate, s.seed, s.maximum)
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

// sleepOrCancel sleeps for d, returning early with ctx.Err() if the
// context is cancelled first.
func sleepOrCancel(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
