// Package timeout implements the pessimistic timeout strategy described
// in spec.md §4.4: the strategy enforces EndpointConfig.Timeout+1s and
// raises TimeoutRejected the instant the deadline elapses, without
// waiting for the underlying action to notice cancellation. The action
// keeps running in the background; any fault it later raises is logged,
// never propagated.
package timeout

import (
	"context"
	"time"

	"resilience-pipeline/pkg/faults"
	"resilience-pipeline/pkg/logging"
	"resilience-pipeline/pkg/telemetry"

	"go.uber.org/zap"
)

// Action is the operation the timeout strategy wraps.
type Action func(ctx context.Context) (any, error)

// innerDeadlineSlack is added to the configured timeout so that a
// finer-grained inner deadline (e.g. one the action itself enforces) has
// a chance to fire first, per spec.md §4.4.
const innerDeadlineSlack = time.Second

// Strategy enforces a deadline around an action.
type Strategy struct {
	timeout      time.Duration
	operationKey string
	logger       *logging.Logger
}

// New builds a timeout strategy for the given logical timeout (the
// EndpointConfig.Timeout value; New adds the 1s slack itself).
func New(timeout time.Duration, operationKey string, logger *logging.Logger) *Strategy {
	if logger == nil {
		logger = logging.Global()
	}
	return &Strategy{
		timeout:      timeout + innerDeadlineSlack,
		operationKey: operationKey,
		logger:       logger.Named("timeout").ForOperation(operationKey),
	}
}

// result carries the outcome of the background goroutine running action.
type result struct {
	value any
	err   error
}

// Execute runs action with an enforced deadline. If the deadline elapses
// before action completes, Execute returns TimeoutRejected immediately;
// action continues running in the background and its eventual outcome is
// only logged.
func (s *Strategy) Execute(ctx context.Context, action Action) (any, error) {
	executionID := telemetry.ExecutionIDFromContext(ctx)
	deadline := time.Now().Add(s.timeout)
	innerCtx, cancel := context.WithDeadline(ctx, deadline)

	done := make(chan result, 1)
	go func() {
		defer cancel()
		value, err := action(innerCtx)
		done <- result{value: value, err: err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.value, r.err
	case <-timer.C:
		s.logger.Warn("timeout rejected",
			zap.String("execution_id", executionID),
			zap.Duration("timeout", s.timeout),
		)
		go s.logOrphanedCompletion(done, executionID)
		return nil, &faults.TimeoutRejected{OperationKey: s.operationKey, Timeout: s.timeout.String()}
	case <-ctx.Done():
		// The caller's own cancellation, not a pipeline timeout.
		go s.logOrphanedCompletion(done, executionID)
		return nil, &faults.CancelledByCaller{Err: ctx.Err()}
	}
}

// logOrphanedCompletion drains the background action's eventual result
// after Execute has already returned, logging but never propagating it.
func (s *Strategy) logOrphanedCompletion(done <-chan result, executionID string) {
	r := <-done
	if r.err != nil {
		s.logger.Info("orphaned action completed after timeout",
			zap.String("execution_id", executionID),
			zap.Error(r.err),
		)
	} else {
		s.logger.Info("orphaned action completed after timeout",
			zap.String("execution_id", executionID),
		)
	}
}
