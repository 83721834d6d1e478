// Package fallback implements the generic Fallback[T] strategy from
// spec.md §4.6: it wraps the entire pipeline composite and substitutes a
// generator-produced value for a fault classified by ShouldHandle.
package fallback

import (
	"context"

	"resilience-pipeline/pkg/faults"
	"resilience-pipeline/pkg/logging"
	"resilience-pipeline/pkg/telemetry"

	"go.uber.org/zap"
)

// Action is the operation the fallback strategy wraps.
type Action[T any] func(ctx context.Context) (T, error)

// Generator produces the substitute value returned in place of a handled
// fault. It corresponds to spec.md's ctx.FallbackGenerator<T>().
type Generator[T any] func(ctx context.Context, err error) T

// Strategy is a generic fallback wrapper around an Action[T].
type Strategy[T any] struct {
	handleExecutionFaults bool
	operationKey          string
	logger                *logging.Logger
	listener              telemetry.Listener
}

// New builds a fallback strategy. handleExecutionFaults extends
// ShouldHandle to cover BrokenCircuit, IsolatedCircuit, and
// TimeoutRejected in addition to the faults always covered. listener, if
// non-nil, receives an on-fallback event each time the strategy engages.
func New[T any](handleExecutionFaults bool, operationKey string, logger *logging.Logger, listener telemetry.Listener) *Strategy[T] {
	if logger == nil {
		logger = logging.Global()
	}
	return &Strategy[T]{
		handleExecutionFaults: handleExecutionFaults,
		operationKey:          operationKey,
		logger:                logger.Named("fallback").ForOperation(operationKey),
		listener:              listener,
	}
}

// Execute runs action. If it fails with a fault ShouldHandle accepts,
// Execute returns generator's substitute value (or the zero value of T if
// generator is nil) with a nil error; otherwise the original outcome is
// returned unchanged.
func (s *Strategy[T]) Execute(ctx context.Context, action Action[T], generator Generator[T]) (T, error) {
	result, err := action(ctx)
	if err == nil {
		return result, nil
	}

	if !s.ShouldHandle(err) {
		return result, err
	}

	executionID := telemetry.ExecutionIDFromContext(ctx)
	s.logger.Info("fallback engaged",
		zap.String("execution_id", executionID),
		zap.Error(err),
	)
	if s.listener != nil {
		s.listener.OnEvent(telemetry.Event{Strategy: "fallback", Name: "on-fallback", OperationKey: s.operationKey, ExecutionID: executionID, Err: err})
	}

	if generator == nil {
		var zero T
		return zero, nil
	}
	return generator(ctx, err), nil
}

// ShouldHandle reports whether err is a fault the fallback strategy
// covers. Rate-limit rejections are deliberately excluded so they surface
// to the caller (typically translated to HTTP 429).
func (s *Strategy[T]) ShouldHandle(err error) bool {
	if err == nil {
		return false
	}
	if faults.IsRateLimited(err) {
		return false
	}

	if _, ok := faults.IsDependencyFault(err); ok {
		return true
	}
	if faults.IsConnectionFault(err) {
		return true
	}
	if faults.IsCancelledByCaller(err) {
		return true
	}

	if s.handleExecutionFaults {
		if faults.IsBrokenCircuit(err) || faults.IsIsolated(err) || faults.IsTimeout(err) {
			return true
		}
	}

	return false
}
