// Package breaker implements the window-based circuit breaker described
// in spec.md §4.3 on top of github.com/sony/gobreaker, adding the manual
// Isolation state gobreaker itself has no concept of.
package breaker

import (
	"context"
	"sync/atomic"

	"resilience-pipeline/pkg/classifier"
	"resilience-pipeline/pkg/config"
	"resilience-pipeline/pkg/faults"
	"resilience-pipeline/pkg/logging"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// StateChangeFunc is invoked whenever the breaker transitions state,
// letting the telemetry layer record circuit-opened/circuit-closed
// events without the breaker importing pkg/telemetry directly.
type StateChangeFunc func(resource string, from, to State)

// Action is the operation the breaker admits or rejects.
type Action func(ctx context.Context) (any, error)

// CircuitBreaker wraps a gobreaker.CircuitBreaker with the window
// settings from spec.md §4.3 and an isolation flag layered on top: when
// isolated, every execution fails fast with IsolatedCircuit without
// touching gobreaker's own state machine, so gobreaker's counts are
// preserved for when isolation is lifted.
type CircuitBreaker struct {
	resource string
	cb       *gobreaker.CircuitBreaker
	isolated atomic.Bool
	logger   *logging.Logger
	onChange StateChangeFunc
}

// New builds a CircuitBreaker for one (endpoint, resource) shard. ec
// supplies the window settings; ec.Isolate, if true, starts the breaker in
// the Isolated state per spec.md §4.3 ("If EndpointConfig.Isolate is true
// on creation...").
func New(resource string, ec config.EndpointConfig, logger *logging.Logger, onChange StateChangeFunc) *CircuitBreaker {
	if logger == nil {
		logger = logging.Global()
	}
	logger = logger.Named("breaker").Named(resource)

	b := &CircuitBreaker{
		resource: resource,
		logger:   logger,
		onChange: onChange,
	}

	settings := gobreaker.Settings{
		Name:     resource,
		Interval: ec.FailureSamplingDuration,
		Timeout:  ec.FailureBreakDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < ec.FailureMinimumThroughput {
				return false
			}
			failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRate >= ec.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromState, toState := fromGobreakerState(from), fromGobreakerState(to)
			logger.Warn("circuit breaker state changed",
				zap.String("resource", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)
			if b.onChange != nil {
				b.onChange(resource, fromState, toState)
			}
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)

	if ec.Isolate {
		b.isolated.Store(true)
	}

	return b
}

// Execute runs action through the breaker. Per spec.md §4.3, only faults
// classifier.CanCircuitBreak accepts count as breaker failures; every
// other outcome (including a classified-but-non-breaking fault, such as a
// 404) counts as a success for the window but is still returned to the
// caller verbatim — the breaker's job is admission control, not error
// translation.
func (b *CircuitBreaker) Execute(ctx context.Context, action Action) (any, error) {
	if b.isolated.Load() {
		b.logger.Warn("circuit isolated - request rejected")
		return nil, &faults.IsolatedCircuit{Resource: b.resource}
	}

	var actionErr error
	var actionResult any

	_, cbErr := b.cb.Execute(func() (any, error) {
		actionResult, actionErr = action(ctx)
		if actionErr != nil && classifier.CanCircuitBreak(actionErr) {
			return actionResult, actionErr
		}
		return actionResult, nil
	})

	if cbErr == gobreaker.ErrOpenState || cbErr == gobreaker.ErrTooManyRequests {
		return nil, &faults.BrokenCircuit{Resource: b.resource}
	}

	return actionResult, actionErr
}

// State returns the breaker's current externally-visible state.
func (b *CircuitBreaker) State() State {
	if b.isolated.Load() {
		return StateIsolated
	}
	return fromGobreakerState(b.cb.State())
}

// Isolate administratively forces the breaker into the Isolated state.
// Every execution fails with IsolatedCircuit until Reset is called.
// Registry.Clear() does not call Reset; it drops the pipeline, and the
// rebuilt breaker starts isolated only if its config sets Isolate=true.
func (b *CircuitBreaker) Isolate() {
	b.isolated.Store(true)
}

// Reset clears the isolation flag, returning control to gobreaker's own
// state machine (which resumes from wherever its internal counts left
// off).
func (b *CircuitBreaker) Reset() {
	b.isolated.Store(false)
}

// Counts returns the current window counts, useful for diagnostics.
func (b *CircuitBreaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// Close releases any resources held by the breaker. gobreaker itself
// needs no teardown; Close exists so the registry can tear down a
// pipeline's strategies uniformly via multierr.Combine.
func (b *CircuitBreaker) Close() error {
	return nil
}

func fromGobreakerState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
