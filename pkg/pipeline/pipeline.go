package pipeline

import (
	"context"

	"resilience-pipeline/pkg/breaker"
	"resilience-pipeline/pkg/config"
	"resilience-pipeline/pkg/faults"
	"resilience-pipeline/pkg/logging"
	"resilience-pipeline/pkg/ratelimit"
	"resilience-pipeline/pkg/retry"
	"resilience-pipeline/pkg/telemetry"
	"resilience-pipeline/pkg/timeout"
)

// Action is the operation a pipeline wraps.
type Action func(ctx context.Context) (any, error)

// Pipeline is the cached composite of the rate-limit, timeout,
// circuit-breaker, and retry strategies for one (endpoint, resource)
// pair. Fallback is deliberately not part of the cached composite: it is
// generic over the caller's result type and is applied by the executor
// around Pipeline.Execute, per spec.md §4.7 ("Fallback wraps the whole
// composite").
type Pipeline struct {
	Key Key

	rateLimit *ratelimit.Strategy
	timeout   *timeout.Strategy
	breaker   *breaker.CircuitBreaker
	retry     *retry.Strategy
	listener  telemetry.Listener
}

// Build assembles a Pipeline for one endpoint/resource/operation, in the
// fixed order from spec.md §4.7: Retry(CircuitBreaker(Timeout(RateLimit(op)))).
// listener, if non-nil, receives every strategy event per spec.md §4.10;
// pass nil to run without telemetry.
func Build(key Key, ec config.EndpointConfig, store ratelimit.BucketStore, method, operationKey string, logger *logging.Logger, listener telemetry.Listener) *Pipeline {
	return &Pipeline{
		Key:       key,
		rateLimit: ratelimit.NewStrategy(store, ec, logger),
		timeout:   timeout.New(ec.Timeout, operationKey, logger),
		breaker:   breaker.New(key.Resource, ec, logger, breakerChangeEvent(listener, operationKey)),
		retry:     retry.New(ec, method, operationKey, logger, listener),
		listener:  listener,
	}
}

// Execute runs action through the composed pipeline for the given
// rate-limit partition and operation key.
func (p *Pipeline) Execute(ctx context.Context, partition, operationKey string, action Action) (any, error) {
	rateLimited := func(ctx context.Context) (any, error) {
		result, err := p.rateLimit.Execute(ctx, partition, operationKey, ratelimit.Action(action))
		if err != nil && faults.IsRateLimited(err) {
			p.emit(telemetry.Event{Strategy: "ratelimiter", Name: "on-rate-limiter-rejected", OperationKey: operationKey, ExecutionID: telemetry.ExecutionIDFromContext(ctx)})
		}
		return result, err
	}
	timedOut := func(ctx context.Context) (any, error) {
		result, err := p.timeout.Execute(ctx, rateLimited)
		if err != nil && faults.IsTimeout(err) {
			p.emit(telemetry.Event{Strategy: "timeout", Name: "on-timeout", OperationKey: operationKey, ExecutionID: telemetry.ExecutionIDFromContext(ctx)})
		}
		return result, err
	}
	breakered := func(ctx context.Context) (any, error) {
		result, err := p.breaker.Execute(ctx, timedOut)
		if err != nil && faults.IsBrokenCircuit(err) {
			p.emit(telemetry.Event{Strategy: "circuitbreaker", Name: "on-broken", OperationKey: operationKey, ExecutionID: telemetry.ExecutionIDFromContext(ctx)})
		}
		return result, err
	}
	return p.retry.Execute(ctx, breakered)
}

func (p *Pipeline) emit(e telemetry.Event) {
	if p.listener != nil {
		p.listener.OnEvent(e)
	}
}

// breakerChangeEvent adapts a telemetry.Listener into a
// breaker.StateChangeFunc, translating circuit-breaker state transitions
// into circuitbreaker.on-opened/on-closed events.
func breakerChangeEvent(listener telemetry.Listener, operationKey string) breaker.StateChangeFunc {
	if listener == nil {
		return nil
	}
	return func(resource string, from, to breaker.State) {
		name := "on-half-open"
		switch {
		case to == breaker.StateOpen:
			name = "on-opened"
		case to == breaker.StateClosed:
			name = "on-closed"
		}
		listener.OnEvent(telemetry.Event{Strategy: "circuitbreaker", Name: name, OperationKey: operationKey})
	}
}

// BreakerState exposes the underlying circuit breaker's current state,
// used by administrative isolation and diagnostics.
func (p *Pipeline) BreakerState() breaker.State {
	return p.breaker.State()
}

// Isolate administratively forces this pipeline's breaker open.
func (p *Pipeline) Isolate() {
	p.breaker.Isolate()
}

// Close tears down the pipeline's strategies. Only the breaker currently
// owns anything resembling a resource; Close is here so the registry has
// one uniform teardown call per cached pipeline.
func (p *Pipeline) Close() error {
	return p.breaker.Close()
}
