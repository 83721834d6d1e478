// Package executor implements the public entry point from spec.md §4.9:
// Execute acquires a ResilienceContext, resolves the cached pipeline for
// (endpoint, resource, handlesExecutionFaults), runs it, and applies the
// caller-side HTTP-status post-processing before the raw response ever
// reaches pipeline-level fault classification.
package executor

import (
	"context"

	"resilience-pipeline/pkg/config"
	"resilience-pipeline/pkg/fallback"
	"resilience-pipeline/pkg/faults"
	"resilience-pipeline/pkg/logging"
	"resilience-pipeline/pkg/pipeline"
	"resilience-pipeline/pkg/ratelimit"
	"resilience-pipeline/pkg/registry"
	"resilience-pipeline/pkg/telemetry"
)

// RawResponse is the untranslated outcome of a caller-supplied action
// before §4.9 step 4's post-processing runs: a status code and an
// already-decoded body.
type RawResponse struct {
	StatusCode int
	Body       any
}

// Action performs the underlying call and returns its raw HTTP-style
// response. A non-nil error here is assumed to be a transport-level
// failure (connection fault); status-code handling belongs in the
// RawResponse, not the error.
type Action[T any] func(ctx context.Context) (RawResponse, error)

// Options configures one Execute call. Method feeds the idempotency gate
// in classifier.CanRetry. URI is used only to build a DependencyFault
// when a non-success status isn't otherwise handled.
type Options[T any] struct {
	Method                string
	URI                   string
	HandleExecutionFaults bool
	ThrowIfNotFound       bool
	OnBadRequest          func(ctx context.Context, resp RawResponse)
	FallbackGenerator     fallback.Generator[T]
}

// ConfigSource returns the live snapshot for one endpoint, per spec.md §3
// ("EndpointConfig is read-through from a live config source").
type ConfigSource func(endpoint string) (config.EndpointConfig, bool)

// Executor is bound to a single upstream endpoint and its operation
// prefix. All operations on the endpoint share one Registry, BucketStore,
// and telemetry Broadcast.
type Executor struct {
	endpoint        string
	operationPrefix string
	configSource    ConfigSource
	registry        *registry.Registry
	store           ratelimit.BucketStore
	listener        telemetry.Listener
	logger          *logging.Logger
}

// New builds an Executor for one endpoint.
func New(endpoint, operationPrefix string, configSource ConfigSource, reg *registry.Registry, store ratelimit.BucketStore, listener telemetry.Listener, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Global()
	}
	return &Executor{
		endpoint:        endpoint,
		operationPrefix: operationPrefix,
		configSource:    configSource,
		registry:        reg,
		store:           store,
		listener:        listener,
		logger:          logger.Named("executor"),
	}
}

// Execute runs action through the endpoint's resilience pipeline, per
// spec.md §4.9. operationName is the unprefixed operation (e.g.
// "GetMovie"); it also becomes the circuit breaker's resource, so
// distinct operations on the same endpoint shard independently.
func Execute[T any](ctx context.Context, ex *Executor, rateLimitPartition, operationName string, action Action[T], opts Options[T]) (T, error) {
	var zero T

	ec, ok := ex.configSource(ex.endpoint)
	if !ok {
		ec = config.DefaultEndpointConfig(ex.endpoint)
	}

	operationKey := ex.operationPrefix + "." + operationName
	rc := pipeline.AcquireContext(operationKey, rateLimitPartition, opts.Method, ctx)
	defer pipeline.ReleaseContext(rc)

	// Stamp the correlation id onto ctx so every strategy Execute call
	// below — rate limit, timeout, breaker, retry, fallback — can tag its
	// log lines and telemetry events with the same ExecutionID.
	ctx = telemetry.ContextWithExecutionID(ctx, rc.ExecutionID.String())

	key := pipeline.Key{
		EndpointName:           ex.endpoint,
		Resource:               operationName,
		HandlesExecutionFaults: opts.HandleExecutionFaults,
	}

	p, err := ex.registry.GetOrAdd(key, func(k pipeline.Key) (*pipeline.Pipeline, error) {
		return pipeline.Build(k, ec, ex.store, opts.Method, operationKey, ex.logger, ex.listener), nil
	})
	if err != nil {
		return zero, err
	}

	wrapped := func(ctx context.Context) (any, error) {
		return postProcess(ctx, ex.endpoint, action, opts)
	}

	run := func(ctx context.Context) (T, error) {
		raw, err := p.Execute(ctx, rateLimitPartition, operationKey, wrapped)
		if err != nil {
			return zero, err
		}
		typed, ok := raw.(T)
		if !ok {
			return zero, nil
		}
		return typed, nil
	}

	// Fallback wraps the composite only when the caller enables it, by
	// supplying a FallbackGenerator or setting HandleExecutionFaults.
	if opts.FallbackGenerator == nil && !opts.HandleExecutionFaults {
		return run(ctx)
	}

	fb := fallback.New[T](opts.HandleExecutionFaults, operationKey, ex.logger, ex.listener)
	return fb.Execute(ctx, run, opts.FallbackGenerator)
}

// postProcess implements spec.md §4.9 step 4: it runs before the result
// ever reaches pipeline-level classification, so a 404/400 handled here
// never counts as a circuit-breaker failure or a retry trigger.
func postProcess[T any](ctx context.Context, endpoint string, action Action[T], opts Options[T]) (any, error) {
	var zero T

	raw, err := action(ctx)
	if err != nil {
		return zero, err
	}

	switch {
	case raw.StatusCode == 404 && !opts.ThrowIfNotFound:
		return zero, nil
	case raw.StatusCode == 400 && opts.OnBadRequest != nil:
		opts.OnBadRequest(ctx, raw)
		return zero, nil
	case raw.StatusCode >= 200 && raw.StatusCode < 300:
		if typed, ok := raw.Body.(T); ok {
			return typed, nil
		}
		return zero, nil
	default:
		uri := opts.URI
		if uri == "" {
			uri = endpoint
		}
		return zero, faults.NewDependencyFault(opts.Method, uri, raw.StatusCode)
	}
}
