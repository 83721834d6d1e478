package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"resilience-pipeline/pkg/config"
	"resilience-pipeline/pkg/faults"
	"resilience-pipeline/pkg/logging"
	"resilience-pipeline/pkg/ratelimit"
)

func testEndpointConfig() config.EndpointConfig {
	ec := config.DefaultEndpointConfig("movies")
	ec.Timeout = 100 * time.Millisecond
	ec.Retries = 2
	ec.RetryDelaySeed = time.Millisecond
	ec.RetryDelayMaximum = 5 * time.Millisecond
	ec.FailureMinimumThroughput = 100
	ec.FailureThreshold = 0.99
	ec.FailureSamplingDuration = time.Minute
	ec.FailureBreakDuration = time.Second
	ec.RateLimit = 0
	return ec
}

func TestPipelineExecutesSuccessfulAction(t *testing.T) {
	store := ratelimit.NewMemoryBucketStore(time.Minute)
	defer store.Close()

	key := Key{EndpointName: "movies", Resource: "get", HandlesExecutionFaults: false}
	p := Build(key, testEndpointConfig(), store, "GET", "movies.get", logging.NewNoOpLogger(), nil)

	result, err := p.Execute(context.Background(), "tenant-a", "movies.get", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil || result != "ok" {
		t.Fatalf("expected success, got %v, %v", result, err)
	}
}

func TestPipelineRetriesThenSucceeds(t *testing.T) {
	store := ratelimit.NewMemoryBucketStore(time.Minute)
	defer store.Close()

	key := Key{EndpointName: "movies", Resource: "get", HandlesExecutionFaults: false}
	p := Build(key, testEndpointConfig(), store, "GET", "movies.get", logging.NewNoOpLogger(), nil)

	var calls int32
	result, err := p.Execute(context.Background(), "tenant-a", "movies.get", func(ctx context.Context) (any, error) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			return nil, faults.NewDependencyFault("GET", "/x", 503)
		}
		return "ok", nil
	})
	if err != nil || result != "ok" {
		t.Fatalf("expected eventual success, got %v, %v", result, err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestPipelineRateLimitRejectionNeverInvokesAction(t *testing.T) {
	store := ratelimit.NewMemoryBucketStore(time.Minute)
	defer store.Close()

	ec := testEndpointConfig()
	ec.RateLimit = 1
	ec.RateLimitPeriod = time.Minute

	key := Key{EndpointName: "movies", Resource: "get", HandlesExecutionFaults: false}
	p := Build(key, ec, store, "GET", "movies.get", logging.NewNoOpLogger(), nil)

	noop := func(ctx context.Context) (any, error) { return "ok", nil }

	if _, err := p.Execute(context.Background(), "tenant-a", "movies.get", noop); err != nil {
		t.Fatalf("expected first call to pass, got %v", err)
	}

	var invoked bool
	_, err := p.Execute(context.Background(), "tenant-a", "movies.get", func(ctx context.Context) (any, error) {
		invoked = true
		return "ok", nil
	})
	if !faults.IsRateLimited(err) {
		t.Fatalf("expected RateLimitRejected, got %v", err)
	}
	if invoked {
		t.Fatal("action must not run when the rate limit rejects the call")
	}
}

func TestPipelineBreakerOpensAcrossRetries(t *testing.T) {
	store := ratelimit.NewMemoryBucketStore(time.Minute)
	defer store.Close()

	ec := testEndpointConfig()
	ec.FailureMinimumThroughput = 1
	ec.FailureThreshold = 0.5
	ec.Retries = 5

	key := Key{EndpointName: "movies", Resource: "get", HandlesExecutionFaults: false}
	p := Build(key, ec, store, "GET", "movies.get", logging.NewNoOpLogger(), nil)

	var calls int32
	_, err := p.Execute(context.Background(), "tenant-a", "movies.get", func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, faults.NewDependencyFault("GET", "/x", 503)
	})
	if !faults.IsBrokenCircuit(err) {
		t.Fatalf("expected the breaker to open partway through the retry loop, got %v", err)
	}
	if calls >= 6 {
		t.Fatalf("expected the breaker to cut the retry loop short, got %d calls", calls)
	}
}
