package registry

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"resilience-pipeline/pkg/breaker"
	"resilience-pipeline/pkg/config"
	"resilience-pipeline/pkg/logging"
	"resilience-pipeline/pkg/pipeline"
	"resilience-pipeline/pkg/ratelimit"
)

func buildCounting(store ratelimit.BucketStore, counter *int32) Builder {
	return func(key pipeline.Key) (*pipeline.Pipeline, error) {
		atomic.AddInt32(counter, 1)
		ec := config.DefaultEndpointConfig(key.EndpointName)
		return pipeline.Build(key, ec, store, "GET", key.EndpointName+"."+key.Resource, logging.NewNoOpLogger(), nil), nil
	}
}

func TestGetOrAddBuildsOnlyOnce(t *testing.T) {
	store := ratelimit.NewMemoryBucketStore(time.Minute)
	defer store.Close()

	r := New()
	var builds int32
	key := pipeline.Key{EndpointName: "movies", Resource: "get"}

	for i := 0; i < 5; i++ {
		if _, err := r.GetOrAdd(key, buildCounting(store, &builds)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if builds != 1 {
		t.Fatalf("expected exactly one build, got %d", builds)
	}
}

func TestGetOrAddConcurrentCallersShareOneBuild(t *testing.T) {
	store := ratelimit.NewMemoryBucketStore(time.Minute)
	defer store.Close()

	r := New()
	var builds int32
	key := pipeline.Key{EndpointName: "movies", Resource: "get"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.GetOrAdd(key, buildCounting(store, &builds)); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if builds != 1 {
		t.Fatalf("expected exactly one build across concurrent callers, got %d", builds)
	}
}

func TestDistinctKeysBuildIndependently(t *testing.T) {
	store := ratelimit.NewMemoryBucketStore(time.Minute)
	defer store.Close()

	r := New()
	var builds int32

	if _, err := r.GetOrAdd(pipeline.Key{EndpointName: "movies", Resource: "get"}, buildCounting(store, &builds)); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetOrAdd(pipeline.Key{EndpointName: "movies", Resource: "create"}, buildCounting(store, &builds)); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetOrAdd(pipeline.Key{EndpointName: "movies", Resource: "get", HandlesExecutionFaults: true}, buildCounting(store, &builds)); err != nil {
		t.Fatal(err)
	}

	if builds != 3 {
		t.Fatalf("expected 3 independent builds, got %d", builds)
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 cached pipelines, got %d", r.Len())
	}
}

func TestClearDropsCacheAndRebuildsOnNextLookup(t *testing.T) {
	store := ratelimit.NewMemoryBucketStore(time.Minute)
	defer store.Close()

	r := New()
	var builds int32
	key := pipeline.Key{EndpointName: "movies", Resource: "get"}

	r.GetOrAdd(key, buildCounting(store, &builds))
	if err := r.Clear(); err != nil {
		t.Fatalf("unexpected error clearing: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("expected registry to be empty after Clear, got %d", r.Len())
	}

	r.GetOrAdd(key, buildCounting(store, &builds))
	if builds != 2 {
		t.Fatalf("expected a rebuild after Clear, got %d total builds", builds)
	}
}

func TestIsolateForcesCachedAndFutureBreakersOpen(t *testing.T) {
	store := ratelimit.NewMemoryBucketStore(time.Minute)
	defer store.Close()

	r := New()
	var builds int32
	key := pipeline.Key{EndpointName: "movies", Resource: "get"}

	p, _ := r.GetOrAdd(key, buildCounting(store, &builds))
	if p.BreakerState() == breaker.StateIsolated {
		t.Fatal("expected breaker not isolated before Isolate is called")
	}

	r.Isolate("movies")

	if p.BreakerState() != breaker.StateIsolated {
		t.Fatalf("expected existing pipeline's breaker to become isolated, got %v", p.BreakerState())
	}

	other := pipeline.Key{EndpointName: "movies", Resource: "create"}
	p2, _ := r.GetOrAdd(other, buildCounting(store, &builds))
	if p2.BreakerState() != breaker.StateIsolated {
		t.Fatalf("expected a newly built pipeline for an isolated endpoint to start isolated, got %v", p2.BreakerState())
	}
}
