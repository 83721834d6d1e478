// Package registry caches built pipelines keyed by (endpoint, resource,
// handlesExecutionFaults), guaranteeing at-most-one concurrent build per
// key, per spec.md §4.8 and §3 Invariant 1.
package registry

import (
	"sync"

	"resilience-pipeline/pkg/breaker"
	"resilience-pipeline/pkg/pipeline"

	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
)

// Builder constructs a new Pipeline for key. It is invoked at most once
// per key between Clear() calls, even under concurrent lookups.
type Builder func(key pipeline.Key) (*pipeline.Pipeline, error)

// Registry is a keyed cache of built pipelines. It uses a
// singleflight.Group the same way the reference corpus's cache chain uses
// one to collapse concurrent cache-population calls onto a single
// in-flight build.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[pipeline.Key]*pipeline.Pipeline
	isolated  map[string]bool
	sf        singleflight.Group
}

// New builds an empty registry.
func New() *Registry {
	return &Registry{
		pipelines: make(map[pipeline.Key]*pipeline.Pipeline),
		isolated:  make(map[string]bool),
	}
}

// GetOrAdd returns the cached pipeline for key, building it with builder
// if absent. Concurrent callers requesting the same key observe exactly
// one call to builder and share its result.
func (r *Registry) GetOrAdd(key pipeline.Key, builder Builder) (*pipeline.Pipeline, error) {
	r.mu.RLock()
	if p, ok := r.pipelines[key]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	r.mu.RUnlock()

	sfKey := sfKeyFor(key)
	v, err, _ := r.sf.Do(sfKey, func() (any, error) {
		r.mu.RLock()
		if p, ok := r.pipelines[key]; ok {
			r.mu.RUnlock()
			return p, nil
		}
		r.mu.RUnlock()

		p, err := builder(key)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if r.isolated[key.EndpointName] {
			p.Isolate()
		}
		r.pipelines[key] = p
		r.mu.Unlock()

		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*pipeline.Pipeline), nil
}

// Isolate administratively isolates every cached (and future) pipeline
// for endpointName, per spec.md §4.3. The flag survives until Clear() is
// called with the endpoint's Isolate left false in the reloaded config.
func (r *Registry) Isolate(endpointName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.isolated[endpointName] = true
	for key, p := range r.pipelines {
		if key.EndpointName == endpointName {
			p.Isolate()
		}
	}
}

// ClearIsolation drops the administrative isolation flag for
// endpointName. It does not itself reopen any breaker; that happens on
// the next Clear() rebuild, or immediately if the caller also resets the
// cached pipeline's breaker.
func (r *Registry) ClearIsolation(endpointName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.isolated, endpointName)
}

// Clear drops every cached pipeline and resets all administrative
// isolation flags, per spec.md §3 Invariant 2. In-flight executions hold
// their own reference to the pipeline they were dispatched against and
// complete unaffected; only future GetOrAdd calls observe the rebuild.
func (r *Registry) Clear() error {
	r.mu.Lock()
	old := r.pipelines
	r.pipelines = make(map[pipeline.Key]*pipeline.Pipeline)
	r.isolated = make(map[string]bool)
	r.mu.Unlock()

	var errs error
	for _, p := range old {
		errs = multierr.Append(errs, p.Close())
	}
	return errs
}

// State returns the breaker state of the cached pipeline for key, if any.
func (r *Registry) State(key pipeline.Key) (breaker.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[key]
	if !ok {
		return 0, false
	}
	return p.BreakerState(), true
}

// Len reports the number of cached pipelines, used by diagnostics/tests.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pipelines)
}

func sfKeyFor(key pipeline.Key) string {
	if key.HandlesExecutionFaults {
		return key.EndpointName + "\x00" + key.Resource + "\x00f"
	}
	return key.EndpointName + "\x00" + key.Resource + "\x00n"
}
