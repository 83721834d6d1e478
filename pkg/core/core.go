// Package core ties the registry, config, telemetry, bucket store, and
// logger into a single long-lived service value, per spec.md §9 Design
// Notes ("express them as a single long-lived resilience core service
// value"), grounded on the reference corpus's Chain as the one object
// wiring layers, writers, and singleflight together.
package core

import (
	"sync"

	"resilience-pipeline/pkg/config"
	"resilience-pipeline/pkg/executor"
	"resilience-pipeline/pkg/logging"
	"resilience-pipeline/pkg/ratelimit"
	"resilience-pipeline/pkg/registry"
	"resilience-pipeline/pkg/telemetry"

	"go.uber.org/multierr"
)

// Core is the process-wide resilience service: one registry, one config
// snapshot (read-through from Sources), one bucket store, one telemetry
// broadcast, and one logger, shared by every Executor built on top of it.
type Core struct {
	mu       sync.RWMutex
	cfg      config.Config
	sources  []config.Source
	registry *registry.Registry
	store    ratelimit.BucketStore
	tel      *telemetry.Broadcast
	logger   *logging.Logger
}

// New builds a Core from an already-loaded config snapshot. A Core built
// by New has no config.Sources; Load builds one whose sources Reload()
// re-reads in order, each overlaying the previous (the last source wins
// on conflict, per spec.md §6's "DB wins on conflict" rule when a
// Postgres source is layered over YAML).
func New(cfg config.Config, store ratelimit.BucketStore, logger *logging.Logger, listeners ...telemetry.Listener) *Core {
	if logger == nil {
		logger = logging.Global()
	}
	return &Core{
		cfg:      cfg,
		registry: registry.New(),
		store:    store,
		tel:      telemetry.NewBroadcast(listeners...),
		logger:   logger.Named("core"),
	}
}

// Load builds a Core by reading every source in order and merging them,
// the last source overlaying the previous.
func Load(sources []config.Source, store ratelimit.BucketStore, logger *logging.Logger, listeners ...telemetry.Listener) (*Core, error) {
	cfg, err := loadAll(sources)
	if err != nil {
		return nil, err
	}
	c := New(cfg, store, logger, listeners...)
	c.sources = sources
	return c, nil
}

func loadAll(sources []config.Source) (config.Config, error) {
	merged := config.Config{Endpoints: map[string]config.EndpointConfig{}}
	for _, src := range sources {
		loaded, err := src.Load()
		if err != nil {
			return config.Config{}, err
		}
		merged = config.Merge(merged, loaded)
	}
	if err := merged.Validate(); err != nil {
		return config.Config{}, err
	}
	return merged, nil
}

// Endpoint returns a snapshot of the named endpoint's configuration.
func (c *Core) Endpoint(name string) (config.EndpointConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Endpoint(name)
}

// Registry returns the shared pipeline registry.
func (c *Core) Registry() *registry.Registry {
	return c.registry
}

// Telemetry returns the shared telemetry broadcast.
func (c *Core) Telemetry() *telemetry.Broadcast {
	return c.tel
}

// Logger returns the core's logger.
func (c *Core) Logger() *logging.Logger {
	return c.logger
}

// Executor builds an Executor bound to endpoint/operationPrefix, sharing
// this Core's registry, bucket store, telemetry, and config.
func (c *Core) Executor(endpoint, operationPrefix string) *executor.Executor {
	return executor.New(endpoint, operationPrefix, c.Endpoint, c.registry, c.store, c.tel, c.logger)
}

// Reload re-reads every configured Source (in order, last wins on
// conflict), swaps the live snapshot, and clears the registry so every
// endpoint picks up its new EndpointConfig and every breaker restarts
// closed (except those whose reloaded config sets Isolate=true). Per
// spec.md §3 Invariant 2, in-flight executions complete using the
// pipeline they already captured.
func (c *Core) Reload() error {
	cfg, err := loadAll(c.sources)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()

	return c.registry.Clear()
}

// Isolate administratively forces endpoint's breaker(s) open until the
// next Reload with Isolate=false in its configuration.
func (c *Core) Isolate(endpoint string) {
	c.registry.Isolate(endpoint)
}

// Close tears down the core's owned resources: the registry's cached
// pipelines and the bucket store, if it implements io.Closer-like
// behavior. Errors are aggregated losslessly rather than keeping only
// the last one, mirroring the reference corpus's Chain.Close discipline.
func (c *Core) Close() error {
	var errs error
	errs = multierr.Append(errs, c.registry.Clear())
	if closer, ok := c.store.(interface{ Close() error }); ok {
		errs = multierr.Append(errs, closer.Close())
	}
	return errs
}
