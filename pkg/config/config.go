// Package config binds the hierarchical endpoint configuration described
// in spec.md §6 (Api.Endpoints.<Name>.*), validates it, and exposes
// fluent copy helpers in the style of the reference corpus's
// ResilientConfig/LayerConfig.
package config

import (
	"errors"
	"time"
)

// ErrInvalidConfig is returned when an EndpointConfig fails validation.
var ErrInvalidConfig = errors.New("config: invalid endpoint configuration")

// EndpointConfig is an immutable snapshot describing one dependency.
// Instances should be treated as value types: callers get a copy from
// Config.Endpoint and mutate via the With* helpers, never in place.
type EndpointConfig struct {
	// Name is the unique identifier for this endpoint, e.g. "movies".
	Name string

	// URI is the base address of the upstream dependency.
	URI string

	// Timeout is the logical operation timeout; the pipeline enforces
	// Timeout+1s internally (spec.md §4.4).
	Timeout time.Duration

	// FailureThreshold is the failure ratio (0..1) that trips the breaker.
	FailureThreshold float64
	// FailureSamplingDuration is the rolling window over which the
	// failure ratio is computed.
	FailureSamplingDuration time.Duration
	// FailureMinimumThroughput is the minimum number of requests in the
	// window before the failure ratio is considered meaningful.
	FailureMinimumThroughput uint32
	// FailureBreakDuration is how long the breaker stays open before
	// moving to half-open.
	FailureBreakDuration time.Duration

	// Retries is the maximum number of retry attempts (0 disables retry).
	Retries int
	// RetryDelaySeed is the initial/minimum decorrelated-jitter delay.
	RetryDelaySeed time.Duration
	// RetryDelayMaximum caps the decorrelated-jitter delay.
	RetryDelayMaximum time.Duration

	// RateLimit is the token bucket capacity and steady-state refill
	// count per RateLimitPeriod. 0 disables rate limiting.
	RateLimit int
	// RateLimitPeriod is the replenishment period for RateLimit tokens.
	RateLimitPeriod time.Duration

	// Isolate forces the circuit breaker into the Isolated state from
	// creation, until cleared by Reload with Isolate=false.
	Isolate bool
}

// DefaultEndpointConfig returns sane defaults for a new endpoint. Callers
// should start here and override only what they need.
func DefaultEndpointConfig(name string) EndpointConfig {
	return EndpointConfig{
		Name:                     name,
		Timeout:                  5 * time.Second,
		FailureThreshold:         0.5,
		FailureSamplingDuration:  30 * time.Second,
		FailureMinimumThroughput: 10,
		FailureBreakDuration:     30 * time.Second,
		Retries:                  2,
		RetryDelaySeed:           200 * time.Millisecond,
		RetryDelayMaximum:        5 * time.Second,
		RateLimit:                0,
		RateLimitPeriod:          time.Second,
		Isolate:                  false,
	}
}

// Validate checks that the configuration is internally consistent.
func (c EndpointConfig) Validate() error {
	if c.Name == "" {
		return ErrInvalidConfig
	}
	if c.Timeout <= 0 {
		return ErrInvalidConfig
	}
	if c.FailureThreshold < 0 || c.FailureThreshold > 1 {
		return ErrInvalidConfig
	}
	if c.FailureSamplingDuration < 0 || c.FailureBreakDuration < 0 {
		return ErrInvalidConfig
	}
	if c.Retries < 0 {
		return ErrInvalidConfig
	}
	if c.RetryDelaySeed < 0 || c.RetryDelayMaximum < 0 {
		return ErrInvalidConfig
	}
	if c.RetryDelayMaximum > 0 && c.RetryDelaySeed > c.RetryDelayMaximum {
		return ErrInvalidConfig
	}
	if c.RateLimit < 0 {
		return ErrInvalidConfig
	}
	if c.RateLimit > 0 && c.RateLimitPeriod <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// WithTimeout returns a copy of c with Timeout overridden.
func (c EndpointConfig) WithTimeout(timeout time.Duration) EndpointConfig {
	c.Timeout = timeout
	return c
}

// WithRetries returns a copy of c with the retry settings overridden.
func (c EndpointConfig) WithRetries(retries int, seed, max time.Duration) EndpointConfig {
	c.Retries = retries
	c.RetryDelaySeed = seed
	c.RetryDelayMaximum = max
	return c
}

// WithRateLimit returns a copy of c with the rate-limit settings overridden.
func (c EndpointConfig) WithRateLimit(limit int, period time.Duration) EndpointConfig {
	c.RateLimit = limit
	c.RateLimitPeriod = period
	return c
}

// WithIsolate returns a copy of c with Isolate overridden.
func (c EndpointConfig) WithIsolate(isolate bool) EndpointConfig {
	c.Isolate = isolate
	return c
}

// Config is the top-level, read-through configuration snapshot: one
// EndpointConfig per named dependency.
type Config struct {
	Endpoints map[string]EndpointConfig
}

// Endpoint returns a snapshot copy of the named endpoint's configuration.
// Per spec.md §3, EndpointConfig snapshots are per-lookup: callers never
// get a pointer into the live Config.
func (c Config) Endpoint(name string) (EndpointConfig, bool) {
	ec, ok := c.Endpoints[name]
	return ec, ok
}

// Validate validates every endpoint in the configuration.
func (c Config) Validate() error {
	for name, ec := range c.Endpoints {
		if ec.Name == "" {
			ec.Name = name
		}
		if err := ec.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Source produces a Config snapshot, e.g. from a YAML file or a database
// table. Reload (pkg/core) calls Load again and, on success, atomically
// swaps the Core's snapshot and clears the registry.
type Source interface {
	Load() (Config, error)
}

// Merge overlays overlay's endpoints on top of base, with overlay winning
// on name conflicts. Used to layer a centrally-managed source (e.g.
// Postgres) over a static YAML baseline.
func Merge(base, overlay Config) Config {
	merged := Config{Endpoints: make(map[string]EndpointConfig, len(base.Endpoints)+len(overlay.Endpoints))}
	for name, ec := range base.Endpoints {
		merged.Endpoints[name] = ec
	}
	for name, ec := range overlay.Endpoints {
		merged.Endpoints[name] = ec
	}
	return merged
}
