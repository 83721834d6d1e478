// Package pipeline composes the rate-limit, circuit-breaker, timeout, and
// retry strategies into the fixed order from spec.md §4.7:
// Retry(CircuitBreaker(Timeout(RateLimit(op)))). Fallback, when enabled,
// wraps the whole composite and is applied by pkg/executor.
package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ResilienceContext is the per-invocation property bag threaded through a
// pipeline execution: it carries the correlation id, the metrics key, the
// rate-limit partition, and the caller's cancellation signal.
type ResilienceContext struct {
	ExecutionID        uuid.UUID
	OperationKey       string
	RateLimitPartition string
	Method             string
	Cancellation       context.Context
}

// contextPool recycles ResilienceContext values across executions, per
// spec.md §4.9 ("Acquire a ResilienceContext from a pool").
var contextPool = sync.Pool{
	New: func() any { return &ResilienceContext{} },
}

// AcquireContext takes a ResilienceContext from the pool and populates it.
func AcquireContext(operationKey, rateLimitPartition, method string, cancellation context.Context) *ResilienceContext {
	rc := contextPool.Get().(*ResilienceContext)
	rc.ExecutionID = uuid.New()
	rc.OperationKey = operationKey
	rc.RateLimitPartition = rateLimitPartition
	rc.Method = method
	rc.Cancellation = cancellation
	return rc
}

// ReleaseContext returns rc to the pool. Callers must not use rc after
// calling ReleaseContext.
func ReleaseContext(rc *ResilienceContext) {
	rc.ExecutionID = uuid.UUID{}
	rc.OperationKey = ""
	rc.RateLimitPartition = ""
	rc.Method = ""
	rc.Cancellation = nil
	contextPool.Put(rc)
}
