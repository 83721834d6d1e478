package ratelimit

import (
	"context"
	"time"

	"resilience-pipeline/pkg/config"
	"resilience-pipeline/pkg/faults"
	"resilience-pipeline/pkg/logging"
	"resilience-pipeline/pkg/telemetry"

	"go.uber.org/zap"
)

// Action is the operation the rate-limit strategy admits or rejects. It
// matches the shape every pipeline stage wraps in pkg/pipeline.
type Action func(ctx context.Context) (any, error)

// Strategy is the rate-limit pipeline stage: a non-blocking admission
// check against a BucketStore, keyed by (endpoint, partition). Per
// spec.md §4.2, when RateLimit <= 0 the strategy is a no-op that always
// admits.
type Strategy struct {
	store    BucketStore
	endpoint string
	limit    int
	period   time.Duration
	logger   *logging.Logger
}

// NewStrategy builds the rate-limit stage for one endpoint.
func NewStrategy(store BucketStore, ec config.EndpointConfig, logger *logging.Logger) *Strategy {
	if logger == nil {
		logger = logging.Global()
	}
	return &Strategy{
		store:    store,
		endpoint: ec.Name,
		limit:    ec.RateLimit,
		period:   ec.RateLimitPeriod,
		logger:   logger.Named("ratelimit"),
	}
}

// Execute admits or rejects the call for partition, then runs action.
// Per spec.md Invariant 4, a rejection here never touches circuit-breaker
// statistics — it returns before action is invoked at all.
func (s *Strategy) Execute(ctx context.Context, partition, operationKey string, action Action) (any, error) {
	if s.limit <= 0 {
		return action(ctx)
	}

	if !s.store.Acquire(s.endpoint, partition, s.limit, s.period) {
		s.logger.Warn("rate limit rejected",
			zap.String("operation_key", operationKey),
			zap.String("partition", partition),
			zap.String("endpoint", s.endpoint),
			zap.String("execution_id", telemetry.ExecutionIDFromContext(ctx)),
		)
		return nil, &faults.RateLimitRejected{Partition: partition}
	}

	return action(ctx)
}
