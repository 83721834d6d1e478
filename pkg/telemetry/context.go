package telemetry

import "context"

// executionIDKey is the context key under which the per-Execute[T] call's
// correlation id travels through every pipeline strategy, so each one can
// tag its log lines and events without the long-lived, cached strategy
// objects needing to know about any single call.
type executionIDKey struct{}

// ContextWithExecutionID returns a copy of ctx carrying id, the
// correlation id minted once per Execute[T] call (see
// pkg/pipeline.AcquireContext).
func ContextWithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey{}, id)
}

// ExecutionIDFromContext returns the correlation id stamped by
// ContextWithExecutionID, or "" if ctx carries none.
func ExecutionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(executionIDKey{}).(string)
	return id
}
