package pipeline

// Key identifies a cached pipeline. Per spec.md §3 ("PipelineKey"), the
// registry guarantees exactly one pipeline instance per key between
// Clear() calls.
type Key struct {
	EndpointName           string
	Resource               string
	HandlesExecutionFaults bool
}
