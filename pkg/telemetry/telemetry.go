// Package telemetry implements the event-listener fan-out described in
// spec.md §4.10: every strategy publishes an Event, and each registered
// Listener decides what to do with it (metrics, logs, anything else).
package telemetry

import "strings"

// Event is one occurrence emitted by a strategy during execution.
type Event struct {
	Strategy     string // "retry", "timeout", "circuitbreaker", "ratelimiter", "fallback"
	Name         string // e.g. "on-retry.<n>", "on-timeout", "on-broken", "on-opened", "on-closed", "on-half-open", "on-rate-limiter-rejected", "on-fallback"
	OperationKey string
	ExecutionID  string // correlates every event/log line for one Execute[T] call
	Delay        string // retry-specific: the computed backoff delay
	Duration     string // timeout-specific: the enforced deadline
	Err          error
}

// MetricName formats the literal dotted metric name from spec.md §4.10:
// "polly.<strategy>.<event>.<operationKey>", with the operation key
// lower-cased.
func (e Event) MetricName() string {
	return "polly." + e.Strategy + "." + e.Name + "." + strings.ToLower(e.OperationKey)
}

// Listener subscribes to every strategy event.
type Listener interface {
	OnEvent(e Event)
}

// Broadcast fans out one event to every registered listener.
type Broadcast struct {
	listeners []Listener
}

// NewBroadcast builds a Broadcast over the given listeners.
func NewBroadcast(listeners ...Listener) *Broadcast {
	return &Broadcast{listeners: listeners}
}

// OnEvent implements Listener, forwarding e to every registered listener.
func (b *Broadcast) OnEvent(e Event) {
	for _, l := range b.listeners {
		l.OnEvent(e)
	}
}

// Add registers an additional listener.
func (b *Broadcast) Add(l Listener) {
	b.listeners = append(b.listeners, l)
}
