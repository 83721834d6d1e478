// Package faults defines the taxonomy of dependency-call failures that
// flow through the resilience pipeline. Strategies classify on these
// types rather than on transport-level errors so the pipeline has no
// knowledge of net/http, gRPC, or any other wire protocol.
package faults

import (
	"errors"
	"fmt"
)

// Sentinel fault kinds. Concrete faults wrap one of these with
// operation-specific context via fmt.Errorf("...: %w", ...).
var (
	// ErrTimeoutRejected is raised by the timeout strategy when its
	// deadline elapses before the wrapped action completes.
	ErrTimeoutRejected = errors.New("resilience: timeout rejected")

	// ErrRateLimitRejected is raised when the token bucket for the
	// operation's partition has no tokens available.
	ErrRateLimitRejected = errors.New("resilience: rate limit rejected")

	// ErrBrokenCircuit is raised when the circuit breaker is open or
	// half-open and admission is refused.
	ErrBrokenCircuit = errors.New("resilience: circuit broken")

	// ErrIsolatedCircuit is raised when the circuit breaker has been
	// administratively isolated.
	ErrIsolatedCircuit = errors.New("resilience: circuit isolated")

	// ErrCancelledByCaller is raised when the caller's own cancellation
	// signal, not a pipeline-issued timeout, terminated the action.
	ErrCancelledByCaller = errors.New("resilience: cancelled by caller")

	// ErrConnectionFault is raised for transport-level failures that
	// occurred before any response was received.
	ErrConnectionFault = errors.New("resilience: connection fault")

	// ErrUnclassified covers any fault the classifier has no specific
	// rule for; it surfaces verbatim to the caller.
	ErrUnclassified = errors.New("resilience: unclassified fault")
)

// DependencyFault represents a non-success response from the upstream
// dependency: the call completed, but the result itself is a failure.
type DependencyFault struct {
	Method string
	URI    string
	Status int
	Err    error
}

func (f *DependencyFault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("resilience: dependency fault: %s %s -> %d: %v", f.Method, f.URI, f.Status, f.Err)
	}
	return fmt.Sprintf("resilience: dependency fault: %s %s -> %d", f.Method, f.URI, f.Status)
}

func (f *DependencyFault) Unwrap() error { return f.Err }

// NewDependencyFault builds a DependencyFault for a non-success HTTP-style
// response.
func NewDependencyFault(method, uri string, status int) *DependencyFault {
	return &DependencyFault{Method: method, URI: uri, Status: status}
}

// ConnectionFault represents a transport-level failure: the call never
// produced a response (connection refused, host not found, premature EOF).
type ConnectionFault struct {
	Reason string
	Err    error
}

func (f *ConnectionFault) Error() string {
	return fmt.Sprintf("resilience: connection fault (%s): %v", f.Reason, f.Err)
}

func (f *ConnectionFault) Unwrap() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrConnectionFault
}

// NewConnectionFault wraps err as a ConnectionFault with a human-readable
// reason (e.g. "connection refused", "host not found", "premature EOF").
func NewConnectionFault(reason string, err error) *ConnectionFault {
	return &ConnectionFault{Reason: reason, Err: err}
}

// TimeoutRejected is returned by the timeout strategy. It is distinct from
// a caller cancellation: it fires on the pipeline's own deadline.
type TimeoutRejected struct {
	OperationKey string
	Timeout      string
}

func (f *TimeoutRejected) Error() string {
	return fmt.Sprintf("resilience: timeout rejected for %s after %s", f.OperationKey, f.Timeout)
}

func (f *TimeoutRejected) Unwrap() error { return ErrTimeoutRejected }

// RateLimitRejected is returned by the rate-limit strategy when no token
// was available for the given partition.
type RateLimitRejected struct {
	Partition string
}

func (f *RateLimitRejected) Error() string {
	return fmt.Sprintf("resilience: rate limit rejected for partition %q", f.Partition)
}

func (f *RateLimitRejected) Unwrap() error { return ErrRateLimitRejected }

// BrokenCircuit is returned by the circuit breaker when it refuses
// admission because it is open or the half-open probe slot is taken.
type BrokenCircuit struct {
	Resource string
}

func (f *BrokenCircuit) Error() string {
	return fmt.Sprintf("resilience: circuit broken for resource %q", f.Resource)
}

func (f *BrokenCircuit) Unwrap() error { return ErrBrokenCircuit }

// IsolatedCircuit is returned by the circuit breaker when it has been
// administratively isolated via Isolate().
type IsolatedCircuit struct {
	Resource string
}

func (f *IsolatedCircuit) Error() string {
	return fmt.Sprintf("resilience: circuit isolated for resource %q", f.Resource)
}

func (f *IsolatedCircuit) Unwrap() error { return ErrIsolatedCircuit }

// CancelledByCaller wraps the caller's own context cancellation so the
// classifier can distinguish it from a pipeline timeout.
type CancelledByCaller struct {
	Err error
}

func (f *CancelledByCaller) Error() string {
	return fmt.Sprintf("resilience: cancelled by caller: %v", f.Err)
}

func (f *CancelledByCaller) Unwrap() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrCancelledByCaller
}

// IsTimeout reports whether err is (or wraps) a pipeline timeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeoutRejected) }

// IsRateLimited reports whether err is (or wraps) a rate-limit rejection.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimitRejected) }

// IsBrokenCircuit reports whether err is (or wraps) an open-circuit rejection.
func IsBrokenCircuit(err error) bool { return errors.Is(err, ErrBrokenCircuit) }

// IsIsolated reports whether err is (or wraps) an isolated-circuit rejection.
func IsIsolated(err error) bool { return errors.Is(err, ErrIsolatedCircuit) }

// IsCancelledByCaller reports whether err is (or wraps) a caller-originated
// cancellation, as opposed to a pipeline-issued timeout.
func IsCancelledByCaller(err error) bool {
	var cc *CancelledByCaller
	return errors.As(err, &cc) || errors.Is(err, ErrCancelledByCaller)
}

// IsConnectionFault reports whether err is (or wraps) a transport-level
// connection fault.
func IsConnectionFault(err error) bool {
	var cf *ConnectionFault
	return errors.As(err, &cf) || errors.Is(err, ErrConnectionFault)
}

// IsDependencyFault reports whether err is (or wraps) a non-success
// response from the dependency, and if so returns it.
func IsDependencyFault(err error) (*DependencyFault, bool) {
	var df *DependencyFault
	if errors.As(err, &df) {
		return df, true
	}
	return nil, false
}

// Classify returns a coarse string classification of err, used as a
// telemetry label. It mirrors the reference corpus's cache error
// classifier, generalized to this package's fault taxonomy.
func Classify(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsIsolated(err):
		return "isolated_circuit"
	case IsBrokenCircuit(err):
		return "broken_circuit"
	case IsTimeout(err):
		return "timeout"
	case IsRateLimited(err):
		return "rate_limited"
	case IsCancelledByCaller(err):
		return "cancelled_by_caller"
	case IsConnectionFault(err):
		return "connection"
	default:
		if df, ok := IsDependencyFault(err); ok {
			return fmt.Sprintf("dependency_fault_%d", df.Status)
		}
		return "unclassified"
	}
}
