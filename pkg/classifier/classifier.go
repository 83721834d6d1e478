// Package classifier implements the pure predicates that decide whether a
// dependency fault is retryable, circuit-breakable, or a connection fault.
// The predicates never perform I/O and never mutate state; they exist so
// every other strategy agrees on the same classification rules.
package classifier

import (
	"context"
	"errors"
	"strings"

	"resilience-pipeline/pkg/faults"
)

// connectionFaultMarkers are substrings recognized as transport-level
// connection faults, matched case-insensitively against the fault's error
// text. The OS-specific codes are carried over from the source system
// verbatim per spec: 12007 (WinINet host-not-found) and the native HRESULT
// -2147012889 (WININET_E_NAME_NOT_RESOLVED).
var connectionFaultMarkers = []string{
	"connection refused",
	"host not found",
	"no such host",
	"name not resolved",
	"12007",
	"-2147012889",
	"the response ended prematurely",
	"premature eof",
	"unexpected eof",
}

// CanCircuitBreak reports whether err should count as a circuit-breaker
// failure. Per spec.md §4.1: HTTP status >= 500 or 408, a connection
// fault, a pipeline timeout, or a cancellation not originating from the
// caller.
func CanCircuitBreak(err error) bool {
	if err == nil {
		return false
	}

	if df, ok := faults.IsDependencyFault(err); ok {
		return df.Status >= 500 || df.Status == 408
	}

	if faults.IsConnectionFault(err) || isConnectionFaultText(err.Error()) {
		return true
	}

	if faults.IsTimeout(err) {
		return true
	}

	// A cancellation not originating from the caller is an
	// operation-cancelled signal the breaker should count; a
	// caller-originated cancellation must not poison the breaker.
	if isOperationCancelled(err) && !faults.IsCancelledByCaller(err) {
		return true
	}

	return false
}

// CanRetry reports whether err should trigger a retry attempt. Per
// spec.md §4.1, a retryable status additionally requires the idempotency
// gate: only GET requests are retried for a status. A cancellation not
// originating from the caller is retried for any method. method is the
// HTTP (or RPC) method of the request that produced err; with method ""
// the gate never passes, so only such a cancellation is retried.
func CanRetry(method string, err error) bool {
	if err == nil {
		return false
	}

	// A cancellation not originating from the caller is retryable
	// regardless of method, mirroring CanCircuitBreak's cancellation rule.
	if isOperationCancelled(err) && !faults.IsCancelledByCaller(err) {
		return true
	}

	if !strings.EqualFold(method, "GET") {
		return false
	}

	if df, ok := faults.IsDependencyFault(err); ok {
		switch df.Status {
		case 408, 502, 503, 504:
			return true
		}
	}

	return false
}

// isOperationCancelled reports whether err represents an operation that
// was cancelled for any reason: either the caller's own signal
// (faults.CancelledByCaller) or a bare context.Canceled surfaced by the
// action without caller attribution (e.g. a parent context torn down by
// something other than the caller's token). A pipeline timeout is
// classified separately (faults.IsTimeout) and is never cancellation.
func isOperationCancelled(err error) bool {
	return faults.IsCancelledByCaller(err) || errors.Is(err, context.Canceled)
}

func isConnectionFaultText(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range connectionFaultMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// IsIdempotent reports whether method is considered idempotent for the
// purposes of the retry gate. Only GET is idempotent under this spec.
func IsIdempotent(method string) bool {
	return strings.EqualFold(method, "GET")
}
