package classifier

import (
	"context"
	"errors"
	"testing"

	"resilience-pipeline/pkg/faults"
)

func TestCanCircuitBreak(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status 500", faults.NewDependencyFault("GET", "/x", 500), true},
		{"status 408", faults.NewDependencyFault("GET", "/x", 408), true},
		{"status 404", faults.NewDependencyFault("GET", "/x", 404), false},
		{"status 400", faults.NewDependencyFault("GET", "/x", 400), false},
		{"connection fault type", faults.NewConnectionFault("connection refused", errors.New("dial tcp: refused")), true},
		{"connection fault text", errors.New("dial tcp 10.0.0.1:80: connection refused"), true},
		{"host not found", errors.New("lookup foo.bar: host not found"), true},
		{"premature eof", errors.New("unexpected EOF: the response ended prematurely"), true},
		{"win32 12007", errors.New("WSAHOST_NOT_FOUND (12007)"), true},
		{"win32 hresult", errors.New("0x-2147012889"), true},
		{"timeout", &faults.TimeoutRejected{OperationKey: "movies.Get", Timeout: "1s"}, true},
		{"caller cancelled", &faults.CancelledByCaller{Err: context.Canceled}, false},
		{"bare context canceled", context.Canceled, true},
		{"unclassified", errors.New("boom"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CanCircuitBreak(tc.err)
			if got != tc.want {
				t.Errorf("CanCircuitBreak(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestCanRetry(t *testing.T) {
	cases := []struct {
		name   string
		method string
		err    error
		want   bool
	}{
		{"nil", "GET", nil, false},
		{"get 408", "GET", faults.NewDependencyFault("GET", "/x", 408), true},
		{"get 502", "GET", faults.NewDependencyFault("GET", "/x", 502), true},
		{"get 503", "GET", faults.NewDependencyFault("GET", "/x", 503), true},
		{"get 504", "GET", faults.NewDependencyFault("GET", "/x", 504), true},
		{"get 500 not retryable status", "GET", faults.NewDependencyFault("GET", "/x", 500), false},
		{"post 502 idempotency gate blocks", "POST", faults.NewDependencyFault("POST", "/x", 502), false},
		{"lowercase get", "get", faults.NewDependencyFault("GET", "/x", 503), true},
		{"non-caller cancel any method", "POST", context.Canceled, true},
		{"caller cancel never retried", "GET", &faults.CancelledByCaller{Err: context.Canceled}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CanRetry(tc.method, tc.err)
			if got != tc.want {
				t.Errorf("CanRetry(%q, %v) = %v, want %v", tc.method, tc.err, got, tc.want)
			}
		})
	}
}

func TestIsIdempotent(t *testing.T) {
	if !IsIdempotent("GET") || !IsIdempotent("get") {
		t.Error("expected GET to be idempotent")
	}
	if IsIdempotent("POST") {
		t.Error("expected POST to not be idempotent")
	}
}
