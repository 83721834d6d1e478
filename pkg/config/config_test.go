package config

import (
	"testing"
	"time"
)

func TestDefaultEndpointConfigValid(t *testing.T) {
	ec := DefaultEndpointConfig("movies")
	if err := ec.Validate(); err != nil {
		t.Fatalf("expected default config valid, got %v", err)
	}
}

func TestValidateRejectsMissingName(t *testing.T) {
	ec := DefaultEndpointConfig("")
	if err := ec.Validate(); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	ec := DefaultEndpointConfig("movies")
	ec.FailureThreshold = 1.5
	if err := ec.Validate(); err == nil {
		t.Fatal("expected error for out-of-range threshold")
	}
}

func TestValidateRejectsRateLimitWithoutPeriod(t *testing.T) {
	ec := DefaultEndpointConfig("movies")
	ec.RateLimit = 10
	ec.RateLimitPeriod = 0
	if err := ec.Validate(); err == nil {
		t.Fatal("expected error for rate limit without period")
	}
}

func TestWithHelpersReturnCopies(t *testing.T) {
	base := DefaultEndpointConfig("movies")
	withTimeout := base.WithTimeout(9 * time.Second)

	if base.Timeout == withTimeout.Timeout {
		t.Fatal("expected WithTimeout to not mutate the receiver")
	}
	if withTimeout.Timeout != 9*time.Second {
		t.Fatalf("expected 9s, got %v", withTimeout.Timeout)
	}
}

func TestMergeOverlayWins(t *testing.T) {
	base := Config{Endpoints: map[string]EndpointConfig{
		"movies": DefaultEndpointConfig("movies").WithTimeout(time.Second),
		"users":  DefaultEndpointConfig("users"),
	}}
	overlay := Config{Endpoints: map[string]EndpointConfig{
		"movies": DefaultEndpointConfig("movies").WithTimeout(9 * time.Second),
	}}

	merged := Merge(base, overlay)

	if merged.Endpoints["movies"].Timeout != 9*time.Second {
		t.Fatalf("expected overlay to win, got %v", merged.Endpoints["movies"].Timeout)
	}
	if _, ok := merged.Endpoints["users"]; !ok {
		t.Fatal("expected base-only endpoint to survive the merge")
	}
}

func TestConfigEndpointReturnsSnapshot(t *testing.T) {
	cfg := Config{Endpoints: map[string]EndpointConfig{
		"movies": DefaultEndpointConfig("movies"),
	}}

	ec, ok := cfg.Endpoint("movies")
	if !ok {
		t.Fatal("expected movies endpoint to be found")
	}
	ec.Timeout = 42 * time.Second

	again, _ := cfg.Endpoint("movies")
	if again.Timeout == 42*time.Second {
		t.Fatal("mutating a returned snapshot must not affect the stored config")
	}
}
