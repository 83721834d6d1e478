package timeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"resilience-pipeline/pkg/faults"
	"resilience-pipeline/pkg/logging"
)

func TestStrategySucceedsWithinDeadline(t *testing.T) {
	s := New(50*time.Millisecond, "movies.get", logging.NewNoOpLogger())

	result, err := s.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected result to propagate, got %v", result)
	}
}

func TestStrategyRejectsOnDeadline(t *testing.T) {
	s := New(10*time.Millisecond, "movies.get", logging.NewNoOpLogger())

	start := time.Now()
	_, err := s.Execute(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, errors.New("orphaned action error")
	})
	elapsed := time.Since(start)

	if !faults.IsTimeout(err) {
		t.Fatalf("expected TimeoutRejected, got %v", err)
	}
	// innerDeadlineSlack (1s) is added on top of the configured timeout.
	if elapsed < 1*time.Second {
		t.Fatalf("expected Execute to wait for timeout+slack, returned after %v", elapsed)
	}
}

func TestStrategyPropagatesActionError(t *testing.T) {
	s := New(50*time.Millisecond, "movies.get", logging.NewNoOpLogger())

	wantErr := errors.New("boom")
	_, err := s.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected action error to propagate, got %v", err)
	}
}

func TestStrategyHonorsCallerCancellation(t *testing.T) {
	s := New(time.Minute, "movies.get", logging.NewNoOpLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.Execute(ctx, func(ctx context.Context) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		if !errors.As(err, new(*faults.CancelledByCaller)) {
			t.Errorf("expected CancelledByCaller, got %v", err)
		}
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Execute did not return promptly after caller cancellation")
	}
}
