package telemetry

import (
	"testing"

	"resilience-pipeline/pkg/logging"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestEventMetricName(t *testing.T) {
	e := Event{Strategy: "retry", Name: "attempt", OperationKey: "Movies.GetById"}
	want := "polly.retry.attempt.movies.getbyid"
	if got := e.MetricName(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestBroadcastFansOutToEveryListener(t *testing.T) {
	var a, b []Event
	la := listenerFunc(func(e Event) { a = append(a, e) })
	lb := listenerFunc(func(e Event) { b = append(b, e) })

	bc := NewBroadcast(la, lb)
	bc.OnEvent(Event{Strategy: "timeout", Name: "timeout", OperationKey: "movies.get"})

	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected both listeners to observe the event, got %d and %d", len(a), len(b))
	}
}

func TestBroadcastAddRegistersAdditionalListener(t *testing.T) {
	var calls int
	bc := NewBroadcast()
	bc.Add(listenerFunc(func(e Event) { calls++ }))
	bc.OnEvent(Event{Strategy: "breaker", Name: "broken", OperationKey: "movies.get"})
	if calls != 1 {
		t.Fatalf("expected the added listener to observe the event, got %d calls", calls)
	}
}

func TestPrometheusListenerIncrementsCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	listener := NewPrometheusListener("resilience")
	if err := listener.Register(registry); err != nil {
		t.Fatalf("unexpected error registering: %v", err)
	}

	listener.OnEvent(Event{Strategy: "retry", Name: "attempt", OperationKey: "movies.get"})
	listener.OnEvent(Event{Strategy: "retry", Name: "attempt", OperationKey: "movies.get"})

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("unexpected error gathering: %v", err)
	}

	var found bool
	for _, mf := range families {
		if mf.GetName() != "resilience_polly_events_total" {
			continue
		}
		for _, m := range mf.Metric {
			if metricLabel(m, "metric") == "polly.retry.attempt.movies.get" {
				found = true
				if m.Counter.GetValue() != 2 {
					t.Fatalf("expected counter value 2, got %v", m.Counter.GetValue())
				}
			}
		}
	}
	if !found {
		t.Fatal("expected to find the polly.retry.attempt.movies.get metric series")
	}
}

func TestLoggingListenerDoesNotPanic(t *testing.T) {
	listener := NewLoggingListener(logging.NewNoOpLogger())
	listener.OnEvent(Event{Strategy: "retry", Name: "attempt", OperationKey: "movies.get", Delay: "10ms"})
}

type listenerFunc func(Event)

func (f listenerFunc) OnEvent(e Event) { f(e) }

func metricLabel(m *dto.Metric, name string) string {
	for _, lp := range m.Label {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
