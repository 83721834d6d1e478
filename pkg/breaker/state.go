package breaker

// State mirrors spec.md §3's CircuitState: {Closed, Open, HalfOpen, Isolated}.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
	StateIsolated
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	case StateIsolated:
		return "isolated"
	default:
		return "unknown"
	}
}
