package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Errors describing AsyncListener delivery failures. No AsyncListener
// method returns them: OnEvent has no return value and counts a drop in
// Stats instead.
var (
	// ErrQueueFull describes an event dropped because the queue stayed
	// full for MaxWaitTime.
	ErrQueueFull = errors.New("telemetry: event queue full, event dropped")
	// ErrListenerClosed describes an event dispatched to a closed listener.
	ErrListenerClosed = errors.New("telemetry: listener is closed")
)

// AsyncListenerConfig configures an AsyncListener's bounded queue and
// worker pool.
type AsyncListenerConfig struct {
	// QueueSize is the bounded queue capacity (default: 1000).
	QueueSize int
	// Workers is the number of concurrent dispatch workers (default: 2).
	Workers int
	// MaxWaitTime is how long OnEvent blocks trying to enqueue before
	// dropping the event (default: 10ms).
	MaxWaitTime time.Duration
}

// AsyncListener wraps a Listener with a bounded queue and worker pool so
// that a slow downstream sink (a remote metrics backend, disk-backed log
// shipping) never blocks the pipeline stage emitting the event. Events
// may be dropped under sustained backpressure; DroppedEvents reports how
// many.
type AsyncListener struct {
	next       Listener
	queue      chan Event
	config     AsyncListenerConfig
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	dropped int64
	total   int64
}

// NewAsyncListener wraps next behind a bounded queue. It starts its worker
// pool immediately and must be stopped with Close().
func NewAsyncListener(next Listener, config AsyncListenerConfig) *AsyncListener {
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxWaitTime == 0 {
		config.MaxWaitTime = 10 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &AsyncListener{
		next:       next,
		queue:      make(chan Event, config.QueueSize),
		config:     config,
		ctx:        ctx,
		cancelFunc: cancel,
	}

	for i := 0; i < config.Workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}

	return a
}

// OnEvent implements Listener. It never blocks the caller beyond
// MaxWaitTime; under sustained backpressure the event is silently
// dropped rather than stalling the pipeline stage that emitted it.
func (a *AsyncListener) OnEvent(e Event) {
	select {
	case <-a.ctx.Done():
		return
	default:
	}

	timer := time.NewTimer(a.config.MaxWaitTime)
	defer timer.Stop()

	select {
	case a.queue <- e:
		atomic.AddInt64(&a.total, 1)
	case <-timer.C:
		atomic.AddInt64(&a.dropped, 1)
	case <-a.ctx.Done():
	}
}

func (a *AsyncListener) worker() {
	defer a.wg.Done()
	for {
		select {
		case e, ok := <-a.queue:
			if !ok {
				return
			}
			a.next.OnEvent(e)
		case <-a.ctx.Done():
			a.drain()
			return
		}
	}
}

func (a *AsyncListener) drain() {
	for {
		select {
		case e, ok := <-a.queue:
			if !ok {
				return
			}
			a.next.OnEvent(e)
		default:
			return
		}
	}
}

// Stats reports delivery/drop counters since the listener was created.
type AsyncListenerStats struct {
	Total   int64
	Dropped int64
}

// Stats returns current delivery statistics.
func (a *AsyncListener) Stats() AsyncListenerStats {
	return AsyncListenerStats{
		Total:   atomic.LoadInt64(&a.total),
		Dropped: atomic.LoadInt64(&a.dropped),
	}
}

// Close stops accepting new events, drains the queue through the worker
// pool, and waits for delivery to finish.
func (a *AsyncListener) Close() error {
	a.cancelFunc()
	a.wg.Wait()
	return nil
}
