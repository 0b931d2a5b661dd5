// Package queue provides the bounded FIFO hand-off between the detector
// and the protection engine. Policy when full: drop-oldest, so the
// freshest threats are never the ones lost; drops are counted.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
	"github.com/lcalzada-xor/edgewatch/internal/telemetry"
)

var _ ports.ThreatQueue = (*ThreatQueue)(nil)

var (
	ErrClosed       = errors.New("threat queue is closed")
	ErrNilEvent     = errors.New("cannot enqueue a nil event")
	ErrZeroCapacity = errors.New("queue capacity must be positive")
)

// Metrics is a point-in-time snapshot of queue counters.
type Metrics struct {
	Pushed  uint64 `json:"pushed"`
	Popped  uint64 `json:"popped"`
	Dropped uint64 `json:"dropped"`
	Depth   int    `json:"depth"`
}

// ThreatQueue is a thread-safe bounded FIFO. Multiple producers are
// allowed; consumption is expected from a single goroutine.
type ThreatQueue struct {
	mu     sync.Mutex
	ch     chan *domain.ThreatEvent
	closed bool

	pushed  atomic.Uint64
	popped  atomic.Uint64
	dropped atomic.Uint64
}

// New creates a queue holding at most capacity events.
func New(capacity int) (*ThreatQueue, error) {
	if capacity <= 0 {
		return nil, ErrZeroCapacity
	}
	return &ThreatQueue{ch: make(chan *domain.ThreatEvent, capacity)}, nil
}

// Push enqueues an event. When the queue is full the oldest pending
// event is discarded to make room and the drop counter is incremented.
func (q *ThreatQueue) Push(event *domain.ThreatEvent) error {
	if event == nil {
		return ErrNilEvent
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	for {
		select {
		case q.ch <- event:
			q.pushed.Add(1)
			telemetry.QueueDepth.Set(float64(len(q.ch)))
			return nil
		default:
		}
		// Full: evict the head. The consumer may race us for it, in
		// which case the next send attempt succeeds anyway.
		select {
		case <-q.ch:
			q.dropped.Add(1)
			telemetry.QueueDroppedTotal.Inc()
		default:
		}
	}
}

// Pop blocks until an event is available, the context ends, or the
// queue is closed and drained. The bool is false on cancellation/close.
func (q *ThreatQueue) Pop(ctx context.Context) (*domain.ThreatEvent, bool) {
	select {
	case event, ok := <-q.ch:
		if !ok {
			return nil, false
		}
		q.popped.Add(1)
		telemetry.QueueDepth.Set(float64(len(q.ch)))
		return event, true
	case <-ctx.Done():
		return nil, false
	}
}

// Len reports the current queue depth.
func (q *ThreatQueue) Len() int {
	return len(q.ch)
}

// Close stops accepting events. Pending events remain poppable until
// drained.
func (q *ThreatQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Snapshot returns the current counter values.
func (q *ThreatQueue) Snapshot() Metrics {
	return Metrics{
		Pushed:  q.pushed.Load(),
		Popped:  q.popped.Load(),
		Dropped: q.dropped.Load(),
		Depth:   len(q.ch),
	}
}
