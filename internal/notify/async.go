package notify

import (
	"context"
	"sync"
	"time"

	"charterops/internal/metrics"
	"charterops/internal/utils"
)

// Async queues events for a background worker. A full or closed queue
// drops the event; Notify always returns nil.
type Async struct {
	sink    Notifier
	queue   chan Event
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsync(sink Notifier, buffer int) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		sink:    sink,
		queue:   make(chan Event, buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Notify(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = utils.NowUTC()
	}
	if e.RequestID == "" {
		e.RequestID = utils.RequestIDFrom(ctx)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		metrics.NotificationsDropped.Inc()
		return nil
	}
	select {
	case a.queue <- e:
	default:
		metrics.NotificationsDropped.Inc()
		utils.LogEvent(ctx, "NOTIFY", "drop", e.Type)
	}
	return nil
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.queue {
		ctx, cancel := context.WithTimeout(utils.WithRequestID(context.Background(), e.RequestID), a.timeout)
		if err := a.sink.Notify(ctx, e); err != nil {
			utils.LogFailure(ctx, "NOTIFY", e.Type, err)
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
