package lock

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Locker for single-instance deployments and tests.
type Local struct {
	Wait time.Duration

	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocal(wait time.Duration) *Local {
	return &Local{Wait: wait, slots: map[string]chan struct{}{}}
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slots == nil {
		l.slots = map[string]chan struct{}{}
	}
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	waitCtx, cancel := withWait(ctx, l.Wait)
	defer cancel()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-waitCtx.Done():
		return nil, busy(key, waitCtx.Err())
	}
}
