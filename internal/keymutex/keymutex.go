// Package keymutex provides an arena of per-key exclusive locks.
//
// The trading engine serializes all trades and stock mutations touching the
// same metal, while trades on distinct metals proceed concurrently. Keying
// the mutexes by metal ID gives exactly that: one lock per contended metal,
// no global lock.
package keymutex

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when a lock cannot be acquired within the arena's
// timeout. No lock is held when it is returned.
var ErrTimeout = errors.New("keymutex: lock acquisition timed out")

// Arena hands out one exclusive lock per key. Lock entries are created on
// demand and removed once the last holder or waiter is gone, so the arena
// stays proportional to the number of currently contended keys.
type Arena struct {
	timeout time.Duration // zero means wait until ctx is done

	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{} // buffered size 1; holding the token = holding the lock
	refs int
}

// New creates an arena. A non-positive timeout disables the acquisition
// bound; callers then wait until their context is cancelled.
func New(timeout time.Duration) *Arena {
	return &Arena{
		timeout: timeout,
		locks:   make(map[string]*entry),
	}
}

// Lock acquires the exclusive lock for key, blocking until it is available,
// the context is done, or the arena timeout elapses. On success it returns
// the unlock function; the caller must invoke it exactly once.
func (a *Arena) Lock(ctx context.Context, key string) (func(), error) {
	a.mu.Lock()
	e, ok := a.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		a.locks[key] = e
	}
	e.refs++
	a.mu.Unlock()

	var timeoutC <-chan time.Time
	if a.timeout > 0 {
		timer := time.NewTimer(a.timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			a.release(key, e)
		}, nil
	case <-ctx.Done():
		a.release(key, e)
		return nil, ctx.Err()
	case <-timeoutC:
		a.release(key, e)
		return nil, ErrTimeout
	}
}

func (a *Arena) release(key string, e *entry) {
	a.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(a.locks, key)
	}
	a.mu.Unlock()
}
