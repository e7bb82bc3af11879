package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// PairKey canonicalizes an unordered user pair into a lock key. Both
// users' concurrent requests map to the same key regardless of
// direction, which is what makes the reciprocity check race-free.
func PairKey(a, b uint) string {
	low, high := PairOrder(a, b)
	return fmt.Sprintf("%d:%d", low, high)
}

func PairOrder(a, b uint) (uint, uint) {
	if a < b {
		return a, b
	}
	return b, a
}

// PairLocker hands out one mutex per pair key. Locks are created
// lazily and removed once no goroutine holds or waits on them, so the
// map does not grow with the total number of pairs ever seen.
//
// The lock is keyed by pair only, not pair+context: the canonical
// Match row is shared across contexts, so the metadata merge must also
// serialize concurrent confirmations from different contexts.
type PairLocker struct {
	mu    sync.Mutex
	locks map[string]*pairLock
}

type pairLock struct {
	ch   chan struct{}
	refs int
}

func NewPairLocker() *PairLocker {
	return &PairLocker{locks: make(map[string]*pairLock)}
}

// Acquire blocks until the pair lock is held or ctx expires. On
// success it returns a release func that must be called exactly once.
// Deadline expiry returns ErrBusy; outright cancellation propagates
// as-is so callers don't retry on behalf of a client that is gone.
func (l *PairLocker) Acquire(ctx context.Context, key string) (func(), error) {
	pl := l.checkout(key)
	select {
	case pl.ch <- struct{}{}:
		return func() {
			<-pl.ch
			l.checkin(key, pl)
		}, nil
	case <-ctx.Done():
		l.checkin(key, pl)
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("acquiring lock for pair %s: %w", key, ErrBusy)
	}
}

func (l *PairLocker) checkout(key string) *pairLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*pairLock)
	}
	pl := l.locks[key]
	if pl == nil {
		pl = &pairLock{ch: make(chan struct{}, 1)}
		l.locks[key] = pl
	}
	pl.refs++
	return pl
}

func (l *PairLocker) checkin(key string, pl *pairLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl.refs--
	if pl.refs == 0 {
		delete(l.locks, key)
	}
}
