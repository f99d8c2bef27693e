package dedup

import (
	"sync"
	"time"

	"github.com/chatpipeai/chatpipe/internal/clock"
)

// LockSet grants at most one holder per signature. Holders are expected
// to Release unconditionally after an attempt; the TTL exists only to
// reclaim locks orphaned by a crashed caller.
type LockSet struct {
	mu    sync.Mutex
	clock clock.Clock
	ttl   time.Duration
	held  map[string]time.Time
}

// NewLockSet creates a LockSet with the given stale-reclaim TTL.
func NewLockSet(c clock.Clock, ttl time.Duration) *LockSet {
	return &LockSet{
		clock: c,
		ttl:   ttl,
		held:  make(map[string]time.Time),
	}
}

// TryAcquire takes the lock for sig if free. A lock held past its TTL
// counts as free and is taken over.
func (l *LockSet) TryAcquire(sig string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if acquiredAt, ok := l.held[sig]; ok && now.Sub(acquiredAt) < l.ttl {
		return false
	}
	l.held[sig] = now
	return true
}

// Release frees the lock for sig.
func (l *LockSet) Release(sig string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, sig)
}

// Held reports whether sig is currently locked.
func (l *LockSet) Held(sig string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	acquiredAt, ok := l.held[sig]
	return ok && l.clock.Now().Sub(acquiredAt) < l.ttl
}

// Sweep drops stale locks and returns how many were removed.
func (l *LockSet) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	removed := 0
	for sig, acquiredAt := range l.held {
		if now.Sub(acquiredAt) >= l.ttl {
			delete(l.held, sig)
			removed++
		}
	}
	return removed
}
