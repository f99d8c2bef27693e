// Package clock abstracts time and deferred execution so timer-driven
// components can be tested against a virtual clock.
package clock

import (
	"sync"
	"time"
)

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the callback was
	// still pending at the time of the call.
	Stop() bool
}

// Clock provides the current time and deferred callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

// New returns a Clock backed by the system clock.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Mock is a manually advanced Clock for tests. Callbacks scheduled via
// AfterFunc fire synchronously inside Advance, in firing order.
type Mock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*mockTimer
}

type mockTimer struct {
	clock   *Mock
	fireAt  time.Time
	seq     int
	fn      func()
	stopped bool
}

// NewMock returns a Mock starting at the given time.
func NewMock(start time.Time) *Mock {
	return &Mock{now: start}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Mock) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &mockTimer{clock: m, fireAt: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward, running every due callback in firing
// order. Callbacks run without the internal lock held, so they may
// schedule new timers; timers scheduled within the advanced span fire
// during the same call.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		next := m.nextDueLocked(target)
		if next == nil {
			break
		}
		if next.fireAt.After(m.now) {
			m.now = next.fireAt
		}
		m.removeLocked(next)
		m.mu.Unlock()
		next.fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

func (m *Mock) nextDueLocked(target time.Time) *mockTimer {
	var due *mockTimer
	for _, t := range m.timers {
		if t.stopped || t.fireAt.After(target) {
			continue
		}
		if due == nil || t.fireAt.Before(due.fireAt) || (t.fireAt.Equal(due.fireAt) && t.seq < due.seq) {
			due = t
		}
	}
	return due
}

func (m *Mock) removeLocked(target *mockTimer) {
	for i, t := range m.timers {
		if t == target {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	t.clock.removeLocked(t)
	return true
}
