package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockAdvanceFiresDueCallbacks(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	m := NewMock(start)

	var fired []string
	m.AfterFunc(5*time.Second, func() { fired = append(fired, "a") })
	m.AfterFunc(10*time.Second, func() { fired = append(fired, "b") })

	m.Advance(4 * time.Second)
	assert.Empty(t, fired)

	m.Advance(time.Second)
	assert.Equal(t, []string{"a"}, fired)

	m.Advance(10 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, start.Add(15*time.Second), m.Now())
}

func TestMockFiresInScheduleOrder(t *testing.T) {
	m := NewMock(time.Unix(0, 0))

	var fired []int
	m.AfterFunc(3*time.Second, func() { fired = append(fired, 3) })
	m.AfterFunc(time.Second, func() { fired = append(fired, 1) })
	m.AfterFunc(2*time.Second, func() { fired = append(fired, 2) })

	m.Advance(5 * time.Second)
	assert.Equal(t, []int{1, 2, 3}, fired)
}

func TestMockStopPreventsFiring(t *testing.T) {
	m := NewMock(time.Unix(0, 0))

	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop reports already stopped")

	m.Advance(time.Minute)
	assert.False(t, fired)
}

func TestMockCallbackMayScheduleWithinSpan(t *testing.T) {
	m := NewMock(time.Unix(0, 0))

	var fired []string
	m.AfterFunc(time.Second, func() {
		fired = append(fired, "first")
		m.AfterFunc(time.Second, func() { fired = append(fired, "chained") })
	})

	m.Advance(3 * time.Second)
	assert.Equal(t, []string{"first", "chained"}, fired)
}

func TestRealClockSchedules(t *testing.T) {
	c := New()
	done := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback did not fire")
	}
	assert.WithinDuration(t, time.Now(), c.Now(), time.Second)
}
