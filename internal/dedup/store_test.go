package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpipeai/chatpipe/internal/clock"
)

func TestSignatureStable(t *testing.T) {
	a := Signature("U1", "hello", "M1")
	b := Signature("U1", "hello", "M1")
	c := Signature("U1", "hello", "M2")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	// Joining must not be ambiguous across part boundaries.
	assert.NotEqual(t, Signature("ab", "c"), Signature("a", "bc"))
}

func TestStoreTTLExpiry(t *testing.T) {
	mock := clock.NewMock(time.Unix(1700000000, 0))
	store := NewStore(mock, time.Minute, 0)

	store.Put("k1")
	assert.True(t, store.Seen("k1"))

	mock.Advance(59 * time.Second)
	assert.True(t, store.Seen("k1"))

	mock.Advance(2 * time.Second)
	assert.False(t, store.Seen("k1"), "entry expires after its TTL")
}

func TestStoreSweepRemovesExpired(t *testing.T) {
	mock := clock.NewMock(time.Unix(1700000000, 0))
	store := NewStore(mock, time.Minute, 0)

	store.Put("old")
	mock.Advance(30 * time.Second)
	store.Put("fresh")
	mock.Advance(31 * time.Second)

	removed := store.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
	assert.True(t, store.Seen("fresh"))
}

func TestStoreBoundedEviction(t *testing.T) {
	mock := clock.NewMock(time.Unix(1700000000, 0))
	store := NewStore(mock, time.Minute, 2)

	store.Put("a")
	mock.Advance(time.Second)
	store.Put("b")
	mock.Advance(time.Second)
	store.Put("c")

	assert.Equal(t, 2, store.Len())
	assert.False(t, store.Seen("a"), "entry closest to expiry is evicted first")
	assert.True(t, store.Seen("b"))
	assert.True(t, store.Seen("c"))
}

func TestStoreValueRoundTrip(t *testing.T) {
	mock := clock.NewMock(time.Unix(1700000000, 0))
	store := NewStore(mock, time.Minute, 0)

	store.PutValue("k", "v")
	got, ok := store.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	store.Delete("k")
	_, ok = store.Get("k")
	assert.False(t, ok)
}

func TestLockSetExclusive(t *testing.T) {
	mock := clock.NewMock(time.Unix(1700000000, 0))
	locks := NewLockSet(mock, 30*time.Second)

	sig := Signature("reply", "tok", "content")
	require.True(t, locks.TryAcquire(sig))
	assert.False(t, locks.TryAcquire(sig), "second holder refused")
	assert.True(t, locks.Held(sig))

	locks.Release(sig)
	assert.True(t, locks.TryAcquire(sig), "free after release")
}

func TestLockSetStaleReclaim(t *testing.T) {
	mock := clock.NewMock(time.Unix(1700000000, 0))
	locks := NewLockSet(mock, 30*time.Second)

	require.True(t, locks.TryAcquire("sig"))
	mock.Advance(31 * time.Second)
	assert.True(t, locks.TryAcquire("sig"), "stale lock is taken over")
}

func TestLockSetSweep(t *testing.T) {
	mock := clock.NewMock(time.Unix(1700000000, 0))
	locks := NewLockSet(mock, 30*time.Second)

	locks.TryAcquire("a")
	mock.Advance(10 * time.Second)
	locks.TryAcquire("b")
	mock.Advance(25 * time.Second)

	assert.Equal(t, 1, locks.Sweep())
	assert.False(t, locks.Held("a"))
	assert.True(t, locks.Held("b"))
}
