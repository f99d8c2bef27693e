package aggregate

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpipeai/chatpipe/internal/clock"
)

type flushRecorder struct {
	mu      sync.Mutex
	flushes []flushedText
}

type flushedText struct {
	senderID   string
	text       string
	replyToken string
}

func (r *flushRecorder) record(senderID, text, replyToken string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes = append(r.flushes, flushedText{senderID: senderID, text: text, replyToken: replyToken})
}

func (r *flushRecorder) all() []flushedText {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]flushedText(nil), r.flushes...)
}

func newTestAggregator(t *testing.T) (*Aggregator, *clock.Mock, *flushRecorder) {
	t.Helper()
	mock := clock.NewMock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	rec := &flushRecorder{}
	agg := NewAggregator(nil, mock, AggregatorConfig{
		FlushDelay:   7 * time.Second,
		MaxBufferAge: 30 * time.Second,
	}, nil, rec.record)
	return agg, mock, rec
}

func TestAggregatorFlushesOnceWithJoinedFragments(t *testing.T) {
	agg, mock, rec := newTestAggregator(t)

	agg.SubmitFragment("U1", "สวัสดี", "tok-1")
	mock.Advance(2 * time.Second)
	agg.SubmitFragment("U1", "ครับ", "tok-2")

	mock.Advance(6 * time.Second)
	assert.Empty(t, rec.all(), "flush must wait for the full quiet period after the last fragment")

	mock.Advance(time.Second)
	flushes := rec.all()
	require.Len(t, flushes, 1)
	assert.Equal(t, "U1", flushes[0].senderID)
	assert.Equal(t, "สวัสดีครับ", flushes[0].text)
	assert.Equal(t, "tok-1", flushes[0].replyToken, "reply token of the first fragment wins")

	mock.Advance(time.Minute)
	assert.Len(t, rec.all(), 1, "exactly one flush for the burst")
}

func TestAggregatorEachFragmentResetsTimer(t *testing.T) {
	agg, mock, rec := newTestAggregator(t)

	agg.SubmitFragment("U1", "Hello", "tok")
	for i := 0; i < 3; i++ {
		mock.Advance(5 * time.Second)
		agg.SubmitFragment("U1", "world", "tok")
	}
	assert.Empty(t, rec.all())

	mock.Advance(7 * time.Second)
	flushes := rec.all()
	require.Len(t, flushes, 1)
	assert.Equal(t, "Hello world world world", flushes[0].text)
}

func TestAggregatorMaxAgeForcesFlush(t *testing.T) {
	agg, mock, rec := newTestAggregator(t)

	// Keep the buffer alive past MaxBufferAge with fragments every 5s.
	agg.SubmitFragment("U1", "f0", "tok")
	for i := 1; i <= 5; i++ {
		mock.Advance(5 * time.Second)
		agg.SubmitFragment("U1", "f"+string(rune('0'+i)), "tok")
	}
	assert.Empty(t, rec.all())

	// At t=30s the buffer hits MaxBufferAge: it flushes immediately and
	// the new fragment opens a fresh buffer.
	mock.Advance(5 * time.Second)
	agg.SubmitFragment("U1", "late", "tok-late")

	flushes := rec.all()
	require.Len(t, flushes, 1)
	assert.Equal(t, "f0 f1 f2 f3 f4 f5", flushes[0].text)
	assert.Equal(t, 1, agg.PendingFragments("U1"))

	mock.Advance(7 * time.Second)
	flushes = rec.all()
	require.Len(t, flushes, 2)
	assert.Equal(t, "late", flushes[1].text)
	assert.Equal(t, "tok-late", flushes[1].replyToken)
}

func TestAggregatorSendersAreIndependent(t *testing.T) {
	agg, mock, rec := newTestAggregator(t)

	agg.SubmitFragment("U1", "one", "t1")
	mock.Advance(3 * time.Second)
	agg.SubmitFragment("U2", "two", "t2")

	mock.Advance(4 * time.Second)
	flushes := rec.all()
	require.Len(t, flushes, 1)
	assert.Equal(t, "U1", flushes[0].senderID)

	mock.Advance(3 * time.Second)
	flushes = rec.all()
	require.Len(t, flushes, 2)
	assert.Equal(t, "U2", flushes[1].senderID)
}

func TestAggregatorConsumeRecent(t *testing.T) {
	agg, mock, rec := newTestAggregator(t)

	agg.SubmitFragment("U1", "caption", "tok")
	mock.Advance(2 * time.Second)

	text, token, ok := agg.ConsumeRecent("U1", 30*time.Second)
	require.True(t, ok)
	assert.Equal(t, "caption", text)
	assert.Equal(t, "tok", token)
	assert.Equal(t, 0, agg.PendingFragments("U1"))

	// The consumed buffer's timer must not fire.
	mock.Advance(time.Minute)
	assert.Empty(t, rec.all())
}

func TestAggregatorConsumeRecentStaleBufferRefused(t *testing.T) {
	agg, mock, _ := newTestAggregator(t)

	agg.SubmitFragment("U1", "old", "tok")
	mock.Advance(5 * time.Second)

	_, _, ok := agg.ConsumeRecent("U1", 2*time.Second)
	assert.False(t, ok)
	assert.Equal(t, 1, agg.PendingFragments("U1"), "refused buffer stays pending")
}
