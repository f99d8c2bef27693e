package aggregate

import (
	"log/slog"
	"sync"
	"time"

	"github.com/chatpipeai/chatpipe/internal/clock"
	"github.com/chatpipeai/chatpipe/internal/notify"
)

// FlushFunc receives the combined text of a flushed buffer together
// with the buffer's original reply token.
type FlushFunc func(senderID, text, replyToken string)

// Notifier receives best-effort state transition events.
type Notifier interface {
	Publish(event notify.Event)
}

// AggregatorConfig tunes the text aggregation window.
type AggregatorConfig struct {
	// FlushDelay is the quiet period after the newest fragment before
	// the buffer flushes.
	FlushDelay time.Duration
	// MaxBufferAge caps how long a buffer can keep absorbing fragments
	// before it is flushed regardless of activity.
	MaxBufferAge time.Duration
}

type textBuffer struct {
	fragments  []string
	replyToken string
	startedAt  time.Time
	updatedAt  time.Time
	timer      clock.Timer
}

// Aggregator coalesces rapid bursts of short text fragments into one
// logical message per sender. At most one buffer is active per sender.
type Aggregator struct {
	mu      sync.Mutex
	clock   clock.Clock
	cfg     AggregatorConfig
	flush   FlushFunc
	hub     Notifier
	logger  *slog.Logger
	buffers map[string]*textBuffer
}

// NewAggregator creates an Aggregator that hands flushed buffers to flush.
func NewAggregator(log *slog.Logger, c clock.Clock, cfg AggregatorConfig, hub Notifier, flush FlushFunc) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = 7 * time.Second
	}
	if cfg.MaxBufferAge <= 0 {
		cfg.MaxBufferAge = 30 * time.Second
	}
	return &Aggregator{
		clock:   c,
		cfg:     cfg,
		flush:   flush,
		hub:     hub,
		logger:  log.With(slog.String("component", "aggregator")),
		buffers: make(map[string]*textBuffer),
	}
}

// SubmitFragment records one inbound text fragment. The first fragment
// opens a buffer and schedules a flush; later fragments append and push
// the flush out, unless the buffer has exceeded MaxBufferAge, in which
// case the old buffer flushes immediately and the fragment opens a new one.
func (a *Aggregator) SubmitFragment(senderID, text, replyToken string) {
	a.mu.Lock()
	var aged *textBuffer
	buf, ok := a.buffers[senderID]
	if ok {
		now := a.clock.Now()
		if now.Sub(buf.startedAt) >= a.cfg.MaxBufferAge {
			buf.timer.Stop()
			delete(a.buffers, senderID)
			aged = buf
			a.openBufferLocked(senderID, text, replyToken)
		} else {
			buf.fragments = append(buf.fragments, text)
			buf.updatedAt = now
			buf.timer.Stop()
			buf.timer = a.scheduleFlush(senderID, buf)
		}
	} else {
		a.openBufferLocked(senderID, text, replyToken)
	}
	a.mu.Unlock()

	if aged != nil {
		a.logger.Debug("buffer exceeded max age, flushing early",
			slog.String("sender_id", senderID),
			slog.Int("fragments", len(aged.fragments)))
		a.forward(senderID, aged)
	}
}

// ConsumeRecent removes and returns the sender's buffer if its last
// update falls within the given window. Used by the image correlator to
// claim nearby caption text.
func (a *Aggregator) ConsumeRecent(senderID string, within time.Duration) (text, replyToken string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, exists := a.buffers[senderID]
	if !exists {
		return "", "", false
	}
	if a.clock.Now().Sub(buf.updatedAt) > within {
		return "", "", false
	}
	buf.timer.Stop()
	delete(a.buffers, senderID)
	return JoinFragments(buf.fragments), buf.replyToken, true
}

// PendingFragments returns the current fragment count for a sender.
func (a *Aggregator) PendingFragments(senderID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if buf, ok := a.buffers[senderID]; ok {
		return len(buf.fragments)
	}
	return 0
}

func (a *Aggregator) openBufferLocked(senderID, text, replyToken string) {
	now := a.clock.Now()
	buf := &textBuffer{
		fragments:  []string{text},
		replyToken: replyToken,
		startedAt:  now,
		updatedAt:  now,
	}
	buf.timer = a.scheduleFlush(senderID, buf)
	a.buffers[senderID] = buf
	if a.hub != nil {
		a.hub.Publish(notify.Event{
			Type:     notify.EventAggregating,
			SenderID: senderID,
			At:       now,
		})
	}
}

func (a *Aggregator) scheduleFlush(senderID string, buf *textBuffer) clock.Timer {
	return a.clock.AfterFunc(a.cfg.FlushDelay, func() {
		a.onFlushTimer(senderID, buf)
	})
}

func (a *Aggregator) onFlushTimer(senderID string, buf *textBuffer) {
	a.mu.Lock()
	current, ok := a.buffers[senderID]
	if !ok || current != buf {
		// Buffer was already consumed or replaced; stale timer.
		a.mu.Unlock()
		return
	}
	delete(a.buffers, senderID)
	a.mu.Unlock()
	a.forward(senderID, buf)
}

func (a *Aggregator) forward(senderID string, buf *textBuffer) {
	text := JoinFragments(buf.fragments)
	if text == "" {
		return
	}
	a.flush(senderID, text, buf.replyToken)
}
