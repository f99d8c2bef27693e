// Package processing tracks each logical message through a retryable
// lifecycle with deduplication: a message is handled exactly once
// (modulo retries), stalled processing is retried with linear backoff,
// and exhausted retries end in a terminal failure.
package processing

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/chatpipeai/chatpipe/internal/clock"
	"github.com/chatpipeai/chatpipe/internal/dedup"
	"github.com/chatpipeai/chatpipe/internal/notify"
)

// Status is the lifecycle state of a processing record.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Message is one logical inbound message after aggregation/correlation.
type Message struct {
	// ID is optional; when empty a dedup id is derived from the content
	// and a timestamp bucket.
	ID         string
	SenderID   string
	Content    string
	ImageID    string
	ReplyToken string
}

// Handler processes a message attempt. It must report the outcome via
// Registry.Complete; an attempt that never completes is timed out and
// retried by the registry.
type Handler func(id string, msg Message, attempt int)

// Notifier receives best-effort lifecycle events.
type Notifier interface {
	Publish(event notify.Event)
}

// Config tunes timeout, retry, and dedup behavior.
type Config struct {
	// Timeout is how long one processing attempt may run before the
	// registry considers it stalled.
	Timeout time.Duration
	// RetryDelay is the base backoff; attempt n waits RetryDelay * n.
	RetryDelay time.Duration
	// MaxRetries bounds retry attempts after the first.
	MaxRetries int
	// DedupTTL is the window during which a completed (sender, content)
	// pair rejects re-ingestion.
	DedupTTL time.Duration
	// BucketSize quantizes timestamps when deriving implicit ids.
	BucketSize time.Duration
}

type record struct {
	msg       Message
	startedAt time.Time
	retries   int
	status    Status
	timer     clock.Timer
}

// Registry is the single entry point for logical messages.
type Registry struct {
	mu      sync.Mutex
	clock   clock.Clock
	cfg     Config
	handler Handler
	history *dedup.Store
	hub     Notifier
	logger  *slog.Logger
	active  map[string]*record
}

// NewRegistry creates a Registry forwarding messages to handler.
// history holds completed-message signatures for the dedup window.
func NewRegistry(log *slog.Logger, c clock.Clock, cfg Config, history *dedup.Store, hub Notifier, handler Handler) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BucketSize <= 0 {
		cfg.BucketSize = time.Minute
	}
	return &Registry{
		clock:   c,
		cfg:     cfg,
		handler: handler,
		history: history,
		hub:     hub,
		logger:  log.With(slog.String("component", "processing")),
		active:  make(map[string]*record),
	}
}

// Enqueue admits a logical message. It returns the record id and whether
// the message was rejected as a duplicate (already active, or an
// identical (sender, content) pair completed within the dedup window).
func (r *Registry) Enqueue(msg Message) (id string, duplicate bool) {
	id = msg.ID
	if id == "" {
		bucket := r.clock.Now().Truncate(r.cfg.BucketSize)
		id = dedup.Signature(msg.SenderID, msg.Content, msg.ImageID, strconv.FormatInt(bucket.Unix(), 10))
	}
	contentSig := r.contentSignature(msg)

	r.mu.Lock()
	if _, ok := r.active[id]; ok {
		r.mu.Unlock()
		return id, true
	}
	if r.history != nil && r.history.Seen(contentSig) {
		r.mu.Unlock()
		return id, true
	}
	rec := &record{
		msg:       msg,
		startedAt: r.clock.Now(),
		status:    StatusProcessing,
	}
	rec.timer = r.scheduleTimeout(id)
	r.active[id] = rec
	r.mu.Unlock()

	if r.hub != nil {
		r.hub.Publish(notify.Event{
			Type:      notify.EventProcessingStart,
			SenderID:  msg.SenderID,
			MessageID: id,
			At:        r.clock.Now(),
		})
	}
	r.handler(id, msg, 0)
	return id, false
}

// Complete finishes a record. On success the (sender, content) signature
// enters the dedup window; on failure the record is simply dropped.
func (r *Registry) Complete(id string, success bool) {
	r.mu.Lock()
	rec, ok := r.active[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	rec.timer.Stop()
	delete(r.active, id)
	r.mu.Unlock()

	if success && r.history != nil {
		r.history.Put(r.contentSignature(rec.msg))
	}
}

// Active returns the number of in-flight records.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Retries returns the retry count for an active record.
func (r *Registry) Retries(id string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.active[id]; ok {
		return rec.retries, true
	}
	return 0, false
}

func (r *Registry) contentSignature(msg Message) string {
	return dedup.Signature("completed", msg.SenderID, msg.Content, msg.ImageID)
}

func (r *Registry) scheduleTimeout(id string) clock.Timer {
	return r.clock.AfterFunc(r.cfg.Timeout, func() {
		r.onTimeout(id)
	})
}

func (r *Registry) onTimeout(id string) {
	r.mu.Lock()
	rec, ok := r.active[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if rec.retries >= r.cfg.MaxRetries {
		delete(r.active, id)
		r.mu.Unlock()
		r.logger.Warn("processing failed permanently",
			slog.String("message_id", id),
			slog.String("sender_id", rec.msg.SenderID),
			slog.Int("attempts", rec.retries+1))
		if r.hub != nil {
			r.hub.Publish(notify.Event{
				Type:      notify.EventFailed,
				SenderID:  rec.msg.SenderID,
				MessageID: id,
				Detail:    "retries exhausted",
				At:        r.clock.Now(),
			})
		}
		return
	}
	rec.retries++
	rec.status = StatusQueued
	attempt := rec.retries
	backoff := time.Duration(attempt) * r.cfg.RetryDelay
	rec.timer = r.clock.AfterFunc(backoff, func() {
		r.onRetry(id)
	})
	r.mu.Unlock()

	r.logger.Info("processing timed out, retry scheduled",
		slog.String("message_id", id),
		slog.Int("attempt", attempt),
		slog.Duration("backoff", backoff))
	if r.hub != nil {
		r.hub.Publish(notify.Event{
			Type:      notify.EventRetrying,
			SenderID:  rec.msg.SenderID,
			MessageID: id,
			Detail:    strconv.Itoa(attempt),
			At:        r.clock.Now(),
		})
	}
}

func (r *Registry) onRetry(id string) {
	r.mu.Lock()
	rec, ok := r.active[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	rec.status = StatusProcessing
	rec.timer = r.scheduleTimeout(id)
	msg := rec.msg
	attempt := rec.retries
	r.mu.Unlock()

	r.handler(id, msg, attempt)
}
