package delivery

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/chatpipeai/chatpipe/internal/channel"
	"github.com/chatpipeai/chatpipe/internal/clock"
	"github.com/chatpipeai/chatpipe/internal/dedup"
	"github.com/chatpipeai/chatpipe/internal/notify"
)

// ErrInvalidInput marks malformed delivery requests that fail fast.
var ErrInvalidInput = errors.New("invalid delivery input")

// HistoryWriter persists delivered messages. Failures are logged by the
// deliverer and never retried inline.
type HistoryWriter interface {
	Persist(ctx context.Context, senderID, role, content, channelName string) error
}

// Notifier receives best-effort delivery events.
type Notifier interface {
	Publish(event notify.Event)
}

// Config tunes splitting, retry, dedup, and broadcast pacing.
type Config struct {
	// MaxLength is the per-segment rune ceiling imposed by the channel.
	MaxLength int
	// SplitWindow is how far back from the ceiling a newline or space
	// is preferred as the cut point.
	SplitWindow int
	// MaxRetries bounds remote call retries per delivery.
	MaxRetries int
	// RetryDelay is the fixed wait between retries.
	RetryDelay time.Duration
	// BatchSize and BatchDelay pace bulk sends.
	BatchSize  int
	BatchDelay time.Duration
}

func normalizeConfig(cfg Config) Config {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 4500
	}
	if cfg.SplitWindow <= 0 {
		cfg.SplitWindow = 500
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 150
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = time.Second
	}
	return cfg
}

// RecipientResult is the outcome of one recipient in a bulk send.
type RecipientResult struct {
	Recipient string `json:"recipient"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// BroadcastResult summarizes a bulk send.
type BroadcastResult struct {
	Results   []RecipientResult `json:"results"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// Deliverer performs reliable push and reply sends.
type Deliverer struct {
	client  channel.Client
	cache   *dedup.Store
	locks   *dedup.LockSet
	history HistoryWriter
	hub     Notifier
	clock   clock.Clock
	logger  *slog.Logger
	cfg     Config
}

// NewDeliverer creates a Deliverer. cache suppresses duplicate immediate
// re-sends; locks serialize identical in-flight replies.
func NewDeliverer(log *slog.Logger, c clock.Clock, cfg Config, client channel.Client, cache *dedup.Store, locks *dedup.LockSet, history HistoryWriter, hub Notifier) *Deliverer {
	if log == nil {
		log = slog.Default()
	}
	return &Deliverer{
		client:  client,
		cache:   cache,
		locks:   locks,
		history: history,
		hub:     hub,
		clock:   c,
		logger:  log.With(slog.String("component", "delivery")),
		cfg:     normalizeConfig(cfg),
	}
}

// Send pushes content to a recipient. A (recipient, content, messageID)
// triple seen within the cache TTL short-circuits as success without a
// remote call. Admin-originated sends are persisted to history; terminal
// delivery failures are logged and swallowed.
func (d *Deliverer) Send(ctx context.Context, recipient, content, messageID string, adminOriginated bool) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" || strings.TrimSpace(content) == "" {
		return ErrInvalidInput
	}
	key := dedup.Signature("push", recipient, content, messageID)
	if d.cache != nil && d.cache.Seen(key) {
		d.logger.Debug("duplicate send short-circuited",
			slog.String("recipient", recipient),
			slog.String("message_id", messageID))
		return nil
	}

	err := d.pushWithRetry(ctx, recipient, content)
	if err != nil {
		d.logger.Error("push failed permanently",
			slog.String("recipient", recipient),
			slog.Any("error", err))
		d.publish(notify.EventFailed, recipient, messageID, err.Error())
		return nil
	}
	if d.cache != nil {
		d.cache.Put(key)
	}
	if adminOriginated && d.history != nil {
		if histErr := d.history.Persist(ctx, recipient, "admin", content, "push"); histErr != nil {
			d.logger.Warn("persist admin message failed",
				slog.String("recipient", recipient),
				slog.Any("error", histErr))
		}
	}
	d.publish(notify.EventSent, recipient, messageID, "")
	return nil
}

// Reply answers a reply token. An empty token is a warned no-op. An
// exclusive lock over (token, content) guards the attempt so identical
// concurrent replies cannot double-send; the lock is released
// unconditionally. Terminal failures are logged, never raised.
func (d *Deliverer) Reply(ctx context.Context, token, content string) error {
	if strings.TrimSpace(token) == "" {
		d.logger.Warn("reply skipped: empty reply token")
		return nil
	}
	if strings.TrimSpace(content) == "" {
		return ErrInvalidInput
	}
	sig := dedup.Signature("reply", token, content)
	if d.locks != nil {
		if !d.locks.TryAcquire(sig) {
			d.logger.Debug("identical reply already in flight",
				slog.String("signature", sig))
			return nil
		}
		defer d.locks.Release(sig)
	}

	segments := SplitMessage(content, d.cfg.MaxLength, d.cfg.SplitWindow)
	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(d.cfg.RetryDelay)
		}
		if err := d.client.Reply(ctx, token, segments); err != nil {
			lastErr = err
			d.logger.Warn("reply attempt failed",
				slog.Int("attempt", attempt+1),
				slog.Any("error", err))
			continue
		}
		d.publish(notify.EventSent, "", "", "")
		return nil
	}
	d.logger.Error("reply failed permanently",
		slog.Int("attempts", d.cfg.MaxRetries),
		slog.Any("error", lastErr))
	d.publish(notify.EventFailed, "", "", lastErr.Error())
	return nil
}

// Broadcast sends content to each recipient independently in rate-aware
// batches. One recipient's failure never aborts the batch.
func (d *Deliverer) Broadcast(ctx context.Context, recipients []string, content string) BroadcastResult {
	result := BroadcastResult{Results: make([]RecipientResult, 0, len(recipients))}
	for i, recipient := range recipients {
		if i > 0 && i%d.cfg.BatchSize == 0 {
			time.Sleep(d.cfg.BatchDelay)
		}
		err := d.pushWithRetry(ctx, recipient, content)
		if err != nil {
			result.Failed++
			result.Results = append(result.Results, RecipientResult{
				Recipient: recipient,
				Error:     err.Error(),
			})
			d.logger.Warn("broadcast recipient failed",
				slog.String("recipient", recipient),
				slog.Any("error", err))
			continue
		}
		result.Succeeded++
		result.Results = append(result.Results, RecipientResult{Recipient: recipient, OK: true})
	}
	return result
}

func (d *Deliverer) pushWithRetry(ctx context.Context, recipient, content string) error {
	segments := SplitMessage(content, d.cfg.MaxLength, d.cfg.SplitWindow)
	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(d.cfg.RetryDelay)
		}
		if err := d.client.Push(ctx, recipient, segments); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (d *Deliverer) publish(eventType notify.EventType, recipient, messageID, detail string) {
	if d.hub == nil {
		return
	}
	d.hub.Publish(notify.Event{
		Type:      eventType,
		SenderID:  recipient,
		MessageID: messageID,
		Detail:    detail,
		At:        d.clock.Now(),
	})
}
