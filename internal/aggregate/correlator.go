package aggregate

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chatpipeai/chatpipe/internal/clock"
	"github.com/chatpipeai/chatpipe/internal/notify"
)

// ImageFlushFunc receives a flushed image with its final caption.
// comment is nil when no caption text arrived within the window.
type ImageFlushFunc func(senderID, imageID string, comment *string, replyToken string)

// TextSource lets the correlator claim a sender's recently active text
// buffer as the image's initial caption.
type TextSource interface {
	ConsumeRecent(senderID string, within time.Duration) (text, replyToken string, ok bool)
}

// CorrelatorConfig tunes the image/caption binding windows.
type CorrelatorConfig struct {
	// FlushWindow is how long an image waits for caption text before
	// flushing. Independent of, and typically longer than, the text
	// aggregation delay.
	FlushWindow time.Duration
	// TextRecency is the maximum staleness of a pending text buffer for
	// it to be consumed as the image's initial comment.
	TextRecency time.Duration
}

type pendingImage struct {
	imageID    string
	replyToken string
	arrivedAt  time.Time
	comment    string
	hasComment bool
	late       []string
	timer      clock.Timer
}

// Correlator binds an image event with nearby caption text regardless
// of arrival order. At most one image pends per sender.
type Correlator struct {
	mu      sync.Mutex
	clock   clock.Clock
	cfg     CorrelatorConfig
	texts   TextSource
	flush   ImageFlushFunc
	hub     Notifier
	logger  *slog.Logger
	pending map[string]*pendingImage
}

// NewCorrelator creates a Correlator that claims captions from texts and
// hands flushed images to flush.
func NewCorrelator(log *slog.Logger, c clock.Clock, cfg CorrelatorConfig, texts TextSource, hub Notifier, flush ImageFlushFunc) *Correlator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.FlushWindow <= 0 {
		cfg.FlushWindow = 15 * time.Second
	}
	if cfg.TextRecency <= 0 {
		cfg.TextRecency = 30 * time.Second
	}
	return &Correlator{
		clock:   c,
		cfg:     cfg,
		texts:   texts,
		flush:   flush,
		hub:     hub,
		logger:  log.With(slog.String("component", "correlator")),
		pending: make(map[string]*pendingImage),
	}
}

// SubmitImage records an inbound image. A recently updated text buffer
// for the same sender is consumed as the initial comment; the image then
// pends for FlushWindow to absorb caption text that arrives late.
func (c *Correlator) SubmitImage(senderID, imageID, replyToken string) {
	comment, textToken, hasComment := c.texts.ConsumeRecent(senderID, c.cfg.TextRecency)
	if replyToken == "" {
		replyToken = textToken
	}

	c.mu.Lock()
	displaced := c.pending[senderID]
	if displaced != nil {
		displaced.timer.Stop()
		delete(c.pending, senderID)
	}
	now := c.clock.Now()
	img := &pendingImage{
		imageID:    imageID,
		replyToken: replyToken,
		arrivedAt:  now,
		comment:    comment,
		hasComment: hasComment,
	}
	img.timer = c.clock.AfterFunc(c.cfg.FlushWindow, func() {
		c.onFlushTimer(senderID, img)
	})
	c.pending[senderID] = img
	c.mu.Unlock()

	if displaced != nil {
		c.logger.Debug("new image displaced a pending one",
			slog.String("sender_id", senderID))
		c.forward(senderID, displaced)
	}
	if c.hub != nil {
		c.hub.Publish(notify.Event{
			Type:     notify.EventWaitingImageText,
			SenderID: senderID,
			At:       now,
		})
	}
}

// CaptureText absorbs inbound text into the sender's pending image, if
// any. It reports false when no image pends, in which case the text must
// go through standalone aggregation instead; text never attaches to an
// image whose flush has already fired.
func (c *Correlator) CaptureText(senderID, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	img, ok := c.pending[senderID]
	if !ok {
		return false
	}
	img.late = append(img.late, text)
	return true
}

// HasPending reports whether an image is waiting for text for the sender.
func (c *Correlator) HasPending(senderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[senderID]
	return ok
}

func (c *Correlator) onFlushTimer(senderID string, img *pendingImage) {
	c.mu.Lock()
	current, ok := c.pending[senderID]
	if !ok || current != img {
		c.mu.Unlock()
		return
	}
	delete(c.pending, senderID)
	c.mu.Unlock()
	c.forward(senderID, img)
}

func (c *Correlator) forward(senderID string, img *pendingImage) {
	var comment *string
	merged := img.comment
	if len(img.late) > 0 {
		lateText := JoinFragments(img.late)
		merged = strings.TrimSpace(merged + " " + lateText)
	}
	if img.hasComment || merged != "" {
		comment = &merged
	}
	if c.hub != nil {
		c.hub.Publish(notify.Event{
			Type:     notify.EventProcessingStart,
			SenderID: senderID,
			At:       c.clock.Now(),
		})
	}
	c.flush(senderID, img.imageID, comment, img.replyToken)
}
