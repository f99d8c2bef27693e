// Package pipeline binds classification, aggregation, processing, and
// delivery into the inbound-to-outbound message flow.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chatpipeai/chatpipe/internal/aggregate"
	"github.com/chatpipeai/chatpipe/internal/channel"
	"github.com/chatpipeai/chatpipe/internal/clock"
	"github.com/chatpipeai/chatpipe/internal/dedup"
	"github.com/chatpipeai/chatpipe/internal/delivery"
	"github.com/chatpipeai/chatpipe/internal/history"
	"github.com/chatpipeai/chatpipe/internal/notify"
	"github.com/chatpipeai/chatpipe/internal/processing"
	"github.com/chatpipeai/chatpipe/internal/responder"
)

// ErrValidation marks malformed inbound events; they fail fast and are
// never buffered.
var ErrValidation = errors.New("invalid inbound event")

const defaultApology = "ขออภัยค่ะ ขณะนี้ระบบไม่สามารถตอบกลับได้ กรุณาลองใหม่อีกครั้ง"

// Options groups the tunables of the pipeline stages.
type Options struct {
	Aggregator aggregate.AggregatorConfig
	Correlator aggregate.CorrelatorConfig
	Processing processing.Config
	// Apology is sent when the responder collaborator fails; the record
	// still completes so the user never waits on a hung reply.
	Apology string
	// ChannelName labels history rows.
	ChannelName string
}

// Pipeline owns the per-sender buffers and the processing registry, and
// drives the responder and deliverer.
type Pipeline struct {
	aggregator *aggregate.Aggregator
	correlator *aggregate.Correlator
	registry   *processing.Registry
	deliverer  *delivery.Deliverer
	responder  responder.Responder
	history    history.Writer
	hub        *notify.Hub
	logger     *slog.Logger
	opts       Options
}

// New wires the pipeline stages together. completed is the TTL store
// backing the processing dedup window.
func New(log *slog.Logger, c clock.Clock, opts Options, completed *dedup.Store, deliverer *delivery.Deliverer, resp responder.Responder, hist history.Writer, hub *notify.Hub) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if opts.Apology == "" {
		opts.Apology = defaultApology
	}
	if opts.ChannelName == "" {
		opts.ChannelName = "chat"
	}
	if hist == nil {
		hist = history.Noop{}
	}
	p := &Pipeline{
		deliverer: deliverer,
		responder: resp,
		history:   hist,
		hub:       hub,
		logger:    log.With(slog.String("component", "pipeline")),
		opts:      opts,
	}
	p.registry = processing.NewRegistry(log, c, opts.Processing, completed, hub, p.process)
	p.aggregator = aggregate.NewAggregator(log, c, opts.Aggregator, hub, p.onTextFlush)
	p.correlator = aggregate.NewCorrelator(log, c, opts.Correlator, p.aggregator, hub, p.onImageFlush)
	return p
}

// HandleEvent classifies one raw inbound event and routes it to the
// appropriate buffer. Only malformed events return an error; everything
// downstream of classification is fail-open.
func (p *Pipeline) HandleEvent(ctx context.Context, ev channel.InboundEvent) error {
	if strings.TrimSpace(ev.SenderID) == "" {
		return fmt.Errorf("%w: sender id is required", ErrValidation)
	}
	switch ev.Type {
	case channel.ContentText:
		if strings.TrimSpace(ev.Text) == "" {
			return fmt.Errorf("%w: text event with empty text", ErrValidation)
		}
		// Text arriving while an image pends belongs to that image.
		if p.correlator.CaptureText(ev.SenderID, ev.Text) {
			return nil
		}
		p.aggregator.SubmitFragment(ev.SenderID, ev.Text, ev.ReplyToken)
	case channel.ContentImage:
		if strings.TrimSpace(ev.ImageID) == "" {
			return fmt.Errorf("%w: image event without image id", ErrValidation)
		}
		p.correlator.SubmitImage(ev.SenderID, ev.ImageID, ev.ReplyToken)
	case channel.ContentSticker, channel.ContentOther:
		p.logger.Debug("unsupported content type ignored",
			slog.String("sender_id", ev.SenderID),
			slog.String("type", string(ev.Type)))
	default:
		return fmt.Errorf("%w: unknown content type %q", ErrValidation, ev.Type)
	}
	return nil
}

// Registry exposes the processing registry, mainly for observability.
func (p *Pipeline) Registry() *processing.Registry {
	return p.registry
}

func (p *Pipeline) onTextFlush(senderID, text, replyToken string) {
	p.persist(senderID, "user", text)
	_, duplicate := p.registry.Enqueue(processing.Message{
		SenderID:   senderID,
		Content:    text,
		ReplyToken: replyToken,
	})
	if duplicate {
		p.logger.Debug("duplicate logical message dropped",
			slog.String("sender_id", senderID))
	}
}

func (p *Pipeline) onImageFlush(senderID, imageID string, comment *string, replyToken string) {
	content := ""
	if comment != nil {
		content = *comment
	}
	record := "[image]"
	if content != "" {
		record = record + " " + content
	}
	p.persist(senderID, "user", record)
	_, duplicate := p.registry.Enqueue(processing.Message{
		SenderID:   senderID,
		Content:    content,
		ImageID:    imageID,
		ReplyToken: replyToken,
	})
	if duplicate {
		p.logger.Debug("duplicate image message dropped",
			slog.String("sender_id", senderID))
	}
}

// process is the registry handler: generate a reply and deliver it.
// Responder failures fail open with the apology text; the record always
// completes so the sender never hangs.
func (p *Pipeline) process(id string, msg processing.Message, attempt int) {
	ctx := context.Background()
	prompt := msg.Content
	if msg.ImageID != "" && prompt == "" {
		prompt = "[image]"
	}

	replyText := p.opts.Apology
	reply, err := p.responder.Generate(ctx, msg.SenderID, prompt)
	if err != nil {
		p.logger.Warn("responder failed, substituting apology",
			slog.String("message_id", id),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
	} else {
		replyText = reply.Text
	}

	if msg.ReplyToken != "" {
		_ = p.deliverer.Reply(ctx, msg.ReplyToken, replyText)
	} else {
		_ = p.deliverer.Send(ctx, msg.SenderID, replyText, id, false)
	}
	p.persist(msg.SenderID, "assistant", replyText)
	p.registry.Complete(id, true)
}

func (p *Pipeline) persist(senderID, role, content string) {
	if err := p.history.Persist(context.Background(), senderID, role, content, p.opts.ChannelName); err != nil {
		p.logger.Warn("persist history failed",
			slog.String("sender_id", senderID),
			slog.String("role", role),
			slog.Any("error", err))
	}
}
