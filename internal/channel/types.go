// Package channel defines the inbound event model and the outbound
// client contract for the end-user messaging channel.
package channel

import (
	"context"
	"time"
)

// ContentType classifies a raw inbound event.
type ContentType string

const (
	ContentText    ContentType = "text"
	ContentImage   ContentType = "image"
	ContentSticker ContentType = "sticker"
	ContentOther   ContentType = "other"
)

// InboundEvent is one raw event delivered by the channel, prior to
// aggregation. Image payload and caption text may arrive in either order.
type InboundEvent struct {
	SenderID   string      `json:"sender_id" validate:"required"`
	Type       ContentType `json:"type" validate:"required,oneof=text image sticker other"`
	Text       string      `json:"text,omitempty"`
	ImageID    string      `json:"image_id,omitempty"`
	ReplyToken string      `json:"reply_token,omitempty"`
	ReceivedAt time.Time   `json:"received_at,omitempty"`
}

// Client sends finalized content to the channel. Each segment must
// already respect the channel's length ceiling; the client performs no
// splitting of its own.
type Client interface {
	Push(ctx context.Context, recipientID string, segments []string) error
	Reply(ctx context.Context, replyToken string, segments []string) error
}
