package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HTTPClient talks to the channel's remote messaging API over HTTPS.
type HTTPClient struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewHTTPClient creates a client for the given API base URL and bearer token.
func NewHTTPClient(log *slog.Logger, baseURL, accessToken string, timeout time.Duration) *HTTPClient {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      log.With(slog.String("component", "channel_client")),
	}
}

type textSegment struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textSegment `json:"messages"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textSegment `json:"messages"`
}

// Push delivers segments to a recipient as one API call.
func (c *HTTPClient) Push(ctx context.Context, recipientID string, segments []string) error {
	return c.post(ctx, "/message/push", pushRequest{To: recipientID, Messages: toSegments(segments)})
}

// Reply delivers segments against a reply token as one API call.
func (c *HTTPClient) Reply(ctx context.Context, replyToken string, segments []string) error {
	return c.post(ctx, "/message/reply", replyRequest{ReplyToken: replyToken, Messages: toSegments(segments)})
}

func toSegments(segments []string) []textSegment {
	out := make([]textSegment, 0, len(segments))
	for _, s := range segments {
		out = append(out, textSegment{Type: "text", Text: s})
	}
	return out
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal channel request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build channel request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("channel request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("channel api %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
