// Package responder generates outbound reply text for a logical inbound
// message. The pipeline treats it as an external collaborator and fails
// open when it errors.
package responder

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

// Reply is the generated response for one logical message.
type Reply struct {
	Text       string
	TokensUsed int
}

// Responder produces a reply for the given sender input.
type Responder interface {
	Generate(ctx context.Context, senderID, text string) (Reply, error)
}

// HTTPResponder calls an OpenAI-compatible chat completions endpoint.
type HTTPResponder struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPResponder creates a responder for the given endpoint and model.
func NewHTTPResponder(log *slog.Logger, baseURL, apiKey, model string, timeout time.Duration) *HTTPResponder {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPResponder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("component", "responder")),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	User     string        `json:"user,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate implements Responder.
func (r *HTTPResponder) Generate(ctx context.Context, senderID, text string) (Reply, error) {
	payload := chatRequest{
		Model:    r.model,
		Messages: []chatMessage{{Role: "user", Content: text}},
		User:     senderID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Reply{}, fmt.Errorf("marshal responder request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("build responder request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("responder request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Reply{}, fmt.Errorf("responder returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Reply{}, fmt.Errorf("decode responder response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Reply{}, fmt.Errorf("responder returned no choices")
	}
	return Reply{
		Text:       parsed.Choices[0].Message.Content,
		TokensUsed: parsed.Usage.TotalTokens,
	}, nil
}
