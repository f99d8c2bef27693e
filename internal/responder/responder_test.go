package responder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateParsesCompletion(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"สวัสดีค่ะ"}}],
			"usage":{"total_tokens":42}
		}`))
	}))
	defer srv.Close()

	r := NewHTTPResponder(nil, srv.URL, "key-123", "gpt-4o-mini", time.Second)
	reply, err := r.Generate(context.Background(), "U1", "สวัสดี")
	require.NoError(t, err)

	assert.Equal(t, "สวัสดีค่ะ", reply.Text)
	assert.Equal(t, 42, reply.TokensUsed)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, "U1", got.User)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, chatMessage{Role: "user", Content: "สวัสดี"}, got.Messages[0])
}

func TestGenerateErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	r := NewHTTPResponder(nil, srv.URL, "key", "model", time.Second)
	_, err := r.Generate(context.Background(), "U1", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGenerateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	r := NewHTTPResponder(nil, srv.URL, "key", "model", time.Second)
	_, err := r.Generate(context.Background(), "U1", "hi")
	assert.Error(t, err)
}
