package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docseek/internal/llm"
)

func newChatServer(t *testing.T, parts []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req struct {
			Model    string `json:"model"`
			Stream   *bool  `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Equal(t, "hi", req.Messages[1].Content)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		if req.Stream != nil && !*req.Stream {
			fmt.Fprintf(w, `{"model":"llama3.2","message":{"role":"assistant","content":%q},"done":true}`+"\n", "whole answer")
			return
		}
		for i, p := range parts {
			fmt.Fprintf(w, `{"model":"llama3.2","message":{"role":"assistant","content":%q},"done":%t}`+"\n", p, i == len(parts)-1)
		}
	}))
}

func conversation() []llm.Message {
	return []llm.Message{{Role: llm.RoleSystem, Content: "be brief"}, {Role: llm.RoleUser, Content: "hi"}}
}

func TestChat(t *testing.T) {
	srv := newChatServer(t, nil)
	defer srv.Close()
	c, err := New(Config{Host: srv.URL})
	require.NoError(t, err)

	out, err := c.Chat(context.Background(), conversation())
	require.NoError(t, err)
	assert.Equal(t, "whole answer", out)
}

func TestChatStream(t *testing.T) {
	srv := newChatServer(t, []string{"Hel", "lo", ""})
	defer srv.Close()
	c, err := New(Config{Host: srv.URL})
	require.NoError(t, err)

	var deltas []string
	out, err := c.ChatStream(context.Background(), conversation(), func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
}

func TestChatServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()
	c, err := New(Config{Host: srv.URL})
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), conversation())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestNewRejectsBadHost(t *testing.T) {
	_, err := New(Config{Host: "://bad"})
	require.Error(t, err)
}
