package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"diaryrag/internal/domain"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	t.Setenv("TEST_LLM_KEY", "k")
	c, err := NewClient(Config{BaseURL: url, APIKeyEnv: "TEST_LLM_KEY"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestComplete_SendsParamsAndTrimsContent(t *testing.T) {
	var mu sync.Mutex
	var got struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"gpt-4.1-nano",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  조언입니다.\n"}}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL).Complete(context.Background(), domain.ChatRequest{
		Model:       "gpt-4.1-nano",
		MaxTokens:   200,
		Temperature: 0.6,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: "sys"},
			{Role: "user", Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if out != "조언입니다." {
		t.Fatalf("out=%q", out)
	}
	if got.Model != "gpt-4.1-nano" || got.MaxTokens != 200 || got.Temperature != 0.6 {
		t.Fatalf("request=%+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hi" {
		t.Fatalf("messages=%+v", got.Messages)
	}
}

func TestComplete_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), domain.ChatRequest{Model: "m"})
	var ext *domain.ExternalServiceError
	if !errors.As(err, &ext) || ext.Service != "llm" {
		t.Fatalf("err=%v, want ExternalServiceError", err)
	}
}

func TestComplete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, srv.URL).Complete(ctx, domain.ChatRequest{Model: "m"})
	if !domain.IsTimeout(err) {
		t.Fatalf("err=%v, want timeout", err)
	}
}
