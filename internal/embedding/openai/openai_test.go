package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"diaryrag/internal/domain"
	"diaryrag/internal/retry"
)

func newTestClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	t.Setenv("TEST_EMBED_KEY", "k")
	c, err := NewClient(Config{
		BaseURL:    url,
		APIKeyEnv:  "TEST_EMBED_KEY",
		Model:      "m",
		MaxRetries: retries,
		Backoff:    retry.Fixed(0),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestEmbed_OpenAIShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" || r.Header.Get("Authorization") != "Bearer k" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	v, err := c.Embed(context.Background(), "안녕")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != 3 || c.Dimension() != 3 {
		t.Fatalf("v=%v dim=%d", v, c.Dimension())
	}
}

func TestEmbed_OllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[1,2]}`))
	}))
	defer srv.Close()

	v, err := newTestClient(t, srv.URL, 0).Embed(context.Background(), "x")
	if err != nil || len(v) != 2 {
		t.Fatalf("v=%v err=%v", v, err)
	}
}

func TestEmbed_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1]}]}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv.URL, 3).Embed(context.Background(), "x"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if hits != 3 {
		t.Fatalf("hits=%d, want 3", hits)
	}
}

func TestEmbed_ClientErrorNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 3).Embed(context.Background(), "x")
	var embErr *domain.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("err=%v, want EmbeddingError", err)
	}
	var ext *domain.ExternalServiceError
	if !errors.As(err, &ext) {
		t.Fatalf("err=%v, want wrapped ExternalServiceError", err)
	}
	if hits != 1 {
		t.Fatalf("hits=%d, want 1", hits)
	}
}

func TestEmbed_EmptyVectorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[]}]}`))
	}))
	defer srv.Close()

	v, err := newTestClient(t, srv.URL, 2).Embed(context.Background(), "x")
	var embErr *domain.EmbeddingError
	if !errors.As(err, &embErr) || v != nil {
		t.Fatalf("v=%v err=%v, want EmbeddingError", v, err)
	}
}

func TestEmbed_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, srv.URL, 5).Embed(ctx, "x")
	if !domain.IsTimeout(err) {
		t.Fatalf("err=%v, want timeout", err)
	}
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("TEST_EMBED_EMPTY", "")
	if _, err := NewClient(Config{APIKeyEnv: "TEST_EMBED_EMPTY"}); err == nil {
		t.Fatalf("expected missing key error")
	}
}
