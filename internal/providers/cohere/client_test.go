package cohere

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"draw2story/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Options{APIKey: "test", BaseURL: srv.URL, Model: "command"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestChatSendsPayload(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat" {
			t.Errorf("path = %q, want /v1/chat", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("Authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		_ = json.NewEncoder(w).Encode(map[string]any{"text": " yes \n", "generation_id": "g-1"})
	})

	zero := 0.0
	text, err := client.Chat(context.Background(), ChatRequest{Message: "is it safe?", Temperature: &zero, MaxTokens: 5})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if text != " yes \n" {
		t.Fatalf("Chat() = %q, want raw reply", text)
	}
	if captured["message"] != "is it safe?" || captured["model"] != "command" {
		t.Fatalf("payload = %#v", captured)
	}
	if captured["temperature"] != 0.0 || captured["max_tokens"] != 5.0 {
		t.Fatalf("payload sampling = %#v", captured)
	}
}

func TestChatRateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"slow down"}`))
	})
	_, err := client.GenerateText(context.Background(), "write a story")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("GenerateText() error = %v, want ErrRateLimited", err)
	}
}

func TestChatUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"internal"}`))
	})
	_, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Chat() error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError || apiErr.Message != "internal" {
		t.Fatalf("APIError = %+v", apiErr)
	}
	if errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("server error must not be reported as rate limiting")
	}
}

func TestChatRequiresCredentials(t *testing.T) {
	client, _ := NewClient(Options{})
	if _, err := client.Chat(context.Background(), ChatRequest{Message: "hi"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Chat() error = %v, want ErrMissingAPIKey", err)
	}
}
