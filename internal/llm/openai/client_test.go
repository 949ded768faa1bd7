package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lorenzotomasdiez/negotiator/internal/llm"
)

// writeStream answers with an SSE body carrying one delta per chunk.
func writeStream(w http.ResponseWriter, chunks ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, c := range chunks {
		payload, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"delta": map[string]string{"content": c}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", payload)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify method and path
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected /chat/completions, got %s", r.URL.Path)
		}

		// Verify headers
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected Authorization header 'Bearer test-key', got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type 'application/json', got %q", r.Header.Get("Content-Type"))
		}

		// Verify request body
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("failed to read body: %v", err)
		}
		var req ChatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("failed to unmarshal request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected model 'test-model', got %q", req.Model)
		}
		if !req.Stream {
			t.Error("expected stream=true")
		}
		if req.MaxTokens != 1200 {
			t.Errorf("expected max_tokens 1200, got %d", req.MaxTokens)
		}
		if req.ResponseFormat != nil {
			t.Errorf("free-text completion should not set response_format, got %+v", req.ResponseFormat)
		}
		if len(req.Messages) != 2 || req.Messages[1].Content != "hello" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		writeStream(w, "hi", " there")
	}))
	defer server.Close()

	client := NewClient(Options{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"})
	got, err := client.Complete(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hi there" {
		t.Errorf("expected 'hi there', got %q", got)
	}
}

func TestCompleteJSONRequestsJSONObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("expected response_format json_object, got %+v", req.ResponseFormat)
		}
		if len(req.Messages) != 2 {
			t.Fatalf("expected system+user messages, got %d", len(req.Messages))
		}
		if req.Messages[1].Content != "analyze this" {
			t.Errorf("unexpected user prompt %q", req.Messages[1].Content)
		}
		writeStream(w, `{"ok":`, `true}`)
	}))
	defer server.Close()

	client := NewClientWithBaseURL("test-key", server.URL)
	got, err := client.CompleteJSON(context.Background(), "analyze this", `{"ok": bool}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"ok":true}` {
		t.Errorf("got %q", got)
	}
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Options{APIKey: "my-key"})
	if client.baseURL != "https://newapi.deepwisdom.ai/v1" {
		t.Errorf("expected default base URL, got %q", client.baseURL)
	}
	if client.apiKey != "my-key" {
		t.Errorf("expected apiKey 'my-key', got %q", client.apiKey)
	}
	if client.timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", client.timeout)
	}
	if client.limiter != nil {
		t.Error("expected no limiter when RateLimit is zero")
	}
	if client.maxRetries != 0 {
		t.Errorf("expected no HTTP retries by default, got %d", client.maxRetries)
	}
}

func TestCompleteMissingAPIKey(t *testing.T) {
	client := NewClient(Options{})
	_, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}})
	if !errors.Is(err, llm.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func noDelay(attempt int) time.Duration { return 0 }

// recordSleeps replaces the client's waits with a recorder.
func recordSleeps(c *Client) *[]time.Duration {
	var waits []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return &waits
}

func TestCompleteDoesNotRetryByDefault(t *testing.T) {
	var count atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "server error")
	}))
	defer server.Close()

	client := NewClientWithBaseURL("test-key", server.URL)
	waits := recordSleeps(client)

	_, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hello"}})
	if !errors.Is(err, llm.ErrUpstreamStatus) {
		t.Fatalf("expected ErrUpstreamStatus, got %v", err)
	}
	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 request without MaxRetries, got %d", got)
	}
	if len(*waits) != 0 {
		t.Errorf("expected no waits, got %v", *waits)
	}
}

func TestCompleteNoRetryOn400(t *testing.T) {
	var count atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "bad request")
	}))
	defer server.Close()

	client := NewClient(Options{APIKey: "test-key", BaseURL: server.URL, MaxRetries: 1})
	client.backoffFunc = noDelay

	_, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hello"}})
	if !errors.Is(err, llm.ErrUpstreamStatus) {
		t.Fatalf("expected ErrUpstreamStatus, got %v", err)
	}
	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 request (no retry), got %d", got)
	}
}

func TestCompleteRetries500(t *testing.T) {
	var count atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if count.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, "server error")
			return
		}
		writeStream(w, "ok")
	}))
	defer server.Close()

	client := NewClient(Options{APIKey: "test-key", BaseURL: server.URL, MaxRetries: 1})
	client.backoffFunc = noDelay
	recordSleeps(client)

	got, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hello"}})
	if err != nil {
		t.Fatalf("expected success after retry, got error: %v", err)
	}
	if got != "ok" {
		t.Errorf("expected 'ok', got %q", got)
	}
	if got := count.Load(); got != 2 {
		t.Errorf("expected 2 total requests, got %d", got)
	}
}

func TestCompleteMaxRetries(t *testing.T) {
	var count atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "rate limited")
	}))
	defer server.Close()

	client := NewClient(Options{APIKey: "test-key", BaseURL: server.URL, MaxRetries: 1})
	client.backoffFunc = noDelay
	waits := recordSleeps(client)

	_, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hello"}})
	var se *llm.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 StatusError, got %v", err)
	}
	if got := count.Load(); got != 2 {
		t.Errorf("expected 2 total attempts (1 + 1 retry), got %d", got)
	}
	if len(*waits) != 1 || (*waits)[0] != time.Second {
		t.Errorf("expected one Retry-After wait of 1s, got %v", *waits)
	}
}

func TestCompleteEmptyPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeStream(w)
	}))
	defer server.Close()

	client := NewClientWithBaseURL("test-key", server.URL)
	_, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hello"}})
	if !errors.Is(err, llm.ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestCompleteTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(Options{APIKey: "test-key", BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hello"}})
	if !errors.Is(err, llm.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("call should be cut off near the timeout, took %v", elapsed)
	}
}

func TestCompleteRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeStream(w, "ok")
	}))
	defer server.Close()

	client := NewClient(Options{APIKey: "k", BaseURL: server.URL, RateLimit: 1000})
	if client.limiter == nil {
		t.Fatal("expected limiter to be configured")
	}
	for range 3 {
		if _, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}
