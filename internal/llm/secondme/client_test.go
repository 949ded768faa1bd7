package secondme

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lorenzotomasdiez/negotiator/internal/llm"
)

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

func TestNewClientRejectsBadInstanceID(t *testing.T) {
	for _, id := range []string{"", "../etc", "a b", "id/with/slash", "ok?x=1"} {
		if _, err := NewClient(Options{}, "tok", id); err == nil {
			t.Errorf("expected error for instance id %q", id)
		}
	}
	if _, err := NewClient(Options{}, "tok", "alice_01-x"); err != nil {
		t.Errorf("unexpected error for valid id: %v", err)
	}
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient(Options{}, "", "alice")
	if !errors.Is(err, llm.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCompletePostsToInstance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/alice" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !req.Stream || req.MaxTokens != 800 {
			t.Errorf("expected stream with 800 max tokens, got %+v", req)
		}
		if !req.Metadata.EnableL0Retrieval || req.Metadata.RoleID != "default_role" {
			t.Errorf("unexpected metadata %+v", req.Metadata)
		}
		writeStream(w, "I propose ", "60/40.")
	}))
	defer server.Close()

	client, err := NewClient(Options{BaseURL: server.URL}, "tok-123", "alice")
	if err != nil {
		t.Fatal(err)
	}
	got, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "open"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "I propose 60/40." {
		t.Errorf("got %q", got)
	}
}

func TestCompleteJSONUsesActEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/secondme/act/stream" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req actRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Message != "summarize" {
			t.Errorf("message = %q", req.Message)
		}
		if req.ActionControl == "" {
			t.Error("expected actionControl to carry the schema hint")
		}
		writeStream(w, `{"consensus_reached":true}`)
	}))
	defer server.Close()

	client, _ := NewClient(Options{BaseURL: server.URL}, "tok", "alice")
	got, err := client.CompleteJSON(context.Background(), "summarize", `{"consensus_reached": bool}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"consensus_reached":true}` {
		t.Errorf("got %q", got)
	}
}

func TestCompleteErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "token expired")
	}))
	defer server.Close()

	client, _ := NewClient(Options{BaseURL: server.URL}, "tok", "alice")
	_, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}})
	if !errors.Is(err, llm.ErrUpstreamStatus) {
		t.Fatalf("expected ErrUpstreamStatus, got %v", err)
	}
}
