package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"github.com/lorenzotomasdiez/negotiator/internal/llm"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), Options{})
	if !errors.Is(err, llm.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSplitHistory(t *testing.T) {
	system, past, last, err := splitHistory([]llm.Message{
		{Role: llm.RoleSystem, Content: "you negotiate"},
		{Role: llm.RoleUser, Content: "open"},
		{Role: llm.RoleAssistant, Content: "I want 60%"},
		{Role: llm.RoleUser, Content: "they said 50%"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if system != "you negotiate" {
		t.Errorf("system = %q", system)
	}
	if last != "they said 50%" {
		t.Errorf("last = %q", last)
	}
	if len(past) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(past))
	}
	if past[0].Role != "user" || past[1].Role != "model" {
		t.Errorf("roles = %q, %q", past[0].Role, past[1].Role)
	}
	if got := past[1].Parts[0].(genai.Text); got != "I want 60%" {
		t.Errorf("model turn = %q", got)
	}
}

func TestSplitHistoryRejectsTrailingAssistant(t *testing.T) {
	_, _, _, err := splitHistory([]llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
	})
	if err == nil {
		t.Fatal("expected error when history does not end with a user message")
	}
	if _, _, _, err := splitHistory(nil); err == nil {
		t.Fatal("expected error for empty history")
	}
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"a":`), genai.Text(`1}`)}},
		}},
	}
	got, err := responseText(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"a":1}` {
		t.Errorf("got %q", got)
	}
}

func TestResponseTextEmpty(t *testing.T) {
	for _, resp := range []*genai.GenerateContentResponse{
		nil,
		{},
		{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}},
	} {
		if _, err := responseText(resp); !errors.Is(err, llm.ErrEmptyResponse) {
			t.Errorf("expected ErrEmptyResponse, got %v", err)
		}
	}
}
