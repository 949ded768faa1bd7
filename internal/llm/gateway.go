package llm

import (
	"context"
	"errors"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a chat history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Gateway abstracts a chat-completion backend.
type Gateway interface {
	// Complete sends the whole history and returns the buffered reply text.
	Complete(ctx context.Context, history []Message) (string, error)
	// CompleteJSON asks for a JSON-shaped reply. schemaHint describes the
	// expected object; backends that cannot enforce it still pass it along.
	CompleteJSON(ctx context.Context, prompt, schemaHint string) (string, error)
}

var (
	ErrUpstreamStatus = errors.New("llm: upstream returned non-success status")
	ErrEmptyResponse  = errors.New("llm: empty response")
	ErrTimeout        = errors.New("llm: call timed out")
	ErrNotConfigured  = errors.New("llm: backend not configured")
)

// StatusError carries the status code and body of a failed upstream call.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUpstreamStatus }

// Timeout rewrites a deadline error into ErrTimeout so callers can tell a
// time-boxed call apart from a caller cancellation.
func Timeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// Func adapts plain functions to Gateway. Handy in tests and for wiring
// ad-hoc backends.
type Func struct {
	CompleteFunc     func(ctx context.Context, history []Message) (string, error)
	CompleteJSONFunc func(ctx context.Context, prompt, schemaHint string) (string, error)
}

func (f Func) Complete(ctx context.Context, history []Message) (string, error) {
	if f.CompleteFunc == nil {
		return "", ErrNotConfigured
	}
	return f.CompleteFunc(ctx, history)
}

func (f Func) CompleteJSON(ctx context.Context, prompt, schemaHint string) (string, error) {
	if f.CompleteJSONFunc == nil {
		return "", ErrNotConfigured
	}
	return f.CompleteJSONFunc(ctx, prompt, schemaHint)
}
