package openai

import "github.com/lorenzotomasdiez/negotiator/internal/llm"

// ChatRequest represents a request to the chat completions endpoint.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []llm.Message   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	Stream         bool            `json:"stream"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat asks compatible servers to constrain the output shape.
type ResponseFormat struct {
	Type string `json:"type"`
}
