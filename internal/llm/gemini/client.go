package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/lorenzotomasdiez/negotiator/internal/llm"
)

const (
	defaultModel     = "gemini-2.0-flash-001"
	defaultMaxTokens = 2048
	defaultTimeout   = 30 * time.Second
)

type Options struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Client backs llm.Gateway with Gemini. Its CompleteJSON sets the response
// MIME type to application/json, so the service itself constrains the shape.
type Client struct {
	client    *genai.Client
	modelName string
	maxTokens int32
	timeout   time.Duration
}

var _ llm.Gateway = (*Client)(nil)

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w: missing API key", llm.ErrNotConfigured)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	c := &Client{
		client:    client,
		modelName: opts.Model,
		maxTokens: int32(opts.MaxTokens),
		timeout:   opts.Timeout,
	}
	if c.modelName == "" {
		c.modelName = defaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Complete implements llm.Gateway with a chat session seeded from history.
func (c *Client) Complete(ctx context.Context, history []llm.Message) (string, error) {
	system, past, last, err := splitHistory(history)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}

	model := c.client.GenerativeModel(c.modelName)
	model.SetMaxOutputTokens(c.maxTokens)
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}
	cs := model.StartChat()
	cs.History = past

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", fmt.Errorf("gemini: %w", llm.Timeout(err))
	}
	return responseText(resp)
}

// CompleteJSON implements llm.Gateway.
func (c *Client) CompleteJSON(ctx context.Context, prompt, schemaHint string) (string, error) {
	model := c.client.GenerativeModel(c.modelName)
	model.SetMaxOutputTokens(c.maxTokens)
	model.ResponseMIMEType = "application/json"
	instruction := "Return a single JSON object."
	if schemaHint != "" {
		instruction += " It must follow this shape:\n" + schemaHint
	}
	model.SystemInstruction = genai.NewUserContent(genai.Text(instruction))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini: %w", llm.Timeout(err))
	}
	return responseText(resp)
}

// splitHistory maps chat messages onto Gemini's shape: system messages become
// the system instruction, the final user message is what gets sent, and
// everything in between becomes chat history.
func splitHistory(history []llm.Message) (system string, past []*genai.Content, last string, err error) {
	if len(history) == 0 {
		return "", nil, "", fmt.Errorf("empty history")
	}
	tail := history[len(history)-1]
	if tail.Role != llm.RoleUser {
		return "", nil, "", fmt.Errorf("history must end with a user message, got %q", tail.Role)
	}

	var systems []string
	for _, m := range history[:len(history)-1] {
		switch m.Role {
		case llm.RoleSystem:
			systems = append(systems, m.Content)
		case llm.RoleAssistant:
			past = append(past, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			past = append(past, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	return strings.Join(systems, "\n\n"), past, tail.Content, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: %w", llm.ErrEmptyResponse)
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini: %w", llm.ErrEmptyResponse)
	}
	return sb.String(), nil
}
