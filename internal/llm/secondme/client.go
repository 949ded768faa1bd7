package secondme

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/lorenzotomasdiez/negotiator/internal/llm"
)

const (
	defaultBaseURL   = "https://app.mindos.com/gate/lab"
	defaultMaxTokens = 800
	defaultTimeout   = 15 * time.Second
)

var instanceIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Options configures the premium backend shared by every session.
type Options struct {
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// Client speaks for one party through its own instance, authenticated by the
// session's access token. It implements llm.Gateway.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxTokens  int
	timeout    time.Duration
	token      string
	instanceID string
}

var _ llm.Gateway = (*Client)(nil)

type chatRequest struct {
	Messages    []llm.Message `json:"messages"`
	Metadata    chatMetadata  `json:"metadata"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatMetadata struct {
	EnableL0Retrieval bool   `json:"enable_l0_retrieval"`
	RoleID            string `json:"role_id"`
}

type actRequest struct {
	Message       string `json:"message"`
	ActionControl string `json:"actionControl"`
}

// NewClient returns a Client bound to token and instanceID. The instance id
// becomes part of the request path, so it is checked against a strict charset.
func NewClient(opts Options, token, instanceID string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("secondme: %w: missing access token", llm.ErrNotConfigured)
	}
	if !instanceIDRe.MatchString(instanceID) {
		return nil, fmt.Errorf("secondme: invalid instance ID %q", instanceID)
	}
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    opts.BaseURL,
		maxTokens:  opts.MaxTokens,
		timeout:    opts.Timeout,
		token:      token,
		instanceID: instanceID,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c, nil
}

// Complete implements llm.Gateway.
func (c *Client) Complete(ctx context.Context, history []llm.Message) (string, error) {
	return c.post(ctx, "/api/chat/"+c.instanceID, chatRequest{
		Messages: history,
		Metadata: chatMetadata{
			EnableL0Retrieval: true,
			RoleID:            "default_role",
		},
		Temperature: 0.7,
		MaxTokens:   c.maxTokens,
		Stream:      true,
	})
}

// CompleteJSON implements llm.Gateway through the structured action endpoint.
func (c *Client) CompleteJSON(ctx context.Context, prompt, schemaHint string) (string, error) {
	control := "Output only a valid JSON object."
	if schemaHint != "" {
		control += " Structure:\n" + schemaHint
	}
	return c.post(ctx, "/api/secondme/act/stream", actRequest{
		Message:       prompt,
		ActionControl: control,
	})
}

func (c *Client) post(ctx context.Context, path string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("secondme: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("secondme: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("secondme: %w", llm.Timeout(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("secondme: %w", &llm.StatusError{Code: resp.StatusCode, Body: string(respBody)})
	}

	text, err := llm.ReadStream(resp.Body)
	if err != nil {
		return "", fmt.Errorf("secondme: %w", err)
	}
	return text, nil
}
