package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/lorenzotomasdiez/negotiator/internal/llm"
)

const (
	defaultBaseURL     = "https://newapi.deepwisdom.ai/v1"
	defaultModel       = "deepseek-chat"
	defaultMaxTokens   = 1200
	defaultTemperature = 0.7
	defaultTimeout     = 30 * time.Second
)

// Options configures a Client. Zero values fall back to package defaults.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	RateLimit   float64 // requests per second across the process, 0 disables pacing
	// MaxRetries is the number of extra HTTP attempts on 429 and 5xx. Zero
	// leaves retrying to the caller.
	MaxRetries int
}

// Client talks to an OpenAI-compatible /chat/completions endpoint with
// streaming enabled and buffers the reply. It implements llm.Gateway.
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	limiter     *rate.Limiter
	maxRetries  int
	backoffFunc func(attempt int) time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

var _ llm.Gateway = (*Client)(nil)

func defaultBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NewClient creates a Client from opts.
func NewClient(opts Options) *Client {
	c := &Client{
		httpClient:  &http.Client{},
		apiKey:      opts.APIKey,
		baseURL:     opts.BaseURL,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		timeout:     opts.Timeout,
		maxRetries:  opts.MaxRetries,
		backoffFunc: defaultBackoff,
		sleep:       sleepContext,
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.temperature == 0 {
		c.temperature = defaultTemperature
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// NewClientWithBaseURL creates a Client with a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return NewClient(Options{APIKey: apiKey, BaseURL: baseURL})
}

// Complete implements llm.Gateway.
func (c *Client) Complete(ctx context.Context, history []llm.Message) (string, error) {
	return c.complete(ctx, ChatRequest{Messages: history})
}

// CompleteJSON implements llm.Gateway using response_format=json_object.
func (c *Client) CompleteJSON(ctx context.Context, prompt, schemaHint string) (string, error) {
	system := "Respond with a single JSON object and nothing else."
	if schemaHint != "" {
		system += " The object must follow this shape:\n" + schemaHint
	}
	return c.complete(ctx, ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: prompt},
		},
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
}

func (c *Client) complete(ctx context.Context, req ChatRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("openai: %w: missing API key", llm.ErrNotConfigured)
	}
	req.Model = c.model
	req.Temperature = c.temperature
	req.MaxTokens = c.maxTokens
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.doWithRetry(ctx, func(ctx context.Context) (*http.Response, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", llm.Timeout(err))
	}
	defer resp.Body.Close()

	text, err := llm.ReadStream(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	return text, nil
}

func isRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

func (c *Client) doWithRetry(ctx context.Context, do func(context.Context) (*http.Response, error)) (*http.Response, error) {
	var lastErr error
	var retryAfter time.Duration
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, max(c.backoffFunc(attempt-1), retryAfter)); err != nil {
				return nil, err
			}
		}

		resp, err := do(ctx)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		statusErr := &llm.StatusError{Code: resp.StatusCode, Body: string(respBody)}

		if !isRetryable(resp.StatusCode) {
			return nil, statusErr
		}

		// Retry-After on 429 stretches the next wait.
		retryAfter = 0
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		lastErr = statusErr
	}
	return nil, lastErr
}
