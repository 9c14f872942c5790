// Package llmclient calls an LLM chat-completion endpoint and guarantees the
// response's primary text payload is syntactically valid JSON, making up
// to three attempts with exponential backoff.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const defaultTemperature = 0.2

// Client calls a single chat-completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
	sleep      func(time.Duration)
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithSleep overrides the sleep function, for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithHTTPClient overrides the transport, for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New builds a Client against baseURL (a chat/completions-compatible
// OpenRouter-style endpoint), authenticating with apiKey.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		now:        time.Now,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat responseFormat  `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CallOptions configures one Complete call.
type CallOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Complete sends system+user prompts to the chat-completions endpoint and
// returns the parsed JSON content payload. Makes up to three attempts with
// exponential backoff 2^(attempt-1) seconds on network failure, 429, or a
// content field that isn't valid JSON.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, opts CallOptions) (any, error) {
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4000
	}

	reqBody := chatRequest{
		Model: opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		content, err := c.attempt(ctx, reqBody)
		if err == nil {
			var parsed any
			if unmarshalErr := json.Unmarshal([]byte(content), &parsed); unmarshalErr != nil {
				lastErr = newInvalidOutputError(fmt.Sprintf("content field not valid JSON: %v", unmarshalErr))
				c.backoff(attempt)
				continue
			}
			return parsed, nil
		}

		lastErr = err
		if ghErr, ok := err.(*Error); ok {
			switch ghErr.Kind {
			case KindTransport, KindRateLimited, KindInvalidOutput:
				if ghErr.RetryAfterMs > 0 {
					c.sleep(time.Duration(ghErr.RetryAfterMs) * time.Millisecond)
				} else {
					c.backoff(attempt)
				}
				continue
			default:
				return nil, err
			}
		}
		return nil, err
	}
	return nil, lastErr
}

func (c *Client) backoff(attempt int) {
	c.sleep(time.Duration(1<<uint(attempt-1)) * time.Second)
}

func (c *Client) attempt(ctx context.Context, reqBody chatRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", newTransportError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", newTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", newTransportError(err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		rlErr := newRateLimitedError(resp.StatusCode)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
				rlErr.RetryAfterMs = secs * 1000
			}
		}
		return "", rlErr
	}
	if resp.StatusCode != http.StatusOK {
		return "", newUpstreamError(resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", newInvalidOutputError(fmt.Sprintf("response body not parseable as transport-level JSON: %v", err))
	}
	if len(parsed.Choices) == 0 {
		return "", newInvalidOutputError("response missing choices[0].message.content")
	}
	return parsed.Choices[0].Message.Content, nil
}
