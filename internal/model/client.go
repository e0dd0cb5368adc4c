// Package model provides the model collaborators: an OpenAI-compatible
// chat client with bounded retry, the execution-side stepper that turns
// screen state into a single next action, and the planning-side completer
// the planner uses for corrective and prompt-optimization requests.
//
// Transient transport errors are retried here with a bounded count and
// delay; only exhausted retries surface to callers, as terminal errors.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Default retry policy for failed requests.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// Config holds connection settings for one model endpoint.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64

	// MaxRetries and RetryDelay bound the internal retry loop before an
	// error is surfaced as terminal.
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns a Config pointing at a local OpenAI-compatible
// server with the standard retry policy.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://localhost:8000/v1",
		APIKey:     "EMPTY",
		Model:      "autoglm-phone-9b",
		MaxTokens:  3000,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
	}
}

// Completer is the planning-side collaborator: given a system prompt and
// a user message, return the model's text response.
type Completer interface {
	Complete(ctx context.Context, system string, user string) (string, error)
}

// Message is one chat turn. Content is either a plain string or a
// structured content array (for image parts).
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Client is a reusable OpenAI-compatible chat completions client.
// Create once, use many times; safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a client for the given endpoint.
func NewClient(cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 120 * time.Second},
	}
}

// Complete sends a two-message conversation and returns the response text.
func (c *Client) Complete(ctx context.Context, system string, user string) (string, error) {
	messages := []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	return c.Chat(ctx, messages)
}

// Chat sends the full message list and returns the assistant's text. The
// request is retried up to MaxRetries times on transport errors and 5xx
// responses before the last error surfaces as terminal.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.cfg.RetryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		content, retryable, err := c.chatOnce(ctx, messages)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", fmt.Errorf("max retries exceeded after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

// chatOnce performs a single completions request. The boolean reports
// whether the failure is worth retrying.
func (c *Client) chatOnce(ctx context.Context, messages []Message) (string, bool, error) {
	body, err := json.Marshal(map[string]any{
		"model":       c.cfg.Model,
		"messages":    messages,
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
	})
	if err != nil {
		return "", false, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("server error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false, fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("response contained no choices")
	}
	return parsed.Choices[0].Message.Content, false, nil
}
