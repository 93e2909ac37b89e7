// Package llm provides the completion clients the interpreters call.
// Providers are plain HTTP implementations behind one interface so the
// engine, the tests and the CLI can swap them freely.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTimeout marks a completion cut off by the caller's deadline.
var ErrTimeout = errors.New("llm call timed out")

// Client is the interface both interpreters depend on.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ChatConfig configures an OpenAI-compatible chat-completions endpoint.
type ChatConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultChatConfig returns sensible defaults for an OpenAI-compatible host.
func DefaultChatConfig(apiKey string) ChatConfig {
	return ChatConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
		Timeout: 30 * time.Second,
	}
}

// ChatClient implements Client against /chat/completions.
type ChatClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewChatClient creates a client with custom config.
func NewChatClient(cfg ChatConfig) *ChatClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ChatClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a bare prompt.
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message. Retries up to
// three times on 429 with exponential backoff.
func (c *ChatClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("API key not configured")
	}

	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   2048,
		Temperature: 0.1, // low temperature for structured output
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	const maxRetries = 3
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", wrapCtxErr(ctx.Err())
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", wrapCtxErr(ctx.Err())
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var parsed chatResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if parsed.Error != nil {
			return "", fmt.Errorf("API error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return "", fmt.Errorf("no completion returned")
		}
		return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func wrapCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
