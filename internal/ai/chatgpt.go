package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrTimeout means the completion did not finish in time
	ErrTimeout = errors.New("ai request timed out")
	// ErrUnavailable means the provider could not serve the request right now
	ErrUnavailable = errors.New("ai provider unavailable")
	// ErrRejected means the provider refused the request; retrying will not help
	ErrRejected = errors.New("ai request rejected")
	// ErrNotConfigured is returned by New when no API key is set
	ErrNotConfigured = errors.New("OPENAI_API_KEY is not set")
)

// Completer is the text completion capability used for grading
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config configures the ChatGPT client
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// ChatGPT represents a client for an OpenAI-compatible chat completions API
type ChatGPT struct {
	apiKey      string
	apiURL      string
	model       string
	maxTokens   int
	temperature float64
	jsonMode    bool
	httpClient  *http.Client
}

// New creates a new ChatGPT client
func New(cfg Config) (*ChatGPT, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &ChatGPT{
		apiKey:      cfg.APIKey,
		apiURL:      baseURL + "/chat/completions",
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		jsonMode:    cfg.JSONMode,
		// Deadlines come from the caller's context
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// Message represents a message in the conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// ChatRequest represents a request to the chat completions API
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// ChatResponse represents a response from the chat completions API
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// HTTPError carries a non-2xx response
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("ai http %d: %s", e.StatusCode, e.Body)
}

// Complete sends one chat completion request. Failures are classified as
// ErrTimeout, ErrUnavailable or ErrRejected.
func (c *ChatGPT) Complete(ctx context.Context, system, user string) (string, error) {
	request := ChatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	if c.jsonMode {
		request.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	requestData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(requestData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout {
			return "", fmt.Errorf("%w: %w", ErrUnavailable, httpErr)
		}
		return "", fmt.Errorf("%w: %w", ErrRejected, httpErr)
	}

	var response ChatResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %w", ErrUnavailable, err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("%w: API error: %s", ErrUnavailable, response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: no response choices returned", ErrUnavailable)
	}

	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
