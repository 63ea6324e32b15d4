package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/04By0302/jnd-vps/internal/config"
	"github.com/04By0302/jnd-vps/internal/retrypolicy"
)

// maxReplyBytes bounds the chat completion response body.
const maxReplyBytes = 1 << 20

// ErrEmptyReply means the completion carried no usable content.
var ErrEmptyReply = errors.New("llm returned an empty reply")

// Chatter produces one completion for one prompt. *Client satisfies it;
// tests substitute a scripted fake.
type Chatter interface {
	Chat(ctx context.Context, prompt string) (string, error)
}

// Client is an OpenAI-compatible chat completion client with the shared
// retry policy. Rate-limit and upstream-gateway statuses retry; every
// other non-2xx status is terminal.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
	policy   retrypolicy.Policy
}

// NewClient creates a chat client from the prediction config.
func NewClient(cfg config.PredictConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		http:     &http.Client{Timeout: timeout},
		policy:   retrypolicy.DefaultPolicy(),
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// statusError is a non-2xx completion response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llm endpoint returned status %d", e.code)
}

// retriableStatus reports whether a completion status is worth another
// attempt.
func retriableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Chat sends the prompt and returns the completion text.
func (c *Client) Chat(ctx context.Context, prompt string) (string, error) {
	attempts := c.policy.Attempts

	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		reply, err := c.chatOnce(ctx, prompt)
		if err == nil {
			return reply, nil
		}

		lastErr = err

		var status *statusError
		if errors.As(err, &status) && !retriableStatus(status.code) {
			return "", err
		}

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.policy.Delay(attempt)):
		}
	}

	return "", fmt.Errorf("%w: %w", retrypolicy.ErrRetriesExhausted, lastErr)
}

func (c *Client) chatOnce(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &statusError{code: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", ErrEmptyReply
	}

	return parsed.Choices[0].Message.Content, nil
}
