package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"chatbridge/internal/errors"
)

// Client talks to a locally hosted Ollama chat-completion endpoint.
type Client interface {
	Chat(ctx context.Context, model string, messages []ChatMessage) (string, error)
}

type ClientConfig struct {
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
}

type ollamaClient struct {
	baseURL     string
	temperature float64
	client      *http.Client
}

func NewClient(cfg ClientConfig) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ollamaClient{
		baseURL:     cfg.BaseURL,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

// Chat sends the full message history to /api/chat and returns the next
// assistant message. Unreachable or failing backends surface as
// MODEL_UNAVAILABLE; deadline overruns as MODEL_TIMEOUT. Both are marked
// retryable so the worker can apply its redeliver-then-dead-letter policy.
func (c *ollamaClient) Chat(ctx context.Context, model string, messages []ChatMessage) (string, error) {
	payload := chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  chatOptions{Temperature: c.temperature},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", errors.WrapRetryable(err, errors.ErrCodeModelTimeout, "model did not respond in time")
		}
		return "", errors.WrapRetryable(err, errors.ErrCodeModelUnavailable, "model backend unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.WrapRetryable(err, errors.ErrCodeModelUnavailable, "failed to read model response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", errors.WrapRetryable(
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
			errors.ErrCodeModelUnavailable, "model request failed")
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeModelUnavailable, "failed to decode model response")
	}
	if result.Error != "" {
		return "", errors.WrapRetryable(fmt.Errorf("%s", result.Error), errors.ErrCodeModelUnavailable, "model returned an error")
	}

	return result.Message.Content, nil
}

func isTimeout(err error) bool {
	if goerrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return goerrors.As(err, &netErr) && netErr.Timeout()
}
