package generate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// Config holds the generative-image API settings.
type Config struct {
	Endpoint   string
	APIKey     string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
}

// Client calls an external generative-image API over HTTP. Rate limits and
// server errors are retried with exponential backoff and jitter; other
// failures are surfaced immediately.
type Client struct {
	cfg    Config
	httpc  *http.Client
	logger *slog.Logger
}

// NewClient creates a generator backed by the configured API endpoint.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Image  string `json:"image,omitempty"`
}

type generateResponse struct {
	Data string `json:"data"`
}

// Generate requests one image for the prompt. The base image, when readable,
// is sent along inline so the model can condition on it.
func (c *Client) Generate(ctx context.Context, prompt string, baseImagePath string) ([]byte, error) {
	payload := generateRequest{Model: c.cfg.Model, Prompt: prompt}
	if baseImagePath != "" {
		data, err := os.ReadFile(baseImagePath)
		if err != nil {
			c.logger.Warn("base image unreadable, generating without it", "error", err)
		} else {
			payload.Image = base64.StdEncoding.EncodeToString(data)
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var image []byte
	err = c.withRetry(ctx, func() error {
		image, err = c.doRequest(ctx, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return image, nil
}

func (c *Client) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &retryableError{fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return nil, &retryableError{fmt.Errorf("api returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	image, err := base64.StdEncoding.DecodeString(out.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}
	return image, nil
}

// retryableError marks a failure worth retrying.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// withRetry runs operation up to MaxRetries+1 times, backing off
// exponentially with jitter between retryable failures.
func (c *Client) withRetry(ctx context.Context, operation func() error) error {
	attempts := c.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				c.logger.Info("generation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if !isRetryable(lastErr) || attempt == attempts {
			return lastErr
		}

		delay := c.cfg.RetryDelay << (attempt - 1)
		if max := 30 * time.Second; delay > max {
			delay = max
		}
		delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
		c.logger.Warn("generation attempt failed, retrying",
			"attempt", attempt, "delay", delay.String(), "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
