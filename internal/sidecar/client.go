package sidecar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Client is an HTTP client for the server's control surface. All calls are
// bounded; the supervisor treats failures as advisory during shutdown.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
	}
}

// BaseURL returns the server address this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Alive reports whether the liveness endpoint answers at all. Used during
// shutdown to observe process exit indirectly.
func (c *Client) Alive(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Checkpoint asks the server to flush durable state. Issued before
// termination; a failure is logged by the caller but never blocks shutdown.
func (c *Client) Checkpoint(ctx context.Context) error {
	return c.post(ctx, "/admin/checkpoint")
}

// Shutdown requests graceful termination. A nil return means the server
// acknowledged and signal escalation can be skipped.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.post(ctx, "/admin/shutdown")
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("POST %s: status %d", path, resp.StatusCode)
	}
	return nil
}
