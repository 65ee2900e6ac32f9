package sweepsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to a grantsweep instance.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client with a timeout long enough for a manual pass
// over a large backlog.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Livez calls GET /livez.
func (c *Client) Livez(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/livez", http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Readyz calls GET /readyz. A degraded service answers 503, which is
// returned as an *APIError with the raw body as its description.
func (c *Client) Readyz(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/readyz", http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CleanupStatus calls GET /v1/cleanup/status.
func (c *Client) CleanupStatus(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/cleanup/status", http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunCleanup calls POST /v1/cleanup/run and waits for the pass to finish.
// Returns ErrCleanupRunning when another pass is in flight.
func (c *Client) RunCleanup(ctx context.Context) (*PassResult, error) {
	var out PassResult
	if err := c.do(ctx, http.MethodPost, "/v1/cleanup/run", http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, expected int, target any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != expected {
		return parseErrorResponse(resp, body)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
