// Package browser controls tabs through the HTTP agent running next to the browser.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/tabretry/internal/core/domain"
)

// ErrTabNotFound is returned by Reload when the agent no longer knows the tab.
var ErrTabNotFound = errors.New("tab not found")

// Config holds browser agent settings.
type Config struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Client implements recovery.TabController against the agent API:
//
//	GET  /tabs/{id}         200 open, 404 closed
//	POST /tabs/{id}/reload  2xx reloaded, 404 closed
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a browser agent client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Exists reports whether the tab is still open.
func (c *Client) Exists(ctx context.Context, tab domain.TabID) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tabs/%d", tab))
	if err != nil {
		return false, err
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	default:
		return false, fmt.Errorf("unexpected status %d from agent", resp.StatusCode)
	}
}

// Reload asks the agent to reload the tab.
func (c *Client) Reload(ctx context.Context, tab domain.TabID) error {
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/tabs/%d/reload", tab))
	if err != nil {
		return err
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %d", ErrTabNotFound, tab)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		return fmt.Errorf("unexpected status %d from agent", resp.StatusCode)
	}
}

func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent request failed: %w", err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
