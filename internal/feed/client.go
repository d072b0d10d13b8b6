package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Client fetches the raw XML feed document. A fetch failure is fatal for
// the whole batch: there are no retries at this layer.
type Client struct {
	httpClient *http.Client
	url        string
	logger     *slog.Logger
	userAgent  string
}

// NewClient creates a feed client for a fixed feed URL.
func NewClient(url string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
				TLSHandshakeTimeout:   15 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
			// No overall Timeout: large feeds can take a while to stream.
			// Context cancellation still bounds the call.
		},
		url:       url,
		logger:    logger,
		userAgent: "lotsync/1.0",
	}
}

// Fetch issues one uncached GET of the feed and returns the raw XML body.
// Network errors and non-2xx responses propagate to the caller.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building feed request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching feed: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading feed body: %w", err)
	}

	c.logger.Info("feed fetched",
		"url", c.url,
		"bytes", len(body),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return body, nil
}
