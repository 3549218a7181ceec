package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client delivers notifications to an external webhook. When no URL is
// configured the client runs in skip mode and drops notifications.
type Client struct {
	baseURL string
	skip    bool
	http    *http.Client
}

// NewClient creates a webhook client. An empty URL enables skip mode.
func NewClient(webhookURL string) *Client {
	return &Client{
		baseURL: webhookURL,
		skip:    webhookURL == "",
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Skip reports whether delivery is disabled.
func (c *Client) Skip() bool { return c.skip }

// Deliver POSTs one notification to the webhook.
func (c *Client) Deliver(ctx context.Context, n Notification) error {
	if c.skip {
		return nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
