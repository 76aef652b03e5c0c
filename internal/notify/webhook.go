package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookChannel sends an HMAC-signed HTTP POST of the JSON-encoded
// Payload, adapted from the teacher's webhook notifier.
type WebhookChannel struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookChannel builds a WebhookChannel from params["url"]
// (required) and params["secret"] (optional).
func NewWebhookChannel(params map[string]string) (*WebhookChannel, error) {
	url := params["url"]
	if url == "" {
		return nil, fmt.Errorf("webhook channel requires a url parameter")
	}
	return &WebhookChannel{
		url:    url,
		secret: params["secret"],
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("webhook: marshal failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: request creation failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "disk-watchdogd-notify/1.0")

	if c.secret != "" {
		mac := hmac.New(sha256.New, []byte(c.secret))
		mac.Write(body)
		req.Header.Set("X-Disk-Watchdogd-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: server returned %d", resp.StatusCode)
	}
	return nil
}
