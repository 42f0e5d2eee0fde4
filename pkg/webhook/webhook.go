// Package webhook delivers JSON payloads to an external endpoint. Used to
// bridge domain events to downstream systems (CRM sync, notifications)
// without coupling them to the in-process bus.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	URL        string        `split_words:"true" required:"true"`
	Token      string        `split_words:"true"`
	SigningKey string        `split_words:"true"`
	Timeout    time.Duration `split_words:"true" default:"10s"`
}

// Client posts payloads to the configured endpoint. Requests carry a bearer
// token when configured and an HMAC-SHA256 body signature when a signing key
// is set.
type Client struct {
	endpoint   string
	token      string
	signingKey string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, errors.New("webhook url is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		token:      strings.TrimSpace(cfg.Token),
		signingKey: strings.TrimSpace(cfg.SigningKey),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Publish posts the payload as JSON. Non-2xx responses are errors; retry
// policy belongs to the caller.
func (c *Client) Publish(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.signingKey != "" {
		req.Header.Set("X-Signature", c.sign(body))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: endpoint returned %s", resp.Status)
	}
	return nil
}

func (c *Client) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.signingKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
