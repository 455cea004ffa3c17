// Package slack delivers notifications to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/observability/notify"
)

const defaultTimeout = 10 * time.Second

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client posts formatted messages to a Slack webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	retryLimit int
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a Slack webhook sink. Construction fails when the webhook
// URL is missing so a misconfigured channel is caught at startup, not at
// send time.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.RetryLimit
	if retries < 0 {
		retries = 0
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "focusd"
	}

	return &Client{
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   username,
		retryLimit: retries,
		client:     hc,
	}, nil
}

// Channel implements notify.Sink.
func (c *Client) Channel() model.Channel { return model.ChannelSlack }

// Send posts the rendered message. Transport failures after retries come
// back as a failed result, never as an error.
func (c *Client) Send(ctx context.Context, payload model.NotificationPayload) model.NotificationResult {
	message := notify.Compose(payload)
	msg := map[string]any{
		"text":     "*" + message.Subject + "*\n" + message.Body,
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return notify.Failure(payload, model.ChannelSlack, fmt.Sprintf("encode slack payload: %v", err))
	}

	if err := postWithRetry(ctx, c.client, c.webhookURL, body, c.retryLimit); err != nil {
		return notify.Failure(payload, model.ChannelSlack, err.Error())
	}
	return notify.Success(payload, model.ChannelSlack, message.Subject, "")
}

func postWithRetry(ctx context.Context, client *http.Client, url string, body []byte, retryLimit int) error {
	attempts := retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		lastErr = post(ctx, client, url, body)
		if lastErr == nil {
			return nil
		}
		if attempt < attempts-1 {
			delay := time.Duration(attempt+1) * 200 * time.Millisecond
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return lastErr
}

func post(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
