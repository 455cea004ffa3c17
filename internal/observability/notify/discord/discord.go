// Package discord delivers notifications to a Discord webhook.
package discord

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

// Config captures the Discord webhook settings.
type Config struct {
	WebhookURL string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client posts formatted messages to a Discord webhook.
type Client struct {
	webhookURL string
	username   string
	retryLimit int
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a Discord webhook sink. The webhook URL is required.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("discord webhook url is required")
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
		username:   username,
		retryLimit: retries,
		client:     hc,
	}, nil
}

// Channel implements notify.Sink.
func (c *Client) Channel() model.Channel { return model.ChannelDiscord }

// Send posts the rendered message as a Discord embed.
func (c *Client) Send(ctx context.Context, payload model.NotificationPayload) model.NotificationResult {
	message := notify.Compose(payload)
	msg := map[string]any{
		"username": c.username,
		"embeds": []map[string]any{
			{
				"title":       message.Subject,
				"description": message.Body,
			},
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return notify.Failure(payload, model.ChannelDiscord, fmt.Sprintf("encode discord payload: %v", err))
	}

	if err := c.postWithRetry(ctx, body); err != nil {
		return notify.Failure(payload, model.ChannelDiscord, err.Error())
	}
	return notify.Success(payload, model.ChannelDiscord, message.Subject, "")
}

func (c *Client) postWithRetry(ctx context.Context, body []byte) error {
	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		lastErr = c.post(ctx, body)
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

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("discord webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
