// Package email delivers notifications through a transactional email HTTP API.
package email

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

const (
	defaultTimeout  = 10 * time.Second
	defaultEndpoint = "https://api.resend.com/emails"
)

// Config captures the transactional email API settings.
type Config struct {
	APIKey   string
	Endpoint string
	From     string
	To       []string
	Timeout  time.Duration
	Client   *http.Client
}

// Client sends notification emails to a fixed set of internal recipients.
type Client struct {
	apiKey   string
	endpoint string
	from     string
	to       []string
	client   *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds an email sink. API key, sender, and at least one
// recipient are required.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("email api key is required")
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		return nil, errors.New("email sender address is required")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("at least one email recipient is required")
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		apiKey:   apiKey,
		endpoint: endpoint,
		from:     from,
		to:       cfg.To,
		client:   hc,
	}, nil
}

// Channel implements notify.Sink.
func (c *Client) Channel() model.Channel { return model.ChannelEmail }

// Send posts the rendered message to the email API. The provider's message
// id, when present in the response, becomes the result's NotificationID.
func (c *Client) Send(ctx context.Context, payload model.NotificationPayload) model.NotificationResult {
	message := notify.Compose(payload)
	body, err := json.Marshal(map[string]any{
		"from":    c.from,
		"to":      c.to,
		"subject": message.Subject,
		"text":    message.Body,
	})
	if err != nil {
		return notify.Failure(payload, model.ChannelEmail, fmt.Sprintf("encode email payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return notify.Failure(payload, model.ChannelEmail, fmt.Sprintf("create email request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return notify.Failure(payload, model.ChannelEmail, fmt.Sprintf("email request failed: %v", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return notify.Failure(payload, model.ChannelEmail,
			fmt.Sprintf("email api %s: %s", resp.Status, strings.TrimSpace(string(respBody))))
	}

	var apiResp struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(respBody, &apiResp)

	return notify.Success(payload, model.ChannelEmail, message.Subject, apiResp.ID)
}
