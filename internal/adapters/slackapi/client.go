// Package slackapi calls the Slack Web API methods needed to revert focus
// session side effects in a workspace.
package slackapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/focusmode/focusd/internal/core"
)

const defaultBaseURL = "https://slack.com/api"

// ErrPermission marks API failures caused by a revoked token or missing
// scope. Cleanup treats these as non-retryable and moves on.
var ErrPermission = errors.New("workspace permission denied")

var permissionErrorCodes = map[string]bool{
	"missing_scope":    true,
	"not_authed":       true,
	"invalid_auth":     true,
	"account_inactive": true,
	"token_revoked":    true,
	"token_expired":    true,
	"no_permission":    true,
}

// Config configures the workspace API client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

// Client implements core.WorkspaceClient against the Slack Web API.
type Client struct {
	baseURL string
	client  *http.Client
}

var _ core.WorkspaceClient = (*Client)(nil)

// NewClient builds a workspace API client. Tokens are per-call: each focus
// session carries the token for the workspace it touched.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, client: hc}
}

// ClearStatus resets the user's profile status. Clearing an already-empty
// status succeeds, so retries and duplicate cleanups are safe.
func (c *Client) ClearStatus(ctx context.Context, token, userID string) error {
	body := map[string]any{
		"profile": map[string]string{
			"status_text":  "",
			"status_emoji": "",
		},
	}
	if userID != "" {
		body["user"] = userID
	}
	return c.callJSON(ctx, token, "users.profile.set", body)
}

// EndDND ends the user's do-not-disturb snooze. Slack reports snooze_not_active
// when there is nothing to end; that counts as success.
func (c *Client) EndDND(ctx context.Context, token, userID string) error {
	err := c.callForm(ctx, token, "dnd.endSnooze", url.Values{})
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.code == "snooze_not_active" {
		return nil
	}
	return err
}

type apiError struct {
	method string
	code   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("slack api %s: %s", e.method, e.code)
}

func (c *Client) callJSON(ctx context.Context, token, method string, body map[string]any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, strings.NewReader(string(encoded)))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	return c.do(req, token, method)
}

func (c *Client) callForm(ctx context.Context, token, method string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, token, method)
}

func (c *Client) do(req *http.Request, token, method string) error {
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack api %s: %w", method, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack api %s: http %s", method, resp.Status)
	}

	var parsed struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if parsed.OK {
		return nil
	}

	callErr := &apiError{method: method, code: parsed.Error}
	if permissionErrorCodes[parsed.Error] {
		return fmt.Errorf("%w: %w", ErrPermission, callErr)
	}
	return callErr
}
