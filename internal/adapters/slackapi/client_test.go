package slackapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL})
}

func TestClearStatusSendsEmptyProfile(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	err := client.ClearStatus(context.Background(), "xoxp-token", "U123")
	require.NoError(t, err)

	assert.Equal(t, "/users.profile.set", gotPath)
	assert.Equal(t, "Bearer xoxp-token", gotAuth)
	assert.Equal(t, "U123", gotBody["user"])
	profile, _ := gotBody["profile"].(map[string]any)
	assert.Equal(t, "", profile["status_text"])
	assert.Equal(t, "", profile["status_emoji"])
}

func TestEndDNDSnoozeNotActiveIsSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"snooze_not_active"}`))
	})

	err := client.EndDND(context.Background(), "xoxp-token", "U123")
	assert.NoError(t, err)
}

func TestPermissionErrorCodesWrapErrPermission(t *testing.T) {
	codes := []string{"missing_scope", "token_revoked", "invalid_auth", "no_permission"}
	for _, code := range codes {
		t.Run(code, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"ok":false,"error":"` + code + `"}`))
			})

			err := client.ClearStatus(context.Background(), "xoxp-token", "U123")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPermission)
			assert.Contains(t, err.Error(), code)
		})
	}
}

func TestOtherAPIErrorIsNotPermission(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"ratelimited"}`))
	})

	err := client.ClearStatus(context.Background(), "xoxp-token", "U123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPermission)
}

func TestHTTPErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := client.EndDND(context.Background(), "xoxp-token", "U123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
