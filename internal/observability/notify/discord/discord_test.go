package discord

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusmode/focusd/internal/domain/model"
)

func TestNewClientRequiresWebhookURL(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestSendPostsEmbed(t *testing.T) {
	var got struct {
		Username string `json:"username"`
		Embeds   []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"embeds"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewClient(Config{WebhookURL: server.URL})
	require.NoError(t, err)

	result := client.Send(context.Background(), model.NotificationPayload{
		Type:        model.NotificationPaidUser,
		User:        model.NotificationUser{ID: "u1", Email: "ada@example.com", LicenseID: "lic-1"},
		ReferenceID: "paid_license_lic-1",
	})
	require.True(t, result.Success, "send failed: %s", result.Error)

	assert.Equal(t, "focusd", got.Username)
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "New paid user", got.Embeds[0].Title)
	assert.Contains(t, got.Embeds[0].Description, "License: lic-1")
}

func TestSendReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient(Config{WebhookURL: server.URL})
	require.NoError(t, err)

	result := client.Send(context.Background(), model.NotificationPayload{
		Type: model.NotificationNewUser,
		User: model.NotificationUser{ID: "u1"},
	})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "rate limited")
}
