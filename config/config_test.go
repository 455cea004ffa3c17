package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusmode/focusd/internal/domain/model"
)

func TestParseServices(t *testing.T) {
	services, err := ParseServices("ops,scheduler,check-runner")
	require.NoError(t, err)
	assert.True(t, services[ServiceModeOps])
	assert.True(t, services[ServiceModeScheduler])
	assert.True(t, services[ServiceModeCheckRunner])
	assert.False(t, services[ServiceModeCleanupRunner])
}

func TestParseServicesTrimsWhitespace(t *testing.T) {
	services, err := ParseServices(" ops , reaper ")
	require.NoError(t, err)
	assert.True(t, services[ServiceModeOps])
	assert.True(t, services[ServiceModeReaper])
}

func TestParseServicesInvalidName(t *testing.T) {
	_, err := ParseServices("ops,web")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "web")
}

func TestParseServicesEmpty(t *testing.T) {
	_, err := ParseServices("")
	require.Error(t, err)

	_, err = ParseServices(" , ,")
	require.Error(t, err)
}

func TestSchedulerConfigSanitizeGuardrails(t *testing.T) {
	cfg := SchedulerConfig{
		BatchSize:             0,
		MaxRetries:            -1,
		Interval:              10 * time.Millisecond,
		NewUserCheckInterval:  time.Second,
		PaidUserCheckInterval: time.Second,
		InactiveUserCheckCron: "  0 9 * * *  ",
	}
	cfg.Sanitize()

	assert.Equal(t, 1, cfg.BatchSize)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, time.Minute, cfg.NewUserCheckInterval)
	assert.Equal(t, time.Minute, cfg.PaidUserCheckInterval)
	assert.Equal(t, "0 9 * * *", cfg.InactiveUserCheckCron)
	assert.Equal(t, time.Hour, cfg.InactiveUserCheckInterval)
}

func TestReaperConfigSanitizeGuardrails(t *testing.T) {
	cfg := ReaperConfig{
		Interval:        time.Second,
		PendingMaxAge:   time.Second,
		CompletedMaxAge: time.Second,
		FailedMaxAge:    time.Second,
		BatchSize:       50000,
	}
	cfg.Sanitize()

	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, 5*time.Minute, cfg.PendingMaxAge)
	assert.Equal(t, time.Hour, cfg.CompletedMaxAge)
	assert.Equal(t, time.Hour, cfg.FailedMaxAge)
	assert.Equal(t, 10000, cfg.BatchSize)
}

func TestNotificationsSanitizeDisablesChannelsWithoutCreds(t *testing.T) {
	cfg := NotificationsConfig{
		Slack:   SlackChannelConfig{Enabled: true, WebhookURL: "   "},
		Discord: DiscordChannelConfig{Enabled: true, WebhookURL: "https://discord.example/wh"},
		Email:   EmailChannelConfig{Enabled: true, APIKey: "key", From: ""},
	}
	cfg.Sanitize()

	assert.False(t, cfg.Slack.Enabled)
	assert.True(t, cfg.Discord.Enabled)
	assert.False(t, cfg.Email.Enabled)
}

func TestDefaultChannelMapCopies(t *testing.T) {
	cfg := NotificationsConfig{
		PaidUserChannels: []model.Channel{model.ChannelSlack, model.ChannelEmail},
		NewUserChannels:  []model.Channel{model.ChannelSlack},
	}

	m := cfg.DefaultChannelMap()
	assert.Equal(t, []model.Channel{model.ChannelSlack, model.ChannelEmail}, m[model.NotificationPaidUser])

	// Mutating the map must not touch the config.
	m[model.NotificationPaidUser][0] = model.ChannelDiscord
	assert.Equal(t, model.ChannelSlack, cfg.PaidUserChannels[0])
}

func TestChannelUnmarshalText(t *testing.T) {
	var ch model.Channel
	require.NoError(t, ch.UnmarshalText([]byte(" Slack ")))
	assert.Equal(t, model.ChannelSlack, ch)

	require.Error(t, ch.UnmarshalText([]byte("pager")))
}

func TestAppConfigIsEnabledHelpers(t *testing.T) {
	cfg := AppConfig{Services: "ops,cleanup-runner"}

	assert.True(t, cfg.IsOpsServerEnabled())
	assert.True(t, cfg.IsCleanupRunnerEnabled())
	assert.False(t, cfg.IsSchedulerEnabled())
	assert.False(t, cfg.IsCheckRunnerEnabled())
	assert.False(t, cfg.IsReaperEnabled())
}
