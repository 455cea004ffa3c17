package config

import (
	"strings"
	"time"

	"github.com/focusmode/focusd/internal/domain/model"
)

const defaultNotifyName = "focusd"

// NotificationsConfig controls the notification channel providers and the
// per-event-type channel defaults.
type NotificationsConfig struct {
	// Timeout bounds a single provider send.
	Timeout time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`

	// RetryLimit is the number of in-process retries per provider send.
	RetryLimit int `env:"NOTIFY_RETRY_LIMIT" envDefault:"2"`

	Slack   SlackChannelConfig   `envPrefix:"NOTIFY_SLACK_"`
	Discord DiscordChannelConfig `envPrefix:"NOTIFY_DISCORD_"`
	Email   EmailChannelConfig   `envPrefix:"NOTIFY_EMAIL_"`

	// Per-event-type default channel lists. An empty list means the event
	// type sends nowhere.
	PaidUserChannels     []model.Channel `env:"NOTIFY_CHANNELS_PAID_USER"     envDefault:"slack,email"`
	NewUserChannels      []model.Channel `env:"NOTIFY_CHANNELS_NEW_USER"      envDefault:"slack"`
	InactiveUserChannels []model.Channel `env:"NOTIFY_CHANNELS_INACTIVE_USER" envDefault:"email"`
	WeeklyReportChannels []model.Channel `env:"NOTIFY_CHANNELS_WEEKLY_REPORT" envDefault:"slack"`
	JobFailedChannels    []model.Channel `env:"NOTIFY_CHANNELS_JOB_FAILED"    envDefault:"slack"`
}

// Sanitize normalises notification configuration values. Channels without
// credentials are disabled rather than left half-configured.
func (c *NotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}

	c.Slack.sanitize()
	c.Discord.sanitize()
	c.Email.sanitize()
}

// DefaultChannelMap builds the per-event-type channel defaults for the
// notification engine.
func (c *NotificationsConfig) DefaultChannelMap() map[model.NotificationType][]model.Channel {
	return map[model.NotificationType][]model.Channel{
		model.NotificationPaidUser:     append([]model.Channel(nil), c.PaidUserChannels...),
		model.NotificationNewUser:      append([]model.Channel(nil), c.NewUserChannels...),
		model.NotificationInactiveUser: append([]model.Channel(nil), c.InactiveUserChannels...),
		model.NotificationWeeklyReport: append([]model.Channel(nil), c.WeeklyReportChannels...),
	}
}

// SlackChannelConfig controls Slack webhook delivery.
type SlackChannelConfig struct {
	Enabled    bool   `env:"ENABLED" envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME" envDefault:"focusd"`
}

func (c *SlackChannelConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	if c.Username == "" {
		c.Username = defaultNotifyName
	}
	if c.WebhookURL == "" {
		c.Enabled = false
	}
}

// DiscordChannelConfig controls Discord webhook delivery.
type DiscordChannelConfig struct {
	Enabled    bool   `env:"ENABLED" envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Username   string `env:"USERNAME" envDefault:"focusd"`
}

func (c *DiscordChannelConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	if c.Username == "" {
		c.Username = defaultNotifyName
	}
	if c.WebhookURL == "" {
		c.Enabled = false
	}
}

// EmailChannelConfig controls transactional email delivery.
type EmailChannelConfig struct {
	Enabled  bool     `env:"ENABLED" envDefault:"false"`
	APIKey   string   `env:"API_KEY"`
	Endpoint string   `env:"ENDPOINT" envDefault:"https://api.resend.com/emails"`
	From     string   `env:"FROM"`
	To       []string `env:"TO"`
}

func (c *EmailChannelConfig) sanitize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.From = strings.TrimSpace(c.From)
	if c.APIKey == "" || c.From == "" {
		c.Enabled = false
	}
}
