package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NotificationType identifies the logical event a notification describes.
type NotificationType string

const (
	// NotificationPaidUser is sent when a user completes a license purchase.
	NotificationPaidUser NotificationType = "paid_user"
	// NotificationNewUser is sent when a new user signs up.
	NotificationNewUser NotificationType = "new_user"
	// NotificationInactiveUser is sent once per user that went quiet.
	NotificationInactiveUser NotificationType = "inactive_user"
	// NotificationWeeklyReport is sent once per ISO week.
	NotificationWeeklyReport NotificationType = "weekly_report"
	// NotificationPaymentFailed is sent when a renewal charge fails.
	NotificationPaymentFailed NotificationType = "payment_failed"
	// NotificationCheckoutCompleted is sent on a completed checkout session.
	NotificationCheckoutCompleted NotificationType = "checkout_completed"
	// NotificationSubscriptionCancelled is sent when a subscription ends.
	NotificationSubscriptionCancelled NotificationType = "subscription_cancelled"
)

// Channel identifies a delivery mechanism for notifications.
type Channel string

const (
	// ChannelSlack delivers through a Slack incoming webhook.
	ChannelSlack Channel = "slack"
	// ChannelDiscord delivers through a Discord webhook.
	ChannelDiscord Channel = "discord"
	// ChannelEmail delivers through a transactional email API.
	ChannelEmail Channel = "email"
)

// UnmarshalText implements encoding.TextUnmarshaler for Channel to allow env parsing.
func (c *Channel) UnmarshalText(text []byte) error {
	v := Channel(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case ChannelSlack, ChannelDiscord, ChannelEmail:
		*c = v
		return nil
	}
	return fmt.Errorf("invalid Channel: %q", string(text))
}

// NotificationUser is the user-facing slice of a notification payload.
// Event-specific fields are pointers so providers can tell "absent" apart
// from zero values when formatting.
type NotificationUser struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	LicenseID     string     `json:"license_id,omitempty"`
	LastCheckinAt *time.Time `json:"last_checkin_at,omitempty"`
}

// NotificationPayload is the transient, per-send description of one
// notification. It is constructed by the engine and never persisted.
type NotificationPayload struct {
	Type        NotificationType  `json:"type"`
	User        NotificationUser  `json:"user"`
	ReferenceID string            `json:"reference_id"`
	Data        map[string]string `json:"data,omitempty"`
}

// NotificationResult is the outcome of one (payload, channel) send attempt.
type NotificationResult struct {
	Success        bool             `json:"success"`
	Message        string           `json:"message,omitempty"`
	UserID         string           `json:"user_id"`
	ReferenceID    string           `json:"reference_id"`
	Channel        Channel          `json:"channel"`
	NotificationID string           `json:"notification_id,omitempty"`
	Error          string           `json:"error,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
	Type           NotificationType `json:"type"`
}

// NotificationRecord is one row of the append-only delivery ledger.
// At most one record exists per (user, type, reference, channel) tuple;
// that uniqueness is the at-most-once delivery guarantee.
type NotificationRecord struct {
	ID             string           `json:"id"              db:"id"`
	UserID         string           `json:"user_id"         db:"user_id"`
	Type           NotificationType `json:"type"            db:"notification_type"`
	ReferenceID    string           `json:"reference_id"    db:"reference_id"`
	Channel        Channel          `json:"channel"         db:"channel"`
	SentAt         time.Time        `json:"sent_at"         db:"sent_at"`
	ProviderResult string           `json:"provider_result" db:"provider_result"`
	Data           json.RawMessage  `json:"data,omitempty"  db:"data"`
}
