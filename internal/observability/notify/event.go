// Package notify defines the provider interface for notification delivery
// and shared message formatting for the concrete providers.
package notify

import (
	"context"
	"time"

	"github.com/focusmode/focusd/internal/domain/model"
)

// Sink delivers one notification payload to one channel. Send never returns
// a Go error: every outcome, including transport failures, is reported as a
// NotificationResult so callers can treat all channels uniformly.
type Sink interface {
	Channel() model.Channel
	Send(ctx context.Context, payload model.NotificationPayload) model.NotificationResult
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc struct {
	Ch model.Channel
	Fn func(ctx context.Context, payload model.NotificationPayload) model.NotificationResult
}

// Channel implements Sink.
func (f SinkFunc) Channel() model.Channel { return f.Ch }

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, payload model.NotificationPayload) model.NotificationResult {
	if f.Fn == nil {
		return Failure(payload, f.Ch, "sink function not set")
	}
	return f.Fn(ctx, payload)
}

// Success builds a successful result for the payload and channel.
func Success(payload model.NotificationPayload, channel model.Channel, message, notificationID string) model.NotificationResult {
	return model.NotificationResult{
		Success:        true,
		Message:        message,
		UserID:         payload.User.ID,
		ReferenceID:    payload.ReferenceID,
		Channel:        channel,
		NotificationID: notificationID,
		Timestamp:      time.Now().UTC(),
		Type:           payload.Type,
	}
}

// Failure builds a failed result for the payload and channel.
func Failure(payload model.NotificationPayload, channel model.Channel, errMsg string) model.NotificationResult {
	return model.NotificationResult{
		Success:     false,
		UserID:      payload.User.ID,
		ReferenceID: payload.ReferenceID,
		Channel:     channel,
		Error:       errMsg,
		Timestamp:   time.Now().UTC(),
		Type:        payload.Type,
	}
}
