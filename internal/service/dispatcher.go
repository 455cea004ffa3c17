package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/focusmode/focusd/internal/core"
	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/observability/metrics"
	"github.com/focusmode/focusd/internal/observability/statsd"
)

// notificationSender is the slice of the engine the dispatcher needs.
type notificationSender interface {
	Send(ctx context.Context, payload model.NotificationPayload, channels []model.Channel) []model.NotificationResult
	DefaultChannels(t model.NotificationType) []model.Channel
	ReferenceID(t model.NotificationType, user model.NotificationUser) string
}

// DispatchRequest is one batch of users to notify for a single event type.
// ReferenceID may override the engine's derivation when the caller knows a
// better dedup key; nil falls back to the engine.
type DispatchRequest struct {
	Type        model.NotificationType
	Users       []model.NotificationUser
	ReferenceID func(user model.NotificationUser) string
	Data        map[string]string
}

// ChannelResult tallies one channel's outcomes within a batch.
type ChannelResult struct {
	Sent            int `json:"sent"`
	Failed          int `json:"failed"`
	AlreadyNotified int `json:"already_notified"`
}

// DispatchSummary reports what one batch dispatch did. TotalFound is the
// candidate count before the ledger filtered anything; Sent, Failed, and
// Skipped sum across channels, with the per-channel split in Channels.
type DispatchSummary struct {
	TotalFound int
	Sent       int
	Failed     int
	Skipped    int
	Channels   map[model.Channel]ChannelResult
	Results    []model.NotificationResult
}

// DispatcherOptions groups dependencies for BatchDispatcher.
type DispatcherOptions struct {
	Engine  notificationSender
	Ledger  core.LedgerRepository
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// BatchDispatcher drives idempotent fan-out: one ledger query per channel
// filters the batch down to unsent users, each unsent user gets one send
// attempt, and every success is recorded before the batch moves on.
type BatchDispatcher struct {
	engine  notificationSender
	ledger  core.LedgerRepository
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewBatchDispatcher constructs a BatchDispatcher.
func NewBatchDispatcher(opts DispatcherOptions) (*BatchDispatcher, error) {
	if opts.Engine == nil {
		return nil, errors.New("notification engine is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("ledger repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "batch_dispatcher")
	}
	return &BatchDispatcher{
		engine:  opts.Engine,
		ledger:  opts.Ledger,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Dispatch processes the batch channel by channel. Channels are independent:
// a user already notified on slack still gets the email send. A ledger read
// error aborts the whole batch (better to send nothing than to double-send);
// a failed ledger write after a successful send aborts too, because
// continuing would risk re-delivery on the next run.
func (d *BatchDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (DispatchSummary, error) {
	var summary DispatchSummary
	summary.TotalFound = len(req.Users)
	if len(req.Users) == 0 {
		return summary, nil
	}

	channels := d.engine.DefaultChannels(req.Type)
	if len(channels) == 0 {
		d.logger.DebugContext(ctx, "no channels configured for event type", "type", req.Type)
		return summary, nil
	}

	refID := req.ReferenceID
	if refID == nil {
		refID = func(user model.NotificationUser) string {
			return d.engine.ReferenceID(req.Type, user)
		}
	}

	summary.Channels = make(map[model.Channel]ChannelResult, len(channels))
	for _, channel := range channels {
		if err := d.dispatchChannel(ctx, &summary, dispatchChannelParams{
			req:     req,
			channel: channel,
			refID:   refID,
		}); err != nil {
			return summary, err
		}
	}

	d.logger.InfoContext(ctx, "batch dispatched",
		"type", req.Type,
		"users", len(req.Users),
		"sent", summary.Sent,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

type dispatchChannelParams struct {
	req     DispatchRequest
	channel model.Channel
	refID   func(user model.NotificationUser) string
}

func (d *BatchDispatcher) dispatchChannel(ctx context.Context, summary *DispatchSummary, p dispatchChannelParams) error {
	cr := summary.Channels[p.channel]
	defer func() { summary.Channels[p.channel] = cr }()

	candidates := make(map[string]string, len(p.req.Users))
	for _, user := range p.req.Users {
		candidates[user.ID] = p.refID(user)
	}

	unsent, err := d.ledger.FilterUnsent(ctx, candidates, p.req.Type, p.channel)
	if err != nil {
		return fmt.Errorf("filter unsent for channel %s: %w", p.channel, err)
	}

	for _, user := range p.req.Users {
		if _, ok := unsent[user.ID]; !ok {
			summary.Skipped++
			cr.AlreadyNotified++
			metrics.EmitNotification(d.metrics, metrics.NotificationMetric{
				Type:    p.req.Type,
				Channel: p.channel,
				Result:  metrics.ResultNoop,
			})
			continue
		}

		payload := model.NotificationPayload{
			Type:        p.req.Type,
			User:        user,
			ReferenceID: candidates[user.ID],
			Data:        p.req.Data,
		}

		results := d.engine.Send(ctx, payload, []model.Channel{p.channel})
		for _, result := range results {
			summary.Results = append(summary.Results, result)
			if !result.Success {
				summary.Failed++
				cr.Failed++
				d.logger.WarnContext(ctx, "notification send failed",
					"type", p.req.Type,
					"channel", p.channel,
					"user_id", user.ID,
					"reference_id", payload.ReferenceID,
					"error", result.Error,
				)
				continue
			}

			if err := d.record(ctx, payload, result); err != nil {
				return err
			}
			summary.Sent++
			cr.Sent++
		}
	}
	return nil
}

func (d *BatchDispatcher) record(ctx context.Context, payload model.NotificationPayload, result model.NotificationResult) error {
	data, err := json.Marshal(map[string]string{
		"message":         result.Message,
		"notification_id": result.NotificationID,
	})
	if err != nil {
		data = []byte(`{}`)
	}

	if _, err := d.ledger.Record(ctx, core.RecordNotificationRequest{
		UserID:         payload.User.ID,
		Type:           payload.Type,
		ReferenceID:    payload.ReferenceID,
		Channel:        result.Channel,
		ProviderResult: result.Message,
		Data:           data,
	}); err != nil {
		return fmt.Errorf("record delivery for user %s on %s: %w", payload.User.ID, result.Channel, err)
	}
	return nil
}
