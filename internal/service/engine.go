package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/observability/metrics"
	"github.com/focusmode/focusd/internal/observability/notify"
	"github.com/focusmode/focusd/internal/observability/statsd"
)

// EngineConfig describes the provider set and per-event-type channel
// defaults for the notification engine.
type EngineConfig struct {
	Sinks           []notify.Sink
	DefaultChannels map[model.NotificationType][]model.Channel
}

// EngineOptions groups dependencies for NotificationEngine.
type EngineOptions struct {
	Config       EngineConfig
	Logger       *slog.Logger
	Metrics      statsd.Sink
	TimeProvider func() time.Time
}

// NotificationEngine routes notification payloads to channel providers. It
// holds no delivery state: idempotency lives in the ledger, and the engine
// only guarantees that a send attempt on any channel produces exactly one
// result, never a panic or an error.
type NotificationEngine struct {
	mu       sync.RWMutex
	sinks    map[model.Channel]notify.Sink
	defaults map[model.NotificationType][]model.Channel

	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// NewNotificationEngine constructs an engine from the given provider set.
func NewNotificationEngine(opts EngineOptions) *NotificationEngine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "notification_engine")
	}
	now := opts.TimeProvider
	if now == nil {
		now = time.Now
	}

	e := &NotificationEngine{
		logger:  logger,
		metrics: opts.Metrics,
		now:     now,
	}
	e.apply(opts.Config)
	return e
}

func (e *NotificationEngine) apply(cfg EngineConfig) {
	sinks := make(map[model.Channel]notify.Sink, len(cfg.Sinks))
	for _, sink := range cfg.Sinks {
		if sink == nil {
			continue
		}
		sinks[sink.Channel()] = sink
	}

	defaults := make(map[model.NotificationType][]model.Channel, len(cfg.DefaultChannels))
	for t, channels := range cfg.DefaultChannels {
		defaults[t] = append([]model.Channel(nil), channels...)
	}

	e.mu.Lock()
	e.sinks = sinks
	e.defaults = defaults
	e.mu.Unlock()
}

// UpdateConfig swaps the provider set and channel defaults atomically.
// In-flight sends finish against the old set.
func (e *NotificationEngine) UpdateConfig(cfg EngineConfig) {
	e.apply(cfg)
}

// AvailableChannels returns the channels with a configured provider, sorted.
func (e *NotificationEngine) AvailableChannels() []model.Channel {
	e.mu.RLock()
	defer e.mu.RUnlock()

	channels := make([]model.Channel, 0, len(e.sinks))
	for ch := range e.sinks {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	return channels
}

// DefaultChannels returns the configured channel list for the event type.
// An unconfigured type gets an empty list, which means "send nowhere".
func (e *NotificationEngine) DefaultChannels(t model.NotificationType) []model.Channel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]model.Channel(nil), e.defaults[t]...)
}

// Send delivers the payload on each requested channel and returns one
// result per channel, in order. A channel without a provider yields a
// synthesized failure; a panicking provider is caught and reported the
// same way.
func (e *NotificationEngine) Send(ctx context.Context, payload model.NotificationPayload, channels []model.Channel) []model.NotificationResult {
	results := make([]model.NotificationResult, 0, len(channels))
	for _, channel := range channels {
		result := e.sendOne(ctx, payload, channel)
		results = append(results, result)

		outcome := metrics.ResultSuccess
		if !result.Success {
			outcome = metrics.ResultError
		}
		metrics.EmitNotification(e.metrics, metrics.NotificationMetric{
			Type:    payload.Type,
			Channel: channel,
			Result:  outcome,
		})
	}
	return results
}

func (e *NotificationEngine) sendOne(ctx context.Context, payload model.NotificationPayload, channel model.Channel) (result model.NotificationResult) {
	e.mu.RLock()
	sink := e.sinks[channel]
	e.mu.RUnlock()

	if sink == nil {
		return notify.Failure(payload, channel, "Provider not configured")
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "notification provider panicked",
				"channel", channel,
				"type", payload.Type,
				"user_id", payload.User.ID,
				"panic", r,
			)
			result = notify.Failure(payload, channel, fmt.Sprintf("provider panic: %v", r))
		}
	}()

	return sink.Send(ctx, payload)
}

// SendForEventType builds the payload for one user and event type, derives
// the deterministic reference id, and sends on the type's default channels.
func (e *NotificationEngine) SendForEventType(
	ctx context.Context,
	user model.NotificationUser,
	t model.NotificationType,
	data map[string]string,
) []model.NotificationResult {
	payload := model.NotificationPayload{
		Type:        t,
		User:        user,
		ReferenceID: e.ReferenceID(t, user),
		Data:        data,
	}
	return e.Send(ctx, payload, e.DefaultChannels(t))
}

// ReferenceID derives the deterministic dedup key for an event. Two runs
// observing the same underlying fact must derive the same id; that is what
// lets the ledger suppress the second delivery.
func (e *NotificationEngine) ReferenceID(t model.NotificationType, user model.NotificationUser) string {
	switch t {
	case model.NotificationPaidUser:
		if user.LicenseID != "" {
			return "paid_license_" + user.LicenseID
		}
		if user.PaidAt != nil {
			return "paid_" + user.ID + "_" + strconv.FormatInt(user.PaidAt.UnixMilli(), 10)
		}
	case model.NotificationNewUser:
		if user.CreatedAt != nil {
			return "new_" + user.ID + "_" + strconv.FormatInt(user.CreatedAt.UnixMilli(), 10)
		}
	case model.NotificationInactiveUser:
		// One per user, ever. Going quiet twice is still one fact.
		return "inactive_" + user.ID
	case model.NotificationWeeklyReport:
		year, week := e.now().UTC().ISOWeek()
		return fmt.Sprintf("weekly_%d_W%02d", year, week)
	}
	return string(t) + "_" + user.ID + "_" + strconv.FormatInt(e.now().UnixMilli(), 10)
}
