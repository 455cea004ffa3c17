package failurenotifier

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/observability/notify"
)

type captureSink struct {
	mu       sync.Mutex
	received []model.NotificationPayload
	fail     bool
}

func (s *captureSink) Channel() model.Channel { return model.ChannelSlack }

func (s *captureSink) Send(_ context.Context, payload model.NotificationPayload) model.NotificationResult {
	s.mu.Lock()
	s.received = append(s.received, payload)
	s.mu.Unlock()
	if s.fail {
		return notify.Failure(payload, model.ChannelSlack, "webhook down")
	}
	return notify.Success(payload, model.ChannelSlack, "ok", "")
}

func TestNotifyJobFailureFansOut(t *testing.T) {
	first := &captureSink{}
	second := &captureSink{}
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "slack", Sink: first},
			{Name: "backup", Sink: second},
		},
	})

	svc.NotifyJobFailure(context.Background(), JobFailure{
		JobID:      "j1",
		JobType:    "new_user_check",
		Error:      "query timeout",
		ErrorClass: "net_operror",
		RetryCount: 4,
		MaxRetries: 3,
	})

	require.Len(t, first.received, 1)
	require.Len(t, second.received, 1)

	payload := first.received[0]
	assert.Equal(t, model.NotificationType("job_failed"), payload.Type)
	assert.Equal(t, "job_j1_attempt_4", payload.ReferenceID)
	assert.Equal(t, "j1", payload.Data["job_id"])
	assert.Equal(t, "new_user_check", payload.Data["job_type"])
	assert.Equal(t, "query timeout", payload.Data["error"])
	assert.NotEmpty(t, payload.Data["occurred_at"])
}

func TestNotifyJobFailureDeliveryErrorIsSwallowed(t *testing.T) {
	sink := &captureSink{fail: true}
	svc := NewService(Options{
		Sinks: []SinkRegistration{{Name: "slack", Sink: sink}},
	})

	// Must not panic or propagate anything.
	svc.NotifyJobFailure(context.Background(), JobFailure{JobID: "j1"})
	assert.Len(t, sink.received, 1)
}

func TestServiceDisabledWithoutSinks(t *testing.T) {
	assert.False(t, NewService(Options{}).Enabled())
	assert.False(t, NewService(Options{Sinks: []SinkRegistration{{Name: "nil"}}}).Enabled())

	svc := NewService(Options{Sinks: []SinkRegistration{{Sink: &captureSink{}}}})
	assert.True(t, svc.Enabled())
}
