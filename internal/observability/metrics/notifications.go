package metrics

import (
	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/observability/statsd"
)

// NotificationMetric captures one send attempt or skip for metric emission.
type NotificationMetric struct {
	Type    model.NotificationType
	Channel model.Channel
	Result  string
}

// EmitNotification emits a counter for one notification outcome. Skipped
// sends (already in the ledger) are tagged ResultNoop.
func EmitNotification(sink statsd.Sink, in NotificationMetric) {
	if sink == nil {
		return
	}
	sink.Count("notification.send", 1, map[string]string{
		"type":    string(in.Type),
		"channel": string(in.Channel),
		"result":  in.Result,
	})
}
