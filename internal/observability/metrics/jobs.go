// Package metrics emits standardised job and notification metrics.
package metrics

import (
	"time"

	obserrors "github.com/focusmode/focusd/internal/observability/errors"
	"github.com/focusmode/focusd/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	JobType    string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

func (m JobMetric) tags() map[string]string {
	tags := map[string]string{
		"job_type":   m.JobType,
		"transition": m.Transition,
		"result":     m.Result,
	}
	if m.Result == ResultError && m.Err != nil {
		if class := obserrors.Classify(m.Err); class != "" {
			tags["error_class"] = class
		}
	}
	return tags
}

// EmitJobLifecycle emits job lifecycle metrics: a transition counter and,
// when a duration is known, a timing.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := in.tags()
	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags copies a tag map so concurrent emitters cannot share state.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
