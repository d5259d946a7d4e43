// Package metrics emits standardized job lifecycle metrics.
package metrics

import (
	"time"

	obserrors "github.com/ticketwise/enhancer/internal/observability/errors"
	"github.com/ticketwise/enhancer/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Transition    string
	Result        string
	SynthesisMode string
	Duration      time.Duration
	Err           error
}

// EmitJobLifecycle emits standardized job lifecycle metrics. Nil sinks are a
// no-op.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.SynthesisMode != "" {
		tags["synthesis_mode"] = in.SynthesisMode
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, tags)
	}
}
