package metrics

import (
	"context"

	"openresponses.ai/gateway/internal/domain/llm"
)

// spanner is the orchestrator's span contract, satisfied by the
// observability tracer.
type spanner interface {
	StartModelCall(ctx context.Context, target llm.Target) (context.Context, func(error))
	StartToolCall(ctx context.Context, name string) (context.Context, func(error))
}

// Recorder counts upstream calls and tool executions, optionally chaining
// to a tracing spanner.
type Recorder struct {
	metrics *Metrics
	next    spanner
}

// NewRecorder wraps next (which may be nil) with metric accounting.
func NewRecorder(m *Metrics, next spanner) *Recorder {
	return &Recorder{metrics: m, next: next}
}

// StartModelCall counts one upstream call by provider and outcome.
func (r *Recorder) StartModelCall(ctx context.Context, target llm.Target) (context.Context, func(error)) {
	done := func(error) {}
	if r.next != nil {
		ctx, done = r.next.StartModelCall(ctx, target)
	}
	return ctx, func(err error) {
		r.metrics.UpstreamCalls.WithLabelValues(target.SystemName, outcome(err)).Inc()
		done(err)
	}
}

// StartToolCall counts one tool execution by name and outcome.
func (r *Recorder) StartToolCall(ctx context.Context, name string) (context.Context, func(error)) {
	done := func(error) {}
	if r.next != nil {
		ctx, done = r.next.StartToolCall(ctx, name)
	}
	return ctx, func(err error) {
		r.metrics.ToolExecutions.WithLabelValues(name, outcome(err)).Inc()
		done(err)
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
