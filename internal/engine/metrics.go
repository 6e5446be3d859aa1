package engine

import (
	"context"
	"time"

	"github.com/rendis/graphspace/internal/telemetry"
	"github.com/rendis/graphspace/pkg/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type engineMetrics struct {
	executions metric.Int64Counter
	duration   metric.Float64Histogram
	live       metric.Int64UpDownCounter
}

func newEngineMetrics() *engineMetrics {
	meter := telemetry.Meter("graphspace/engine")
	executions, _ := meter.Int64Counter("graphspace.action.executions",
		metric.WithDescription("Action executions and instance updates, by outcome"),
	)
	duration, _ := meter.Float64Histogram("graphspace.action.duration",
		metric.WithDescription("Time spent in action bodies (ms)"),
		metric.WithUnit("ms"),
	)
	live, _ := meter.Int64UpDownCounter("graphspace.instances.live",
		metric.WithDescription("Live action instances"),
	)
	return &engineMetrics{executions: executions, duration: duration, live: live}
}

func (m *engineMetrics) record(ctx context.Context, op, actionID string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = schema.CodeOf(err)
		if status == "" {
			status = "body_error"
		}
	}
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("action.id", actionID),
		attribute.String("status", status),
	)
	if m.executions != nil {
		m.executions.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	}
}

func (m *engineMetrics) instances(ctx context.Context, delta int64) {
	if m.live != nil {
		m.live.Add(ctx, delta)
	}
}
