package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/racestrategy-service-go/log"
)

type metrics struct {
	runs     metric.Int64Counter
	attempts metric.Int64Counter
	duration metric.Float64Histogram
}

func newMetrics(l *log.Logger) *metrics {
	meter := otel.GetMeterProvider().Meter("rss.pipeline")
	ret := &metrics{}
	var err error
	if ret.runs, err = meter.Int64Counter("rss.pipeline.runs",
		metric.WithDescription("Number of finished pipeline runs"),
		metric.WithUnit("{count}")); err != nil {
		l.Error("failed to register metric", log.ErrorField(err))
	}
	if ret.attempts, err = meter.Int64Counter("rss.pipeline.attempts",
		metric.WithDescription("Number of reasoning service attempts"),
		metric.WithUnit("{count}")); err != nil {
		l.Error("failed to register metric", log.ErrorField(err))
	}
	if ret.duration, err = meter.Float64Histogram("rss.pipeline.duration",
		metric.WithDescription("Duration of pipeline runs"),
		metric.WithUnit("s")); err != nil {
		l.Error("failed to register metric", log.ErrorField(err))
	}
	return ret
}

func (m *metrics) run(ctx context.Context, s State, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("state", s.String()))
	if m.runs != nil {
		m.runs.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
}

func (m *metrics) attempt(ctx context.Context, stage string, c Class) {
	if m.attempts == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("class", c.String())))
}
