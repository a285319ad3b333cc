package imagegen

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/types"
)

const instrumentationName = "github.com/lucid8080/event-saas-main-rebuilt-sub003/imagegen"

// instruments 生成请求的追踪与指标
type instruments struct {
	tracer trace.Tracer

	generations metric.Int64Counter
	duration    metric.Float64Histogram
	cost        metric.Float64Counter
}

// newInstruments never fails: an instrument that cannot be created falls back
// to a no-op so generation is never blocked by telemetry.
func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)
	in := &instruments{tracer: otel.Tracer(instrumentationName)}

	var err error
	if in.generations, err = meter.Int64Counter("imagegen.generation.total",
		metric.WithDescription("Image generations by provider and outcome"),
		metric.WithUnit("{generation}")); err != nil {
		otel.Handle(err)
	}
	if in.duration, err = meter.Float64Histogram("imagegen.generation.duration",
		metric.WithDescription("Provider generation latency"),
		metric.WithUnit("s")); err != nil {
		otel.Handle(err)
	}
	if in.cost, err = meter.Float64Counter("imagegen.generation.cost",
		metric.WithDescription("Estimated cost of successful generations"),
		metric.WithUnit("USD")); err != nil {
		otel.Handle(err)
	}
	return in
}

func (in *instruments) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// recordGeneration 记录一次生成的结果
func (in *instruments) recordGeneration(ctx context.Context, provider ProviderID, elapsed time.Duration, cost float64, err *types.Error) {
	status := "ok"
	if err != nil {
		status = string(err.Code)
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("status", status),
	)
	if in.generations != nil {
		in.generations.Add(ctx, 1, attrs)
	}
	if err != nil {
		return
	}
	if in.duration != nil {
		in.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
	if in.cost != nil {
		in.cost.Add(ctx, cost, attrs)
	}
}
