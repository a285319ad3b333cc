package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/lucid8080/event-saas-main-rebuilt-sub003/config"
)

// saveAndRestoreGlobalProviders keeps tests from leaking OTel globals.
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "eventimage-test",
		SampleRate:   0.5,
	}
	// gRPC 连接是惰性的, 没有 collector 也能创建
	p, err := Init(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	assert.NotNil(t, p.tp)
	assert.NotNil(t, p.mp)
	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK)
	assert.True(t, mpIsSDK)
}

func TestInstall_ExportsSpansAndMetrics(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()
	cfg := config.TelemetryConfig{ServiceName: "eventimage-test", SampleRate: 1}

	p, err := install(context.Background(), cfg, sdktrace.WithSyncer(spans), reader)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	ctx := context.Background()
	_, span := otel.Tracer("test").Start(ctx, "imagegen.generate")
	span.SetAttributes(attribute.String("provider", "flux"))
	span.End()

	counter, err := otel.Meter("test").Int64Counter("generations")
	require.NoError(t, err)
	counter.Add(ctx, 2)

	got := spans.GetSpans()
	require.Len(t, got, 1)
	assert.Equal(t, "imagegen.generate", got[0].Name)
	svc, ok := got[0].Resource.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "eventimage-test", svc.AsString())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
}

func TestInstall_ZeroSampleRateDropsRootSpans(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	spans := tracetest.NewInMemoryExporter()
	p, err := install(context.Background(), config.TelemetryConfig{ServiceName: "x", SampleRate: 0}, sdktrace.WithSyncer(spans), sdkmetric.NewManualReader())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := otel.Tracer("test").Start(context.Background(), "dropped")
	span.End()
	assert.Empty(t, spans.GetSpans())
}

func TestNewResource_ServiceAttributes(t *testing.T) {
	res, err := newResource(context.Background(), config.TelemetryConfig{ServiceName: "eventimage-test"})
	require.NoError(t, err)
	assert.Empty(t, res.SchemaURL())

	name, ok := res.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "eventimage-test", name.AsString())
	version, ok := res.Set().Value("service.version")
	require.True(t, ok)
	assert.NotEmpty(t, version.AsString())
}

func TestShutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
}
