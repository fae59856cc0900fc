package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records spans and metrics in memory. Providers are not
// installed globally.
type TestTelemetry struct {
	*Telemetry
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

// NewTestTelemetry returns an enabled Telemetry that records in memory.
func NewTestTelemetry() *TestTelemetry {
	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	return &TestTelemetry{
		Telemetry: &Telemetry{
			cfg: cfg,
			tp:  sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
			mp:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		},
		spans:  spans,
		reader: reader,
	}
}

// Spans returns the ended spans.
func (tt *TestTelemetry) Spans() []sdktrace.ReadOnlySpan {
	return tt.spans.Ended()
}

// SpanByName returns the first ended span called name, or nil.
func (tt *TestTelemetry) SpanByName(name string) sdktrace.ReadOnlySpan {
	for _, s := range tt.spans.Ended() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// Metrics collects the current metric state.
func (tt *TestTelemetry) Metrics(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := tt.reader.Collect(ctx, &rm)
	return rm, err
}

// AssertSpanExists fails tb unless a span called name has ended.
func (tt *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if tt.SpanByName(name) == nil {
		tb.Errorf("span %q not found among %d ended spans", name, len(tt.spans.Ended()))
	}
}

// AssertSpanAttribute fails tb unless some span called name carries key
// with the string form want.
func (tt *TestTelemetry) AssertSpanAttribute(tb testing.TB, name, key, want string) {
	tb.Helper()
	found := false
	for _, s := range tt.spans.Ended() {
		if s.Name() != name {
			continue
		}
		found = true
		for _, kv := range s.Attributes() {
			if kv.Key == attribute.Key(key) && kv.Value.Emit() == want {
				return
			}
		}
	}
	if !found {
		tb.Errorf("span %q not found", name)
		return
	}
	tb.Errorf("span %q has no attribute %s=%s", name, key, want)
}
