package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing service name", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: ErrMissingServiceName},
		{name: "missing service version", mutate: func(c *Config) { c.ServiceVersion = "" }, wantErr: ErrMissingServiceVersion},
		{name: "negative sample rate", mutate: func(c *Config) { c.SampleRate = -0.1 }, wantErr: ErrInvalidSampleRate},
		{name: "sample rate above one", mutate: func(c *Config) { c.SampleRate = 1.5 }, wantErr: ErrInvalidSampleRate},
		{name: "zero sample rate", mutate: func(c *Config) { c.SampleRate = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected error to wrap ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestInitialize(t *testing.T) {
	t.Run("returns error when config is invalid", func(t *testing.T) {
		cfg := testConfig()
		cfg.ServiceName = ""

		tel, err := Initialize(context.Background(), cfg)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if tel != nil {
			t.Error("expected nil telemetry")
		}
	})

	t.Run("tracing without endpoint still produces spans", func(t *testing.T) {
		cfg := testConfig()
		cfg.EnableTracing = true

		tel := initialize(t, cfg)

		if tel.TracerProvider() == nil {
			t.Fatal("expected tracer provider")
		}
		if tel.MeterProvider() != nil {
			t.Error("expected nil meter provider")
		}

		_, span := StartSpan(context.Background(), "op")
		defer span.End()
		if !span.SpanContext().IsValid() {
			t.Error("expected a valid span context for log correlation")
		}
	})

	t.Run("provided trace exporter receives spans", func(t *testing.T) {
		cfg := testConfig()
		cfg.EnableTracing = true
		exp := tracetest.NewInMemoryExporter()

		initialize(t, cfg, WithTraceExporter(exp))

		_, span := StartSpan(context.Background(), "orders.create")
		span.End()

		spans := exp.GetSpans()
		if len(spans) != 1 || spans[0].Name != "orders.create" {
			t.Fatalf("expected one orders.create span, got %v", spans)
		}
	})

	t.Run("metrics reach extra readers", func(t *testing.T) {
		cfg := testConfig()
		cfg.EnableMetrics = true
		reader := sdkmetric.NewManualReader()

		tel := initialize(t, cfg, WithMetricReader(reader))

		if tel.TracerProvider() != nil {
			t.Error("expected nil tracer provider")
		}

		counter, err := otel.Meter("test").Int64Counter("orders_created_total")
		if err != nil {
			t.Fatalf("create counter: %v", err)
		}
		counter.Add(context.Background(), 2)

		var rm metricdata.ResourceMetrics
		if err := reader.Collect(context.Background(), &rm); err != nil {
			t.Fatalf("collect: %v", err)
		}
		if !hasMetric(rm, "orders_created_total") {
			t.Error("expected orders_created_total to be collected")
		}
	})

	t.Run("sets the global propagator", func(t *testing.T) {
		initialize(t, testConfig())

		fields := otel.GetTextMapPropagator().Fields()
		if !contains(fields, "traceparent") || !contains(fields, "baggage") {
			t.Errorf("expected traceparent and baggage fields, got %v", fields)
		}
	})
}

func TestMetricsHandler(t *testing.T) {
	t.Run("exposes recorded metrics", func(t *testing.T) {
		cfg := testConfig()
		cfg.EnableMetrics = true
		tel := initialize(t, cfg)

		counter, err := otel.Meter("test").Int64Counter("orders_advanced_total")
		if err != nil {
			t.Fatalf("create counter: %v", err)
		}
		counter.Add(context.Background(), 1)

		rec := httptest.NewRecorder()
		tel.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body, _ := io.ReadAll(rec.Body)
		if !strings.Contains(string(body), "orders_advanced_total") {
			t.Errorf("expected orders_advanced_total in exposition, got:\n%s", body)
		}
		if !strings.Contains(string(body), "go_goroutines") {
			t.Error("expected runtime collectors in exposition")
		}
	})

	t.Run("not found when metrics are disabled", func(t *testing.T) {
		tel := initialize(t, testConfig())

		rec := httptest.NewRecorder()
		tel.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: 0, want: sdktrace.NeverSample().Description()},
		{rate: 1, want: sdktrace.AlwaysSample().Description()},
		{rate: 0.5, want: sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.5)).Description()},
	}

	for _, tt := range tests {
		if got := createSampler(tt.rate).Description(); got != tt.want {
			t.Errorf("rate %v: expected %q, got %q", tt.rate, tt.want, got)
		}
	}
}

func TestShutdown(t *testing.T) {
	t.Run("empty telemetry shuts down cleanly", func(t *testing.T) {
		tel := &Telemetry{}
		if err := tel.Shutdown(context.Background()); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("stops both providers", func(t *testing.T) {
		cfg := testConfig()
		cfg.EnableTracing = true
		cfg.EnableMetrics = true
		prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
		t.Cleanup(func() {
			otel.SetTracerProvider(prevTP)
			otel.SetMeterProvider(prevMP)
		})

		tel, err := Initialize(context.Background(), cfg, WithTraceExporter(tracetest.NewInMemoryExporter()))
		if err != nil {
			t.Fatalf("initialize: %v", err)
		}

		_, span := tel.TracerProvider().Tracer("test").Start(context.Background(), "op")
		span.End()

		if err := tel.Shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	})
}

func hasMetric(rm metricdata.ResourceMetrics, name string) bool {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return true
			}
		}
	}
	return false
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
