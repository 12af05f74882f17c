package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/jobq"
	mw "github.com/xraph/jobq/middleware"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func outcomeOf(t *testing.T, m *metricdata.Metrics) string {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatalf("expected one Sum[int64] data point, got %#v", m.Data)
	}
	v, ok := sum.DataPoints[0].Attributes.Value(attribute.Key("outcome"))
	if !ok {
		t.Fatal("missing outcome attribute")
	}
	return v.AsString()
}

func TestMetrics_RecordsDuration(t *testing.T) {
	reader, mp := setupTestMeter()
	_ = mw.MetricsWithMeter(mp.Meter("test"))(context.Background(), newTestJob(), func(_ context.Context) error {
		return nil
	})

	m := findMetric(collectMetrics(t, reader), "jobq.attempt.duration")
	if m == nil {
		t.Fatal("jobq.attempt.duration not found")
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatal("expected histogram data points")
	}
	if hist.DataPoints[0].Count != 1 {
		t.Errorf("expected count=1, got %d", hist.DataPoints[0].Count)
	}
	q, _ := hist.DataPoints[0].Attributes.Value(attribute.Key("queue"))
	if q.AsString() != "mcq_import" {
		t.Errorf("queue attribute = %q", q.AsString())
	}
}

func TestMetrics_Outcomes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ok", nil, "ok"},
		{"transient", errors.New("flaky"), "error"},
		{"permanent", jobq.Permanent(errors.New("bad input")), "permanent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, mp := setupTestMeter()
			err := mw.MetricsWithMeter(mp.Meter("test"))(context.Background(), newTestJob(), func(_ context.Context) error {
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Fatalf("error not propagated: %v", err)
			}
			m := findMetric(collectMetrics(t, reader), "jobq.attempt.count")
			if m == nil {
				t.Fatal("jobq.attempt.count not found")
			}
			if got := outcomeOf(t, m); got != tt.want {
				t.Errorf("outcome = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMetrics_DefaultNoopSafe(t *testing.T) {
	called := false
	err := mw.Metrics()(context.Background(), newTestJob(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}
