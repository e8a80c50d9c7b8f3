package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func findMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRecordStrategyStatus(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStrategy(ctx, "continue", "openai", false, errors.New("down"))
	m.RecordStrategy(ctx, "continue", "vertex", false, nil)
	m.RecordStrategy(ctx, "continue", "scripted", true, nil)

	got := findMetric(t, reader, "rehearse.strategy.runs")
	if got == nil {
		t.Fatal("strategy counter not found")
	}
	sum, ok := got.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", got.Data)
	}
	statuses := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value("status")
		statuses[v.AsString()] += dp.Value
	}
	if statuses["ok"] != 1 || statuses["error"] != 1 || statuses["skipped"] != 1 {
		t.Fatalf("statuses = %v", statuses)
	}
}

func TestRecordStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordStage(context.Background(), "transcribe", time.Now().Add(-200*time.Millisecond))

	got := findMetric(t, reader, "rehearse.turn.stage.duration")
	if got == nil {
		t.Fatal("stage histogram not found")
	}
	h, ok := got.Data.(metricdata.Histogram[float64])
	if !ok || len(h.DataPoints) != 1 {
		t.Fatalf("unexpected histogram data %#v", got.Data)
	}
	if h.DataPoints[0].Sum < 0.2 {
		t.Fatalf("recorded %v s, want >= 0.2", h.DataPoints[0].Sum)
	}
}

func TestNoopRecordsNothing(t *testing.T) {
	m := Noop()
	m.RecordAnalysis(context.Background(), "placeholder")
	m.ActiveRooms.Add(context.Background(), 1)
}
