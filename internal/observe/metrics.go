// Package observe holds the OpenTelemetry instruments for the session
// pipeline. InitProvider bridges them to a Prometheus /metrics handler;
// tests build Metrics on a ManualReader instead.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/yoockh/rehearse"

// Metrics is safe for concurrent use.
type Metrics struct {
	// TurnStageDuration: attribute "stage" (transcribe|continue|synthesize).
	TurnStageDuration metric.Float64Histogram

	// StrategyRuns: attributes "stage", "strategy", "status" (ok|error|skipped).
	StrategyRuns metric.Int64Counter

	// AnalysisOutcomes: attribute "source" (ml|placeholder).
	AnalysisOutcomes metric.Int64Counter

	// ReplyContractViolations counts dialogue replies that did not end in a
	// question. Such replies are still delivered.
	ReplyContractViolations metric.Int64Counter

	ActiveRooms       metric.Int64UpDownCounter
	ActiveConnections metric.Int64UpDownCounter

	// HTTPRequestDuration: attributes "method", "route", "status".
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnStageDuration, err = m.Float64Histogram("rehearse.turn.stage.duration",
		metric.WithDescription("Latency of one turn pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("rehearse.http.request.duration",
		metric.WithDescription("HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StrategyRuns, err = m.Int64Counter("rehearse.strategy.runs",
		metric.WithDescription("Fallback strategy attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.AnalysisOutcomes, err = m.Int64Counter("rehearse.analysis.outcomes",
		metric.WithDescription("Completed session analyses by source."),
	); err != nil {
		return nil, err
	}
	if met.ReplyContractViolations, err = m.Int64Counter("rehearse.reply.contract_violations",
		metric.WithDescription("Dialogue replies that did not end in a question."),
	); err != nil {
		return nil, err
	}
	if met.ActiveRooms, err = m.Int64UpDownCounter("rehearse.realtime.rooms",
		metric.WithDescription("Live realtime rooms."),
	); err != nil {
		return nil, err
	}
	if met.ActiveConnections, err = m.Int64UpDownCounter("rehearse.realtime.connections",
		metric.WithDescription("Open realtime connections."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// Noop returns instruments that record nothing.
func Noop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordStage(ctx context.Context, stage string, since time.Time) {
	m.TurnStageDuration.Record(ctx, time.Since(since).Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordStrategy has the shape of fallback.Observer.
func (m *Metrics) RecordStrategy(ctx context.Context, stage, strategy string, ok bool, err error) {
	status := "ok"
	switch {
	case !ok && err == nil:
		status = "skipped"
	case !ok:
		status = "error"
	}
	m.StrategyRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("strategy", strategy),
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordAnalysis(ctx context.Context, source string) {
	m.AnalysisOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}
