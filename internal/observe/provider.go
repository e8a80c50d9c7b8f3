package observe

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Provider owns the meter provider and the scrape handler.
type Provider struct {
	Metrics  *Metrics
	Handler  http.Handler
	Shutdown func(context.Context) error
}

// InitProvider registers a Prometheus-backed meter provider as the global
// OTel provider and builds the application instruments on it.
func InitProvider() (*Provider, error) {
	reg := prometheus.NewRegistry()
	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	otel.SetMeterProvider(mp)

	met, err := NewMetrics(mp)
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, err
	}
	return &Provider{
		Metrics:  met,
		Handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Shutdown: mp.Shutdown,
	}, nil
}
