// Package telemetry wires the three OpenTelemetry instruments this
// server exports: how many sessions started, how long each turn takes,
// and how often the utterance detector times out. Instruments are
// recorded only at phase transitions (session start, turn end, detector
// timeout), never on the 20ms audio path.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// meterName is the instrumentation scope name for every instrument this
// package creates.
const meterName = "github.com/moshi-labs/moshi-voice"

// Metrics holds the instruments recorded by the orchestrator and the
// detector.
type Metrics struct {
	// SessionsStarted counts every orchestrator session that reaches
	// Start.
	SessionsStarted metric.Int64Counter
	// TurnDuration is the wall-clock time of one listen-transcribe-
	// complete-synthesise turn.
	TurnDuration metric.Float64Histogram
	// DetectorTimeouts counts GetUtterance calls whose speech-wait or
	// recording step ends in voiceerr.ErrTimeout, typically because the
	// caller never started speaking within the configured window.
	DetectorTimeouts metric.Int64Counter
}

// NewMetrics creates the three instruments against mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.SessionsStarted, err = m.Int64Counter("moshi.sessions.started",
		metric.WithDescription("Total voice sessions started."),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("moshi.turn.duration",
		metric.WithDescription("Duration of one listen-transcribe-complete-synthesise turn."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.DetectorTimeouts, err = m.Int64Counter("moshi.detector.timeouts",
		metric.WithDescription("Total utterance detector timeouts."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// InitProvider builds a MeterProvider backed by a Prometheus exporter
// bridge, registers it as the global provider, and returns the ready-made
// Metrics plus a shutdown func to call from main before exit. The
// exporter registers itself with the default Prometheus registerer;
// scraping it is the caller's job (wiring a /metrics route onto
// promhttp.Handler()).
func InitProvider(ctx context.Context, serviceName string) (*Metrics, func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, nil, err
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)

	met, err := NewMetrics(mp)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	return met, mp.Shutdown, nil
}
