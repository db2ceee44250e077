package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records pass-level metrics through OpenTelemetry and exposes
// them on the default Prometheus registry.
type Observability struct {
	meterProvider *metric.MeterProvider
	passCounter   otelmetric.Int64Counter
	passDuration  otelmetric.Float64Histogram
	jobOutcomes   otelmetric.Int64Counter
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	passCounter, _ := meter.Int64Counter(
		"notification_passes",
		otelmetric.WithDescription("Number of worker passes run"),
	)

	passDuration, _ := meter.Float64Histogram(
		"notification_pass_duration",
		otelmetric.WithDescription("Worker pass duration"),
		otelmetric.WithUnit("ms"),
	)

	jobOutcomes, _ := meter.Int64Counter(
		"notification_pass_jobs",
		otelmetric.WithDescription("Jobs handled per pass by outcome"),
	)

	return &Observability{
		meterProvider: provider,
		passCounter:   passCounter,
		passDuration:  passDuration,
		jobOutcomes:   jobOutcomes,
	}
}

// NewNoop returns an Observability whose recorders do nothing.
func NewNoop() *Observability {
	return &Observability{}
}

// RecordPass records one finished pass. trigger is "http", "ticker" or "cli";
// status is "ok" or "error".
func (o *Observability) RecordPass(ctx context.Context, trigger, status string, duration time.Duration, sent, failed, skipped int) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("status", status),
	)
	if o.passCounter != nil {
		o.passCounter.Add(ctx, 1, attrs)
	}
	if o.passDuration != nil {
		o.passDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
	if o.jobOutcomes != nil {
		o.jobOutcomes.Add(ctx, int64(sent), otelmetric.WithAttributes(attribute.String("outcome", "sent")))
		o.jobOutcomes.Add(ctx, int64(failed), otelmetric.WithAttributes(attribute.String("outcome", "failed")))
		o.jobOutcomes.Add(ctx, int64(skipped), otelmetric.WithAttributes(attribute.String("outcome", "skipped")))
	}
}

func (o *Observability) Shutdown() {
	if o != nil && o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
