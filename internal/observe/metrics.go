// Package observe provides the observability primitives shared by voxmail:
// OpenTelemetry metrics, tracing, context-aware structured logging and HTTP
// middleware.
//
// Metrics go through the OpenTelemetry Metrics API and are exported to
// Prometheus by [InitProvider]. [DefaultMetrics] uses the global meter
// provider; tests build their own with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for every voxmail instrument.
const meterName = "github.com/MrWong99/voxmail"

// Pipeline flows, used as the "flow" attribute.
const (
	FlowEmail     = "email"
	FlowAssistant = "assistant"
)

// Metrics holds the metric instruments of the application. All instruments
// are safe for concurrent use.
type Metrics struct {
	// Stage latencies.
	STTDuration  metric.Float64Histogram
	LLMDuration  metric.Float64Histogram
	TTSDuration  metric.Float64Histogram
	MailDuration metric.Float64Histogram

	// PipelineRuns counts finished invocations by "flow" and "outcome".
	PipelineRuns metric.Int64Counter

	// ProviderErrors counts failed external calls by "stage" and "kind".
	ProviderErrors metric.Int64Counter

	// DirectoryContacts tracks the number of stored contacts.
	DirectoryContacts metric.Int64UpDownCounter

	// HTTPRequestDuration tracks API latency by "method" and "path".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Generation and mail
// submission routinely take several seconds, hence the long tail.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.STTDuration, "voxmail.stt.duration", "Latency of speech-to-text transcription."},
		{&met.LLMDuration, "voxmail.llm.duration", "Latency of generation service calls."},
		{&met.TTSDuration, "voxmail.tts.duration", "Latency of speech synthesis."},
		{&met.MailDuration, "voxmail.mail.duration", "Latency of mail transport delivery."},
	}
	for _, h := range histograms {
		inst, err := m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
		if err != nil {
			return nil, err
		}
		*h.dst = inst
	}

	var err error
	if met.PipelineRuns, err = m.Int64Counter("voxmail.pipeline.runs",
		metric.WithDescription("Finished pipeline invocations by flow and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxmail.provider.errors",
		metric.WithDescription("Failed external service calls by stage and kind."),
	); err != nil {
		return nil, err
	}
	if met.DirectoryContacts, err = m.Int64UpDownCounter("voxmail.directory.contacts",
		metric.WithDescription("Number of contacts in the directory."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxmail.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] backed by
// [otel.GetMeterProvider]. Call it after [InitProvider] so the instruments
// bind to the exporting provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordPipelineRun counts one finished invocation.
func (m *Metrics) RecordPipelineRun(ctx context.Context, flow, outcome string) {
	m.PipelineRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("outcome", outcome),
	))
}

// RecordProviderError counts one failed external call.
func (m *Metrics) RecordProviderError(ctx context.Context, stage, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("kind", kind),
	))
}

// ObserveSince records the time elapsed since start on h.
func ObserveSince(ctx context.Context, h metric.Float64Histogram, start time.Time, status string) {
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("status", status)))
}
