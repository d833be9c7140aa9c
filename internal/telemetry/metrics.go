package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Davygupta47/notebook/internal/admission"
)

// Metrics implements jobs.Observer on OpenTelemetry instruments.
type Metrics struct {
	meter metric.Meter

	queued        metric.Int64Counter
	admissionWait metric.Float64Histogram
	finished      metric.Int64Counter
	duration      metric.Float64Histogram
	frames        metric.Int64Counter
	artifacts     metric.Int64Counter
	artifactBytes metric.Int64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter}
	var err error
	if m.queued, err = meter.Int64Counter("notebook.jobs.queued",
		metric.WithDescription("Generation requests accepted")); err != nil {
		return nil, fmt.Errorf("create jobs.queued: %w", err)
	}
	if m.admissionWait, err = meter.Float64Histogram("notebook.jobs.admission_wait",
		metric.WithDescription("Time spent waiting for a free slot"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create jobs.admission_wait: %w", err)
	}
	if m.finished, err = meter.Int64Counter("notebook.jobs.finished",
		metric.WithDescription("Jobs resolved, by outcome")); err != nil {
		return nil, fmt.Errorf("create jobs.finished: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("notebook.jobs.duration",
		metric.WithDescription("Job lifetime from acceptance to resolution"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create jobs.duration: %w", err)
	}
	if m.frames, err = meter.Int64Counter("notebook.stream.frames",
		metric.WithDescription("Event stream frames written, by event name")); err != nil {
		return nil, fmt.Errorf("create stream.frames: %w", err)
	}
	if m.artifacts, err = meter.Int64Counter("notebook.artifacts.stored",
		metric.WithDescription("Artifacts persisted, by kind")); err != nil {
		return nil, fmt.Errorf("create artifacts.stored: %w", err)
	}
	if m.artifactBytes, err = meter.Int64Histogram("notebook.artifacts.size",
		metric.WithDescription("Persisted artifact size"), metric.WithUnit("By")); err != nil {
		return nil, fmt.Errorf("create artifacts.size: %w", err)
	}
	return m, nil
}

// ObserveGate exports the gate's capacity, in-flight, and waiting counts.
func (m *Metrics) ObserveGate(gate *admission.Gate) error {
	inFlight, err := m.meter.Int64ObservableGauge("notebook.gate.in_flight",
		metric.WithDescription("Jobs holding an admission permit"))
	if err != nil {
		return fmt.Errorf("create gate.in_flight: %w", err)
	}
	waiting, err := m.meter.Int64ObservableGauge("notebook.gate.waiting",
		metric.WithDescription("Jobs waiting for an admission permit"))
	if err != nil {
		return fmt.Errorf("create gate.waiting: %w", err)
	}
	capacity, err := m.meter.Int64ObservableGauge("notebook.gate.capacity",
		metric.WithDescription("Admission permits available in total"))
	if err != nil {
		return fmt.Errorf("create gate.capacity: %w", err)
	}
	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(inFlight, int64(gate.InFlight()))
		o.ObserveInt64(waiting, int64(gate.Waiting()))
		o.ObserveInt64(capacity, int64(gate.Capacity()))
		return nil
	}, inFlight, waiting, capacity)
	if err != nil {
		return fmt.Errorf("register gate callback: %w", err)
	}
	return nil
}

func (m *Metrics) JobQueued(ctx context.Context) {
	m.queued.Add(ctx, 1)
}

func (m *Metrics) JobAdmitted(ctx context.Context, wait time.Duration) {
	m.admissionWait.Record(ctx, wait.Seconds())
}

func (m *Metrics) JobFinished(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.finished.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *Metrics) FrameSent(ctx context.Context, event string) {
	m.frames.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

func (m *Metrics) ArtifactStored(ctx context.Context, kind string, size int) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.artifacts.Add(ctx, 1, attrs)
	m.artifactBytes.Record(ctx, int64(size), attrs)
}
