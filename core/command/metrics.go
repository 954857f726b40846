package command

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the processor's metric instruments. All recording methods
// are safe on a nil receiver, so an unconfigured processor pays only a nil
// check.
type Metrics struct {
	published   metric.Int64Counter
	completed   metric.Int64Counter
	outstanding metric.Int64UpDownCounter
	admission   metric.Float64Histogram
	inputs      metric.Int64Counter
}

// NewMetrics creates the processor's metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.published, err = meter.Int64Counter(
		"command.published",
		metric.WithDescription("Commands accepted for processing"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.published: %w", err)
	}

	m.completed, err = meter.Int64Counter(
		"command.completed",
		metric.WithDescription("Commands retired from the outstanding set"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.completed: %w", err)
	}

	m.outstanding, err = meter.Int64UpDownCounter(
		"command.outstanding",
		metric.WithDescription("Commands currently between publish and terminal completion"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.outstanding: %w", err)
	}

	m.admission, err = meter.Float64Histogram(
		"command.admission.duration",
		metric.WithDescription("Filter-chain evaluation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.admission.duration: %w", err)
	}

	m.inputs, err = meter.Int64Counter(
		"command.inputs",
		metric.WithDescription("Inbound inputs routed to outstanding commands"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.inputs: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordPublished(ctx context.Context) {
	if m == nil {
		return
	}
	m.published.Add(ctx, 1)
	m.outstanding.Add(ctx, 1)
}

func (m *Metrics) recordCompleted(ctx context.Context, state State) {
	if m == nil {
		return
	}
	m.completed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", state.String()),
	))
	m.outstanding.Add(ctx, -1)
}

func (m *Metrics) recordAdmission(ctx context.Context, elapsed time.Duration, admitted bool) {
	if m == nil {
		return
	}
	m.admission.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.Bool("admitted", admitted),
	))
}

func (m *Metrics) recordInput(ctx context.Context, claimed bool) {
	if m == nil {
		return
	}
	m.inputs.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("claimed", claimed),
	))
}
