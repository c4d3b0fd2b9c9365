package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shadayguerrero/sedatu/internal/od/service"
)

// UnitMetrics records one measurement set per finished unit. It implements batch.Sink.
type UnitMetrics struct {
	units       metric.Int64Counter
	edges       metric.Int64Histogram
	transitions metric.Int64Histogram
	duration    metric.Float64Histogram
}

// NewUnitMetrics creates the instruments on mp; nil uses the global MeterProvider.
func NewUnitMetrics(mp metric.MeterProvider) (*UnitMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(scopeName)
	var (
		m   UnitMetrics
		err error
	)
	if m.units, err = meter.Int64Counter("od.units",
		metric.WithDescription("Units processed, by variant, band and status."),
		metric.WithUnit("{unit}")); err != nil {
		return nil, err
	}
	if m.edges, err = meter.Int64Histogram("od.unit.edges",
		metric.WithDescription("Edges written per unit."),
		metric.WithUnit("{edge}")); err != nil {
		return nil, err
	}
	if m.transitions, err = meter.Int64Histogram("od.unit.transitions",
		metric.WithDescription("Qualifying transitions per unit."),
		metric.WithUnit("{transition}")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("od.unit.duration",
		metric.WithDescription("Wall time per unit."),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return &m, nil
}

// Record adds r to the instruments. Size histograms only see written units.
func (m *UnitMetrics) Record(ctx context.Context, r service.UnitResult) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("variant", r.Unit),
		attribute.String("band", r.Band),
		attribute.String("status", string(r.Status)),
	)
	m.units.Add(ctx, 1, attrs)
	m.duration.Record(ctx, r.Duration.Seconds(), attrs)
	if r.Status == service.StatusWritten {
		m.edges.Record(ctx, int64(r.Edges), attrs)
		m.transitions.Record(ctx, int64(r.Transitions), attrs)
	}
}
