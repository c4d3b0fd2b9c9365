// Package prom pushes batch metrics to a Prometheus Pushgateway once a run ends.
package prom

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/shadayguerrero/sedatu/internal/batch"
	"github.com/shadayguerrero/sedatu/internal/od/service"
)

// Job is the Pushgateway job label.
const Job = "sedatu"

// BatchCollector bundles the metrics of one run. Record implements batch.Sink.
type BatchCollector struct {
	reg *prometheus.Registry

	Units       *prometheus.CounterVec
	Edges       *prometheus.CounterVec
	UnitSeconds *prometheus.HistogramVec

	Dates       prometheus.Gauge
	RunSeconds  prometheus.Gauge
	LastSuccess prometheus.Gauge
}

// NewBatchCollector registers the run metrics on a fresh registry.
func NewBatchCollector() *BatchCollector {
	c := &BatchCollector{
		reg: prometheus.NewRegistry(),
		Units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sedatu_units_total",
			Help: "Units processed in the run, labeled by variant, band and status.",
		}, []string{"variant", "band", "status"}),
		Edges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sedatu_edges_written_total",
			Help: "Edges written in the run, labeled by variant.",
		}, []string{"variant"}),
		UnitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sedatu_unit_duration_seconds",
			Help:    "Wall time per unit in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"variant"}),
		Dates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sedatu_run_dates",
			Help: "Dates covered by the last run.",
		}),
		RunSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sedatu_run_duration_seconds",
			Help: "Wall time of the last run in seconds.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sedatu_run_last_success_timestamp_seconds",
			Help: "Unix time of the last run without failed units.",
		}),
	}
	c.reg.MustRegister(c.Units, c.Edges, c.UnitSeconds, c.Dates, c.RunSeconds, c.LastSuccess)
	return c
}

// Gatherer exposes the registry.
func (c *BatchCollector) Gatherer() prometheus.Gatherer { return c.reg }

// Record counts one unit.
func (c *BatchCollector) Record(_ context.Context, r service.UnitResult) {
	if c == nil {
		return
	}
	c.Units.WithLabelValues(r.Unit, r.Band, string(r.Status)).Inc()
	c.UnitSeconds.WithLabelValues(r.Unit).Observe(r.Duration.Seconds())
	if r.Status == service.StatusWritten {
		c.Edges.WithLabelValues(r.Unit).Add(float64(r.Edges))
	}
}

// Finish sets the run gauges from rep.
func (c *BatchCollector) Finish(rep batch.Report, now time.Time) {
	c.Dates.Set(float64(rep.Dates))
	c.RunSeconds.Set(rep.Duration.Seconds())
	if rep.Failed == 0 {
		c.LastSuccess.Set(float64(now.Unix()))
	}
}

// Push replaces the job's metrics on the Pushgateway at url, grouped by variant.
func (c *BatchCollector) Push(ctx context.Context, url, variant string) error {
	if url == "" {
		return errors.New("prom: pushgateway URL is empty")
	}
	p := push.New(url, Job).Gatherer(c.reg)
	if variant != "" {
		p = p.Grouping("variant", variant)
	}
	return p.PushContext(ctx)
}
