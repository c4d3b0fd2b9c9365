// Package batch drives the OD builder over a range of dates on a bounded worker pool.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shadayguerrero/sedatu/internal/od"
	"github.com/shadayguerrero/sedatu/internal/od/service"
)

// DateBuilder builds every unit of one date. *service.Builder implements it.
type DateBuilder interface {
	BuildDate(ctx context.Context, date time.Time) ([]service.UnitResult, error)
}

// Sink receives every finished unit. Record is best-effort and must be safe for concurrent use;
// failures stay inside the sink.
type Sink interface {
	Record(ctx context.Context, r service.UnitResult)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r service.UnitResult)

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, r service.UnitResult) { f(ctx, r) }

// Runner schedules dates on at most Workers goroutines.
type Runner struct {
	builder DateBuilder
	workers int
	sinks   []Sink
	log     *slog.Logger
}

// NewRunner returns a Runner. workers below 1 means 1; log may be nil.
func NewRunner(b DateBuilder, workers int, log *slog.Logger, sinks ...Sink) *Runner {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Runner{builder: b, workers: workers, sinks: sinks, log: log}
}

// Run builds every date in [start, end]. Date-level failures are recorded in the report and never
// stop the other dates. The only errors returned are a bad range and context cancellation, in
// which case the report covers the dates that finished.
func (r *Runner) Run(ctx context.Context, start, end time.Time) (Report, error) {
	dates, err := Dates(start, end)
	if err != nil {
		return Report{}, err
	}
	began := time.Now()
	rep := Report{RunID: uuid.NewString()}
	log := r.log.With("run_id", rep.RunID)
	log.Info("batch: run started", "from", dates[0].Format(time.DateOnly), "to", dates[len(dates)-1].Format(time.DateOnly), "dates", len(dates), "workers", r.workers)

	perDate := make([][]service.UnitResult, len(dates))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, date := range dates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			perDate[i] = r.runDate(ctx, rep.RunID, date, log)
			return nil
		})
	}
	_ = g.Wait()

	for _, results := range perDate {
		if results != nil {
			rep.Dates++
		}
		rep.add(results)
	}
	rep.Duration = time.Since(began)
	log.Info("batch: run finished", "dates", rep.Dates, "written", rep.Written, "skipped", rep.Skipped, "failed", rep.Failed, "duration", rep.Duration)
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}

// RunOne builds a single date. Unlike Run, an upstream I/O failure of the date or of any of its
// units is returned as an error.
func (r *Runner) RunOne(ctx context.Context, date time.Time) (Report, error) {
	began := time.Now()
	rep := Report{RunID: uuid.NewString(), Dates: 1}
	results := r.runDate(ctx, rep.RunID, midnight(date), r.log.With("run_id", rep.RunID))
	rep.add(results)
	rep.Duration = time.Since(began)
	for _, res := range results {
		var up *od.UpstreamIOError
		if errors.As(res.Err, &up) {
			return rep, up
		}
	}
	return rep, ctx.Err()
}

func (r *Runner) runDate(ctx context.Context, runID string, date time.Time, log *slog.Logger) []service.UnitResult {
	results, err := r.builder.BuildDate(ctx, date)
	switch {
	case errors.Is(err, od.ErrEmptyPopulation):
		log.Warn("batch: date skipped", "date", date.Format(time.DateOnly), "err", err)
	case err != nil:
		log.Error("batch: date failed", "date", date.Format(time.DateOnly), "err", err)
	}
	for i := range results {
		results[i].RunID = runID
		for _, s := range r.sinks {
			s.Record(ctx, results[i])
		}
	}
	return results
}
