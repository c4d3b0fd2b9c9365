// Package service runs the OD engine for one date: fetch, filter, extract once, then one
// aggregate/normalize/write pass per window.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/shadayguerrero/sedatu/internal/network/writer"
	"github.com/shadayguerrero/sedatu/internal/od"
	"github.com/shadayguerrero/sedatu/internal/ping/domain"
	"github.com/shadayguerrero/sedatu/internal/ping/repository"
	"github.com/shadayguerrero/sedatu/internal/zone"
)

// NetworkWriter persists the network of one unit and returns where it went.
type NetworkWriter interface {
	Write(ctx context.Context, u writer.Unit, n od.Network) (string, error)
}

// Options configures a Builder.
type Options struct {
	Variant Variant
	// Filter restricts pings to an allowlist; nil admits every zone.
	Filter *zone.Filter
	// Dwell is the minimum stay in seconds; a transition must exceed it.
	Dwell int64
	// Bands are resolved against each date. Defaults to od.DefaultBands.
	Bands []od.TimeBand
	// SingleWindow scopes each unit to the pings inside its window, so the device
	// denominator and the transitions only see that window.
	SingleWindow bool
	Location     *time.Location
	Suffix       string
	FetchTimeout time.Duration
	WriteTimeout time.Duration
	// BandWorkers bounds how many windows of one date run concurrently.
	BandWorkers int
}

// Validate checks the options before any date runs.
func (o Options) Validate() error {
	if o.Dwell < 0 {
		return od.NewConfigurationError("dwell", "must be >= 0, got %d", o.Dwell)
	}
	if o.Variant.Name == "" {
		return od.NewConfigurationError("variant", "variant is required")
	}
	if o.Variant.RequiresAllowlist && o.Filter == nil {
		return od.NewConfigurationError("location", "variant %s requires a zone allowlist", o.Variant.Name)
	}
	for _, b := range o.Bands {
		if _, err := b.Resolve(time.Now(), o.Location); err != nil {
			return err
		}
	}
	return nil
}

// Builder turns one date of pings into the networks of every configured window.
type Builder struct {
	repo   repository.Repository
	out    NetworkWriter
	opts   Options
	log    *slog.Logger
	tracer trace.Tracer
}

// NewBuilder validates opts and returns a Builder. log may be nil.
func NewBuilder(repo repository.Repository, out NetworkWriter, opts Options, log *slog.Logger) (*Builder, error) {
	if repo == nil || out == nil {
		return nil, errors.New("service: repository and writer are required")
	}
	if len(opts.Bands) == 0 {
		opts.Bands = od.DefaultBands
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.BandWorkers <= 0 {
		opts.BandWorkers = 1
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Builder{
		repo:   repo,
		out:    out,
		opts:   opts,
		log:    log.With("variant", opts.Variant.Name),
		tracer: otel.Tracer("github.com/shadayguerrero/sedatu/internal/od/service"),
	}, nil
}

// Options returns the effective options.
func (b *Builder) Options() Options { return b.opts }

// scope is the read-only state shared by the windows of one date.
type scope struct {
	pings        []domain.Ping
	transitions  []od.Transition
	totalDevices int
	zones        []string
}

func newScope(pings []domain.Ping, mode od.ExtractionMode) *scope {
	return &scope{
		pings:        pings,
		transitions:  od.Extract(mode, pings),
		totalDevices: od.DistinctDevices(pings),
		zones:        od.ObservedZones(pings),
	}
}

// bandScoped reports whether every window needs its own scope. Endpoint extraction takes the
// first and last ping inside the window, so it cannot reuse the day's transitions.
func (b *Builder) bandScoped() bool {
	return b.opts.SingleWindow || b.opts.Variant.Mode == od.Endpoints
}

// BuildDate processes one calendar date. A non-nil error describes a date-level failure
// (ErrEmptyPopulation or *od.UpstreamIOError) and comes with a single DateBand result;
// otherwise there is one result per window, successful or not.
func (b *Builder) BuildDate(ctx context.Context, date time.Time) ([]UnitResult, error) {
	start := time.Now()
	ctx, span := b.tracer.Start(ctx, "od.BuildDate", trace.WithAttributes(
		attribute.String("od.variant", b.opts.Variant.Name),
		attribute.String("od.date", date.Format(time.DateOnly)),
	))
	defer span.End()
	log := b.log.With("date", date.Format(time.DateOnly))

	dateResult := func(status Status, err error, warnings ...string) []UnitResult {
		return []UnitResult{{
			Unit:     b.opts.Variant.Name,
			Date:     date,
			Band:     DateBand,
			Status:   status,
			Duration: time.Since(start),
			Warnings: warnings,
			Err:      err,
		}}
	}

	pings, err := b.fetch(ctx, date)
	if err != nil {
		var up *od.UpstreamIOError
		if !errors.As(err, &up) {
			err = &od.UpstreamIOError{Op: "fetch " + date.Format(time.DateOnly), Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		log.Error("od: fetch pings failed", "err", err)
		return dateResult(StatusFailed, err), err
	}
	pings = b.opts.Filter.Apply(pings)

	devices := od.DistinctDevices(pings)
	span.SetAttributes(attribute.Int("od.pings", len(pings)), attribute.Int("od.devices", devices))
	if devices == 0 {
		msg := fmt.Sprintf("no devices on %s after zone filter; date skipped", date.Format(time.DateOnly))
		log.Warn("od: empty population, skipping date")
		return dateResult(StatusSkipped, od.ErrEmptyPopulation, msg), od.ErrEmptyPopulation
	}
	log.Info("od: pings loaded", "pings", len(pings), "devices", devices)

	var day *scope
	if !b.bandScoped() {
		day = newScope(pings, b.opts.Variant.Mode)
		log.Debug("od: transitions extracted", "transitions", len(day.transitions))
	}

	results := make([]UnitResult, len(b.opts.Bands))
	var g errgroup.Group
	g.SetLimit(b.opts.BandWorkers)
	for i, band := range b.opts.Bands {
		g.Go(func() error {
			results[i] = b.buildUnit(ctx, date, band, pings, day)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// fetch reads the date from the repository. A panicking repository fails only this date.
func (b *Builder) fetch(ctx context.Context, date time.Time) (_ []domain.Ping, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("ping repository panic: %v", p)
		}
	}()
	if b.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.FetchTimeout)
		defer cancel()
	}
	return b.repo.Fetch(ctx, date, b.opts.Filter)
}

// buildUnit runs one window. day is nil when the window needs its own scope.
func (b *Builder) buildUnit(ctx context.Context, date time.Time, band od.TimeBand, pings []domain.Ping, day *scope) UnitResult {
	start := time.Now()
	res := UnitResult{Unit: b.opts.Variant.Name, Date: date, Band: band.Name}
	ctx, span := b.tracer.Start(ctx, "od.unit", trace.WithAttributes(
		attribute.String("od.variant", b.opts.Variant.Name),
		attribute.String("od.date", date.Format(time.DateOnly)),
		attribute.String("od.band", band.Name),
	))
	defer span.End()
	log := b.log.With("date", date.Format(time.DateOnly), "band", band.Name)

	finish := func(status Status, err error) UnitResult {
		res.Status = status
		res.Err = err
		res.Duration = time.Since(start)
		span.SetAttributes(attribute.String("od.status", string(status)), attribute.Int("od.edges", res.Edges))
		if err != nil && status == StatusFailed {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return res
	}

	if err := ctx.Err(); err != nil {
		return finish(StatusFailed, err)
	}

	w, err := band.Resolve(date, b.opts.Location)
	if err == nil {
		err = w.Validate()
	}
	if err != nil {
		res.Warnings = append(res.Warnings, err.Error())
		log.Warn("od: invalid window, skipping band", "err", err)
		return finish(StatusSkipped, err)
	}

	sc := day
	if sc == nil {
		sc = newScope(od.InWindow(pings, w), b.opts.Variant.Mode)
	}
	res.TotalDevices = sc.totalDevices

	raw, err := od.Aggregate(sc.transitions, b.opts.Dwell, w)
	if err != nil {
		log.Error("od: aggregate failed", "err", err)
		return finish(StatusFailed, err)
	}
	res.Transitions = raw.Total()

	n, err := od.Normalize(raw, sc.totalDevices, od.NormalizeOptions{
		Mode:     b.opts.Variant.Output,
		Weighted: b.opts.Variant.Weighted,
		Zones:    sc.zones,
	})
	if errors.Is(err, od.ErrEmptyPopulation) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("no devices in window %s; band skipped", band.Name))
		log.Warn("od: empty population in window, skipping band")
		return finish(StatusSkipped, err)
	}
	if err != nil {
		return finish(StatusFailed, err)
	}
	res.Edges = len(n.Edges)

	path, err := b.write(ctx, writer.Unit{Suffix: b.opts.Suffix, Name: b.opts.Variant.Name, Date: date, Token: band.Name}, n)
	if err != nil {
		log.Error("od: write network failed", "err", err)
		return finish(StatusFailed, err)
	}
	res.Path = path
	log.Info("od: network written", "path", path, "edges", res.Edges, "transitions", res.Transitions, "duration", time.Since(start))
	return finish(StatusWritten, nil)
}

func (b *Builder) write(ctx context.Context, u writer.Unit, n od.Network) (string, error) {
	if b.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.WriteTimeout)
		defer cancel()
	}
	path, err := b.out.Write(ctx, u, n)
	if err != nil {
		var up *od.UpstreamIOError
		if !errors.As(err, &up) {
			err = &od.UpstreamIOError{Op: "write", Err: err}
		}
		return "", err
	}
	return path, nil
}
