// sedatu builds origin-destination mobility networks from device pings, one CSV per
// (date, time band). Configuration comes from flags, the environment and an optional .env.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/shadayguerrero/sedatu/internal/batch"
	"github.com/shadayguerrero/sedatu/internal/config"
	"github.com/shadayguerrero/sedatu/internal/db"
	"github.com/shadayguerrero/sedatu/internal/network/writer"
	"github.com/shadayguerrero/sedatu/internal/od"
	"github.com/shadayguerrero/sedatu/internal/od/service"
	"github.com/shadayguerrero/sedatu/internal/ping/repository"
	"github.com/shadayguerrero/sedatu/internal/runlog"
	runrepo "github.com/shadayguerrero/sedatu/internal/runlog/repository"
	"github.com/shadayguerrero/sedatu/internal/telemetry"
	telemetryotel "github.com/shadayguerrero/sedatu/internal/telemetry/otel"
	"github.com/shadayguerrero/sedatu/internal/telemetry/producer"
	"github.com/shadayguerrero/sedatu/internal/telemetry/prom"
	"github.com/shadayguerrero/sedatu/internal/zone"
)

const serviceName = "sedatu"

var version = "dev"

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1 // upstream failure or failed units
	exitUsage   = 2 // bad flags or configuration
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	log := cfg.Logger(stderr).With("service", serviceName)
	slog.SetDefault(log)

	if err := cfg.ValidateRun(); err != nil {
		log.Error("sedatu: invalid configuration", "err", err)
		return exitUsage
	}

	app, err := setup(ctx, cfg, log)
	if err != nil {
		if od.IsConfiguration(err) {
			log.Error("sedatu: invalid configuration", "err", err)
			return exitUsage
		}
		log.Error("sedatu: setup failed", "err", err)
		return exitFailure
	}
	defer app.close(log)

	start, end, _ := cfg.DateRange()
	var rep batch.Report
	if cfg.SingleDate() {
		rep, err = app.runner.RunOne(ctx, start)
	} else {
		rep, err = app.runner.Run(ctx, start, end)
	}
	app.finish(ctx, rep, log)

	for _, f := range rep.Failures() {
		log.Error("sedatu: unit failed", "date", f.Date.Format(time.DateOnly), "band", f.Band, "err", f.Err)
	}
	switch {
	case od.IsConfiguration(err):
		log.Error("sedatu: invalid configuration", "err", err)
		return exitUsage
	case err != nil:
		log.Error("sedatu: run failed", "err", err)
		return exitFailure
	case rep.Failed > 0:
		return exitFailure
	}
	return exitOK
}

// app holds everything built from the configuration.
type app struct {
	cfg       *config.Config
	runner    *batch.Runner
	conn      *sql.DB
	providers *telemetryotel.Providers
	dispatch  *telemetry.Dispatcher
	kafka     *producer.KafkaProducer
	prom      *prom.BatchCollector
}

func setup(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.close(log)
		}
	}()

	variant, err := service.VariantByName(cfg.Variant)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	opts := service.Options{
		Variant:      variant,
		Dwell:        cfg.DwellSeconds,
		Location:     loc,
		Suffix:       cfg.OutputSuffix,
		FetchTimeout: cfg.FetchTimeoutDuration(),
		WriteTimeout: cfg.WriteTimeoutDuration(),
		BandWorkers:  cfg.BandWorkers,
	}
	if cfg.TimeWindow != "" {
		band, err := od.ParseWindow(cfg.TimeWindow)
		if err != nil {
			return nil, err
		}
		opts.Bands = []od.TimeBand{band}
		opts.SingleWindow = true
	}
	if cfg.LocationFile != "" {
		f, err := zone.LoadAllowlist(cfg.LocationFile, cfg.LocationColumn, variant.Level.Width())
		if err != nil {
			return nil, err
		}
		opts.Filter = f
		log.Info("sedatu: allowlist loaded", "file", cfg.LocationFile, "zones", f.Len())
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL != "" {
		if a.conn, err = db.OpenContext(ctx, cfg.DatabaseURL, cfg.Workers+1); err != nil {
			if cfg.PingSource == config.SourcePostgres {
				return nil, fmt.Errorf("open database: %w", err)
			}
			log.Warn("sedatu: database unavailable, run ledger disabled", "err", err)
			a.conn = nil
		}
	}

	var repo repository.Repository
	switch cfg.PingSource {
	case config.SourcePostgres:
		repo = repository.NewPostgresRepository(a.conn, variant.Level)
	default:
		repo = repository.NewParquetRepository(cfg.DatasetRoot, variant.Level)
	}

	if a.providers, err = telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, version, cfg.OTLPInsecure); err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.providers.SetGlobal()

	builder, err := service.NewBuilder(repo, writer.NewCSVWriter(cfg.OutputDir), opts, log)
	if err != nil {
		return nil, err
	}

	sinks, err := a.sinks(log)
	if err != nil {
		return nil, err
	}
	a.runner = batch.NewRunner(builder, cfg.Workers, log, sinks...)
	ok = true
	return a, nil
}

// sinks wires every consumer of unit results that the configuration enables.
func (a *app) sinks(log *slog.Logger) ([]batch.Sink, error) {
	metrics, err := telemetryotel.NewUnitMetrics(a.providers.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	sinks := []batch.Sink{metrics}

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(a.providers.LoggerProvider)}
	if a.kafka = producer.NewKafkaProducer(a.cfg.KafkaBrokersList(), a.cfg.NetworkKafkaTopic); a.kafka != nil {
		emitters = append(emitters, a.kafka)
		log.Info("sedatu: publishing unit events", "topic", a.cfg.NetworkKafkaTopic)
	}
	a.dispatch = telemetry.NewDispatcher(log, emitters...)
	sinks = append(sinks, a.dispatch)

	if a.conn != nil {
		sinks = append(sinks, runlog.NewLogger(runrepo.NewPostgresRepository(a.conn), log))
	}
	if a.cfg.PromPushgatewayURL != "" {
		a.prom = prom.NewBatchCollector()
		sinks = append(sinks, a.prom)
	}
	return sinks, nil
}

// finish reports the run and flushes what must leave the process before it exits.
func (a *app) finish(ctx context.Context, rep batch.Report, log *slog.Logger) {
	log.Info("sedatu: done", "run_id", rep.RunID, "dates", rep.Dates, "written", rep.Written,
		"skipped", rep.Skipped, "failed", rep.Failed, "duration", rep.Duration)

	drainCtx, cancel := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration)
	defer cancel()
	if err := a.dispatch.Drain(drainCtx); err != nil {
		log.Warn("sedatu: telemetry drain incomplete", "err", err)
	}

	if a.prom != nil {
		a.prom.Finish(rep, time.Now())
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := a.prom.Push(pushCtx, a.cfg.PromPushgatewayURL, a.cfg.Variant); err != nil {
			log.Warn("sedatu: pushgateway push failed", "err", err)
		}
	}
}

func (a *app) close(log *slog.Logger) {
	if err := a.kafka.Close(); err != nil {
		log.Warn("sedatu: kafka close", "err", err)
	}
	if a.providers != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.providers.Shutdown(ctx)
	}
	if a.conn != nil {
		_ = a.conn.Close()
	}
}
