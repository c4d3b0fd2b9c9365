package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shadayguerrero/sedatu/internal/od/service"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait for in-flight emits before shutting down the OTel
// providers. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// Dispatcher fans unit results out to emitters without blocking the batch. It implements
// batch.Sink.
type Dispatcher struct {
	emitters []EventEmitter
	log      *slog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewDispatcher returns a Dispatcher over the non-nil emitters. log may be nil.
func NewDispatcher(log *slog.Logger, emitters ...EventEmitter) *Dispatcher {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	d := &Dispatcher{log: log, now: time.Now}
	for _, e := range emitters {
		if e != nil {
			d.emitters = append(d.emitters, e)
		}
	}
	return d
}

// Record converts r and emits it to every emitter asynchronously.
func (d *Dispatcher) Record(ctx context.Context, r service.UnitResult) {
	if d == nil || len(d.emitters) == 0 {
		return
	}
	event := NewUnitEvent(r, d.now())
	for _, e := range d.emitters {
		d.EmitAsync(e, event)
	}
}

// EmitAsync runs Emit in a goroutine with emitTimeout so the caller is not blocked. The
// goroutine uses context.Background() so cancelling the run does not abort an in-flight emit.
// Errors are logged. Use Drain to wait for pending emits.
func (d *Dispatcher) EmitAsync(emitter EventEmitter, event *UnitEvent) {
	if emitter == nil || event == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			d.log.Warn("telemetry: async emit failed", "unit", event.Key(), "err", err)
		}
	}()
}

// Drain waits until pending emits finish or ctx is done, whichever comes first.
func (d *Dispatcher) Drain(ctx context.Context) error {
	if d == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
