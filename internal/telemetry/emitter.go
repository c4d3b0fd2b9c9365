package telemetry

import (
	"context"
)

// EventEmitter emits unit events (e.g. to OTel Logs or Kafka). Best-effort; callers log and
// ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *UnitEvent) error
}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(ctx context.Context, event *UnitEvent) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, event *UnitEvent) error { return f(ctx, event) }
