// Package producer defines the interface for publishing unit events (e.g. to Kafka).
package producer

import (
	"context"

	"github.com/shadayguerrero/sedatu/internal/telemetry"
)

// Producer publishes unit events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly.
	Emit(ctx context.Context, event *telemetry.UnitEvent) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
