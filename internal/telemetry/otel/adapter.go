package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/shadayguerrero/sedatu/internal/telemetry"
)

const scopeName = "github.com/shadayguerrero/sedatu/internal/telemetry"

// recordEmitter is the part of otellog.Logger the emitter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends unit events as OTel log records via the
// given LoggerProvider. If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger(scopeName))
}

// NewEventEmitterWithLogger returns an EventEmitter writing to logger.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *telemetry.UnitEvent) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the event to a log record: the JSON event as body, identifying fields as
// attributes, severity from the unit status.
func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.UnitEvent) error {
	if event == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	rec := otellog.Record{}
	rec.SetTimestamp(event.CreatedAt)
	if rec.Timestamp().IsZero() {
		rec.SetTimestamp(time.Now().UTC())
	}
	rec.SetEventName("od.unit")
	rec.SetBody(otellog.BytesValue(body))
	sev, text := severity(event.Status)
	rec.SetSeverity(sev)
	rec.SetSeverityText(text)

	rec.AddAttributes(
		otellog.String("unit", event.Unit),
		otellog.String("date", event.Date),
		otellog.String("band", event.Band),
		otellog.String("status", event.Status),
		otellog.Int("edges", event.Edges),
		otellog.Int("transitions", event.Transitions),
		otellog.Int("total_devices", event.TotalDevices),
		otellog.Int64("duration_ms", event.DurationMS),
	)
	if event.RunID != "" {
		rec.AddAttributes(otellog.String("run_id", event.RunID))
	}
	if event.Path != "" {
		rec.AddAttributes(otellog.String("path", event.Path))
	}
	if event.Error != "" {
		rec.AddAttributes(otellog.String("error", event.Error))
	}
	e.logger.Emit(ctx, rec)
	return nil
}

func severity(status string) (otellog.Severity, string) {
	switch status {
	case "failed":
		return otellog.SeverityError, "ERROR"
	case "skipped":
		return otellog.SeverityWarn, "WARN"
	default:
		return otellog.SeverityInfo, "INFO"
	}
}
