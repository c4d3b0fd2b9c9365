// Package telemetry publishes unit outcomes outside the process: OTel log records, Kafka
// messages and, from the worker, Loki streams.
package telemetry

import (
	"time"

	"github.com/shadayguerrero/sedatu/internal/od/service"
)

// UnitEvent is the wire form of a unit outcome. It is the Kafka message value and the Loki
// log line.
type UnitEvent struct {
	RunID        string    `json:"runId"`
	Unit         string    `json:"unit"`
	Date         string    `json:"date"`
	Band         string    `json:"band"`
	Status       string    `json:"status"`
	Path         string    `json:"path,omitempty"`
	Edges        int       `json:"edges"`
	Transitions  int       `json:"transitions"`
	TotalDevices int       `json:"totalDevices"`
	DurationMS   int64     `json:"durationMs"`
	Warnings     []string  `json:"warnings,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewUnitEvent converts r, stamping CreatedAt with now.
func NewUnitEvent(r service.UnitResult, now time.Time) *UnitEvent {
	return &UnitEvent{
		RunID:        r.RunID,
		Unit:         r.Unit,
		Date:         r.Date.Format(time.DateOnly),
		Band:         r.Band,
		Status:       string(r.Status),
		Path:         r.Path,
		Edges:        r.Edges,
		Transitions:  r.Transitions,
		TotalDevices: r.TotalDevices,
		DurationMS:   r.Duration.Milliseconds(),
		Warnings:     r.Warnings,
		Error:        r.Error(),
		CreatedAt:    now.UTC(),
	}
}

// Key identifies the unit; Kafka uses it as the message key so reruns of a unit share a
// partition.
func (e *UnitEvent) Key() string {
	return e.Unit + "/" + e.Date + "/" + e.Band
}
