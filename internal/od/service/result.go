package service

import (
	"time"
)

// Status is the outcome of one unit.
type Status string

const (
	StatusWritten Status = "written"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// DateBand is the Band of a result describing a whole date rather than one window.
const DateBand = "*"

// UnitResult describes one (date, window) unit, or a whole date when Band is DateBand.
type UnitResult struct {
	RunID        string
	Unit         string
	Date         time.Time
	Band         string
	Status       Status
	Path         string
	Edges        int
	Transitions  int
	TotalDevices int
	Duration     time.Duration
	Warnings     []string
	Err          error
}

// Error returns the unit error message, or "" on success.
func (r UnitResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
