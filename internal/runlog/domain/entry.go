package domain

import "time"

// Entry is one persisted unit outcome of a run.
type Entry struct {
	ID           string
	RunID        string
	Unit         string
	Day          time.Time
	Band         string
	Status       string
	Path         string
	Edges        int
	Transitions  int
	TotalDevices int
	DurationMS   int64
	Warnings     string
	Error        string
	CreatedAt    time.Time
}
