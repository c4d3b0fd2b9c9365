package batch

import (
	"time"

	"github.com/shadayguerrero/sedatu/internal/od/service"
)

// Report summarizes a run. Results are ordered by date, then by band.
type Report struct {
	RunID    string
	Dates    int
	Written  int
	Skipped  int
	Failed   int
	Results  []service.UnitResult
	Duration time.Duration
}

func (r *Report) add(results []service.UnitResult) {
	for _, res := range results {
		switch res.Status {
		case service.StatusWritten:
			r.Written++
		case service.StatusSkipped:
			r.Skipped++
		case service.StatusFailed:
			r.Failed++
		}
	}
	r.Results = append(r.Results, results...)
}

// Failures returns the failed results.
func (r Report) Failures() []service.UnitResult {
	var out []service.UnitResult
	for _, res := range r.Results {
		if res.Status == service.StatusFailed {
			out = append(out, res)
		}
	}
	return out
}
