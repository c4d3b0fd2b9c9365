package batch

import (
	"time"

	"github.com/shadayguerrero/sedatu/internal/od"
)

// Dates returns every calendar day from start to end inclusive, each at midnight in start's
// location. end before start is a configuration error.
func Dates(start, end time.Time) ([]time.Time, error) {
	start = midnight(start)
	end = midnight(end.In(start.Location()))
	if end.Before(start) {
		return nil, od.NewConfigurationError("date-end", "%s is before %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out, nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
