package od

import (
	"strings"
	"time"
)

const clockLayout = "15:04:05"

// TimeBand is a named wall-clock interval of a day, inclusive at both ends.
type TimeBand struct {
	Name  string
	Start string // HH:MM:SS
	End   string // HH:MM:SS
}

// DefaultBands are the six fixed bands of a day. Each band starts one second after the
// previous one ends; 00:00:00 belongs to no band.
var DefaultBands = []TimeBand{
	{Name: "Madrugada", Start: "00:00:01", End: "06:00:00"},
	{Name: "Mañana", Start: "06:00:01", End: "10:00:00"},
	{Name: "MedioDia", Start: "10:00:01", End: "14:00:00"},
	{Name: "Tarde", Start: "14:00:01", End: "17:00:00"},
	{Name: "Noche", Start: "17:00:01", End: "21:00:00"},
	{Name: "MediaNoche", Start: "21:00:01", End: "23:59:59"},
}

// Resolve anchors the band on the calendar day of date in loc and returns its epoch bounds.
// The returned window is not validated; callers skip it when Validate fails.
func (b TimeBand) Resolve(date time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := clockOnDate(date, b.Start, loc)
	if err != nil {
		return Window{}, NewConfigurationError("band "+b.Name, "start %q: %v", b.Start, err)
	}
	end, err := clockOnDate(date, b.End, loc)
	if err != nil {
		return Window{}, NewConfigurationError("band "+b.Name, "end %q: %v", b.End, err)
	}
	return Window{Name: b.Name, Start: start, End: end}, nil
}

func clockOnDate(date time.Time, clock string, loc *time.Location) (int64, error) {
	c, err := time.Parse(clockLayout, clock)
	if err != nil {
		return 0, err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), c.Second(), 0, loc).Unix(), nil
}

// ParseWindow parses an explicit "HH:MM-HH:MM" range into a single band named after the
// raw expression. An end before the start is rejected here, before any scope runs.
func ParseWindow(expr string) (TimeBand, error) {
	expr = strings.TrimSpace(expr)
	from, to, ok := strings.Cut(expr, "-")
	if !ok {
		return TimeBand{}, NewConfigurationError("time", "want HH:MM-HH:MM, got %q", expr)
	}
	t1, err := time.Parse("15:04", strings.TrimSpace(from))
	if err != nil {
		return TimeBand{}, NewConfigurationError("time", "start %q: %v", from, err)
	}
	t2, err := time.Parse("15:04", strings.TrimSpace(to))
	if err != nil {
		return TimeBand{}, NewConfigurationError("time", "end %q: %v", to, err)
	}
	if t1.After(t2) {
		return TimeBand{}, NewConfigurationError("time", "window %q ends before it starts", expr)
	}
	return TimeBand{
		Name:  expr,
		Start: t1.Format(clockLayout),
		End:   t2.Format(clockLayout),
	}, nil
}
