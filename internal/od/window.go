package od

// Window is a closed epoch interval [Start, End] in seconds, named after the band or the
// explicit time range it was resolved from.
type Window struct {
	Name  string
	Start int64
	End   int64
}

// Validate returns an *InvalidWindowError when Start is after End.
func (w Window) Validate() error {
	if w.Start > w.End {
		return &InvalidWindowError{Window: w}
	}
	return nil
}

// Contains reports whether ts lies in [Start, End].
func (w Window) Contains(ts int64) bool {
	return ts >= w.Start && ts <= w.End
}
