package od

// Pair is a directed (source, target) zone pair.
type Pair struct {
	Source string
	Target string
}

// RawEdges counts qualifying transitions per pair.
type RawEdges map[Pair]int

// Total returns the sum of all counts.
func (r RawEdges) Total() int {
	n := 0
	for _, c := range r {
		n += c
	}
	return n
}

// Aggregate counts transitions per (source, target) that change zone, stay strictly longer
// than dwell seconds, and depart inside w.
func Aggregate(ts []Transition, dwell int64, w Window) (RawEdges, error) {
	if dwell < 0 {
		return nil, NewConfigurationError("dwell", "must be >= 0, got %d", dwell)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	raw := make(RawEdges)
	for _, t := range ts {
		if !qualifies(t, dwell, w) {
			continue
		}
		raw[Pair{Source: t.SourceZone, Target: t.TargetZone}]++
	}
	return raw, nil
}

func qualifies(t Transition, dwell int64, w Window) bool {
	switch {
	case t.TargetZone == "":
		return false
	case t.SourceZone == t.TargetZone:
		return false
	case t.Dwell <= dwell:
		return false
	}
	return w.Contains(t.SourceTime)
}
