package od

import "sort"

// Scale is the per-device multiplier applied to normalized weights.
const Scale = 1_000_000

// OutputMode selects whether unobserved pairs are materialized.
type OutputMode int

const (
	// Sparse emits only observed pairs.
	Sparse OutputMode = iota
	// Complete emits every ordered pair of observed zones, absent pairs weighted 0.
	Complete
)

func (m OutputMode) String() string {
	if m == Complete {
		return "complete"
	}
	return "sparse"
}

// Edge is a weighted directed edge of a Network.
type Edge struct {
	Source string
	Target string
	Weight float64
}

// Network is the edge list of one (date, window) unit together with its denominator.
type Network struct {
	Edges        []Edge
	TotalDevices int
	Mode         OutputMode
	// Weighted is false for raw-count networks.
	Weighted bool
}

// NormalizeOptions configures Normalize.
type NormalizeOptions struct {
	Mode     OutputMode
	Weighted bool
	// Zones observed in the scope; required for Complete.
	Zones []string
}

// Normalize turns raw counts into a Network. Weighted networks scale every count by
// Scale/totalDevices; unweighted ones keep raw counts. totalDevices must be positive.
func Normalize(raw RawEdges, totalDevices int, opts NormalizeOptions) (Network, error) {
	if totalDevices <= 0 {
		return Network{}, ErrEmptyPopulation
	}
	weight := func(count int) float64 {
		if !opts.Weighted {
			return float64(count)
		}
		return float64(count) * Scale / float64(totalDevices)
	}

	n := Network{TotalDevices: totalDevices, Mode: opts.Mode, Weighted: opts.Weighted}
	if opts.Mode == Complete {
		n.Edges = make([]Edge, 0, len(opts.Zones)*len(opts.Zones))
		for _, s := range opts.Zones {
			for _, t := range opts.Zones {
				n.Edges = append(n.Edges, Edge{Source: s, Target: t, Weight: weight(raw[Pair{Source: s, Target: t}])})
			}
		}
		sortEdges(n.Edges)
		return n, nil
	}

	n.Edges = make([]Edge, 0, len(raw))
	for p, c := range raw {
		n.Edges = append(n.Edges, Edge{Source: p.Source, Target: p.Target, Weight: weight(c)})
	}
	sortEdges(n.Edges)
	return n, nil
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
}
