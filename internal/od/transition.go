package od

import (
	"sort"

	"github.com/shadayguerrero/sedatu/internal/ping/domain"
)

// Transition is a move of one device from the zone of one ping to the zone of the ping
// that follows it. Dwell is TargetTime - SourceTime in seconds.
type Transition struct {
	DeviceID   string
	SourceZone string
	TargetZone string
	SourceTime int64
	TargetTime int64
	Dwell      int64
}

// ExtractionMode selects how a device's ordered pings become transitions.
type ExtractionMode int

const (
	// Adjacent emits one transition per consecutive pair of pings.
	Adjacent ExtractionMode = iota
	// Endpoints emits a single transition from the first to the last ping.
	Endpoints
)

func (m ExtractionMode) String() string {
	switch m {
	case Adjacent:
		return "adjacent"
	case Endpoints:
		return "endpoints"
	default:
		return "unknown"
	}
}

// Extract dispatches on mode.
func Extract(mode ExtractionMode, pings []domain.Ping) []Transition {
	if mode == Endpoints {
		return ExtractEndpoints(pings)
	}
	return ExtractTransitions(pings)
}

// ExtractTransitions groups pings by device, orders each group by timestamp and pairs every
// ping with its successor. Pings with equal timestamps keep their input order. A device's
// last ping has no successor and produces nothing.
func ExtractTransitions(pings []domain.Ping) []Transition {
	groups := groupByDevice(pings)
	out := make([]Transition, 0, len(pings))
	for _, g := range groups {
		for i := 0; i+1 < len(g); i++ {
			out = append(out, newTransition(g[i], g[i+1]))
		}
	}
	return out
}

// ExtractEndpoints emits, per device with at least two pings, one transition from its
// earliest ping to its latest one.
func ExtractEndpoints(pings []domain.Ping) []Transition {
	groups := groupByDevice(pings)
	out := make([]Transition, 0, len(groups))
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		out = append(out, newTransition(g[0], g[len(g)-1]))
	}
	return out
}

func newTransition(from, to domain.Ping) Transition {
	return Transition{
		DeviceID:   from.DeviceID,
		SourceZone: from.ZoneID,
		TargetZone: to.ZoneID,
		SourceTime: from.Timestamp,
		TargetTime: to.Timestamp,
		Dwell:      to.Timestamp - from.Timestamp,
	}
}

// groupByDevice returns per-device ping slices in first-seen device order, each stably
// sorted by timestamp.
func groupByDevice(pings []domain.Ping) [][]domain.Ping {
	index := make(map[string]int)
	var groups [][]domain.Ping
	for _, p := range pings {
		i, ok := index[p.DeviceID]
		if !ok {
			i = len(groups)
			index[p.DeviceID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], p)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(a, b int) bool { return g[a].Timestamp < g[b].Timestamp })
	}
	return groups
}

// DistinctDevices counts unique device IDs in pings.
func DistinctDevices(pings []domain.Ping) int {
	seen := make(map[string]struct{})
	for _, p := range pings {
		seen[p.DeviceID] = struct{}{}
	}
	return len(seen)
}

// ObservedZones returns the sorted set of zone IDs present in pings.
func ObservedZones(pings []domain.Ping) []string {
	seen := make(map[string]struct{})
	for _, p := range pings {
		if p.ZoneID != "" {
			seen[p.ZoneID] = struct{}{}
		}
	}
	zones := make([]string, 0, len(seen))
	for z := range seen {
		zones = append(zones, z)
	}
	sort.Strings(zones)
	return zones
}

// InWindow returns the pings whose timestamp lies in w, preserving order.
func InWindow(pings []domain.Ping, w Window) []domain.Ping {
	out := make([]domain.Ping, 0, len(pings))
	for _, p := range pings {
		if w.Contains(p.Timestamp) {
			out = append(out, p)
		}
	}
	return out
}
