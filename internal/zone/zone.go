// Package zone normalizes geographic zone codes and restricts pings to an allowlist of zones.
package zone

import (
	"sort"
	"strings"

	"github.com/shadayguerrero/sedatu/internal/od"
	"github.com/shadayguerrero/sedatu/internal/ping/domain"
)

// Level is the geographic resolution a ping's zone code is built at.
type Level int

const (
	// AGEB zones are 13-character CVEGEO codes.
	AGEB Level = iota
	// Municipality zones are 5-character cve_ent (2) + cve_mun (3) codes.
	Municipality
)

// Width is the fixed code width of the level.
func (l Level) Width() int {
	if l == Municipality {
		return 5
	}
	return 13
}

func (l Level) String() string {
	if l == Municipality {
		return "municipio"
	}
	return "cvegeo"
}

// ParseLevel maps "cvegeo"/"ageb" and "municipio"/"municipality" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cvegeo", "ageb":
		return AGEB, nil
	case "municipio", "municipality", "mun":
		return Municipality, nil
	}
	return AGEB, od.NewConfigurationError("zone level", "unknown level %q", s)
}

// Normalize trims code and left-pads all-digit codes shorter than width with zeros, so
// codes read as numbers ("9002") compare equal to their string form ("09002").
func Normalize(code string, width int) string {
	code = strings.TrimSpace(code)
	if code == "" || len(code) >= width || !isDigits(code) {
		return code
	}
	return strings.Repeat("0", width-len(code)) + code
}

// MunicipalityCode concatenates a state code padded to 2 and a municipality code padded to 3.
func MunicipalityCode(ent, mun string) string {
	ent, mun = strings.TrimSpace(ent), strings.TrimSpace(mun)
	if ent == "" || mun == "" {
		return ""
	}
	return Normalize(ent, 2) + Normalize(mun, 3)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Filter is an allowlist of normalized zone codes. A nil *Filter admits every zone.
type Filter struct {
	width int
	codes map[string]struct{}
}

// NewFilter builds a Filter from codes. Blank codes are ignored; an empty result is a
// configuration error.
func NewFilter(codes []string, width int) (*Filter, error) {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if n := Normalize(c, width); n != "" {
			set[n] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil, od.NewConfigurationError("zones", "zone allowlist is empty")
	}
	return &Filter{width: width, codes: set}, nil
}

// Allows reports whether code is admitted.
func (f *Filter) Allows(code string) bool {
	if f == nil {
		return true
	}
	_, ok := f.codes[Normalize(code, f.width)]
	return ok
}

// Apply returns the admitted pings in their original order.
func (f *Filter) Apply(pings []domain.Ping) []domain.Ping {
	if f == nil {
		return pings
	}
	out := make([]domain.Ping, 0, len(pings))
	for _, p := range pings {
		if f.Allows(p.ZoneID) {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of admitted codes; 0 for a nil filter.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.codes)
}

// Codes returns the admitted codes sorted, or nil for a nil filter.
func (f *Filter) Codes() []string {
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(f.codes))
	for c := range f.codes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
