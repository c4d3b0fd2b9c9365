package service

import (
	"sort"
	"strings"

	"github.com/shadayguerrero/sedatu/internal/network/writer"
	"github.com/shadayguerrero/sedatu/internal/od"
	"github.com/shadayguerrero/sedatu/internal/zone"
)

// Variant names one way of turning a day of pings into networks.
type Variant struct {
	Name              string
	Level             zone.Level
	Mode              od.ExtractionMode
	Output            od.OutputMode
	Weighted          bool
	RequiresAllowlist bool
}

var (
	// VariantCVEGEO is the AGEB network over an allowlist: every qualifying hop, normalized, sparse.
	VariantCVEGEO = Variant{
		Name:              writer.NameCVEGEO,
		Level:             zone.AGEB,
		Mode:              od.Adjacent,
		Output:            od.Sparse,
		Weighted:          true,
		RequiresAllowlist: true,
	}
	// VariantMunicipioAll is the municipal network over every municipality, normalized and
	// completed over the observed municipality pairs.
	VariantMunicipioAll = Variant{
		Name:     writer.NameMunicipioAll,
		Level:    zone.Municipality,
		Mode:     od.Adjacent,
		Output:   od.Complete,
		Weighted: true,
	}
	// VariantRedMunicipal links each device's first and last municipality inside a band,
	// with raw counts over the complete observed matrix.
	VariantRedMunicipal = Variant{
		Name:   writer.NameRedMunicipal,
		Level:  zone.Municipality,
		Mode:   od.Endpoints,
		Output: od.Complete,
	}
)

var variants = map[string]Variant{
	VariantCVEGEO.Name:       VariantCVEGEO,
	VariantMunicipioAll.Name: VariantMunicipioAll,
	VariantRedMunicipal.Name: VariantRedMunicipal,
}

// VariantByName looks up a predefined variant.
func VariantByName(name string) (Variant, error) {
	v, ok := variants[strings.TrimSpace(name)]
	if !ok {
		return Variant{}, od.NewConfigurationError("variant", "unknown variant %q (want one of %s)", name, strings.Join(VariantNames(), ", "))
	}
	return v, nil
}

// VariantNames lists the predefined variant names, sorted.
func VariantNames() []string {
	names := make([]string, 0, len(variants))
	for n := range variants {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
