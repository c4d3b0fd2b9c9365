// Package repository supplies the pings of one date partition from a dataset.
package repository

import (
	"context"
	"time"

	"github.com/shadayguerrero/sedatu/internal/ping/domain"
	"github.com/shadayguerrero/sedatu/internal/zone"
)

// Repository fetches the pings of a calendar date. Implementations may push the zone filter
// down to the source; callers still apply it. The returned order is the ingestion order.
type Repository interface {
	Fetch(ctx context.Context, date time.Time, f *zone.Filter) ([]domain.Ping, error)
}

// zoneOf builds the zone code of a row at level. Empty means the row has no usable zone.
func zoneOf(level zone.Level, cvegeo, ent, mun string) string {
	if level == zone.Municipality {
		return zone.MunicipalityCode(ent, mun)
	}
	return zone.Normalize(cvegeo, level.Width())
}
