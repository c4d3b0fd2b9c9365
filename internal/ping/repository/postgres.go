package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shadayguerrero/sedatu/internal/ping/domain"
	"github.com/shadayguerrero/sedatu/internal/zone"
)

const (
	selectPingsByDay = `SELECT caid, cvegeo, cve_ent, cve_mun, utc_timestamp
FROM pings WHERE day = $1 ORDER BY id`
	selectPingsByDayAndCVEGEO = `SELECT caid, cvegeo, cve_ent, cve_mun, utc_timestamp
FROM pings WHERE day = $1 AND cvegeo = ANY($2) ORDER BY id`
)

type PostgresRepository struct {
	db    *sql.DB
	level zone.Level
}

// NewPostgresRepository returns a ping repository backed by the pings table.
func NewPostgresRepository(db *sql.DB, level zone.Level) *PostgresRepository {
	return &PostgresRepository{db: db, level: level}
}

// Fetch returns the pings of date ordered by ingestion id. At AGEB level the allowlist is
// pushed down to the query, including the unpadded forms of each code, and Filter.Allows
// decides on the normalized code.
func (r *PostgresRepository) Fetch(ctx context.Context, date time.Time, f *zone.Filter) ([]domain.Ping, error) {
	day := date.Format(time.DateOnly)
	var (
		rows *sql.Rows
		err  error
	)
	if f != nil && r.level == zone.AGEB {
		rows, err = r.db.QueryContext(ctx, selectPingsByDayAndCVEGEO, day, storedForms(f.Codes()))
	} else {
		rows, err = r.db.QueryContext(ctx, selectPingsByDay, day)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Ping
	for rows.Next() {
		var (
			caid             string
			cvegeo, ent, mun sql.NullString
			ts               int64
		)
		if err := rows.Scan(&caid, &cvegeo, &ent, &mun, &ts); err != nil {
			return nil, err
		}
		z := zoneOf(r.level, cvegeo.String, ent.String, mun.String)
		if z == "" || !f.Allows(z) {
			continue
		}
		out = append(out, domain.Ping{DeviceID: caid, ZoneID: z, Timestamp: ts})
	}
	return out, rows.Err()
}

// storedForms returns each code together with the forms a loader may have stored after
// dropping leading zeros ("0900200010025" also yields "900200010025").
func storedForms(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, c)
		for i := 0; i < len(c)-1 && c[i] == '0'; i++ {
			out = append(out, c[i+1:])
		}
	}
	return out
}

// Insert appends pings for date with CVEGEO normalized to the AGEB width. Used by loaders and
// integration tests.
func (r *PostgresRepository) Insert(ctx context.Context, date time.Time, rows []Row) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO pings (day, caid, cvegeo, cve_ent, cve_mun, utc_timestamp) VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	day := date.Format(time.DateOnly)
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, day, row.CAID, nullable(zone.Normalize(row.CVEGEO, zone.AGEB.Width())), nullable(row.CveEnt), nullable(row.CveMun), row.UTCTimestamp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
