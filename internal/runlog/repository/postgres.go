package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shadayguerrero/sedatu/internal/runlog/domain"
)

const entryColumns = `id, run_id, unit, day, band, status, path, edges, transitions, total_devices,
	duration_ms, warnings, error, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a run ledger repository backed by the network_runs table.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts e. e.ID must be set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Entry) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO network_runs (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.RunID, e.Unit, e.Day.Format(time.DateOnly), e.Band, e.Status, e.Path, e.Edges,
		e.Transitions, e.TotalDevices, e.DurationMS, e.Warnings, e.Error, e.CreatedAt)
	return err
}

// ListByRun returns the entries of runID ordered by day and band.
func (r *PostgresRepository) ListByRun(ctx context.Context, runID string) ([]*domain.Entry, error) {
	return r.list(ctx, `SELECT `+entryColumns+` FROM network_runs WHERE run_id = $1 ORDER BY day, band`, runID)
}

// ListByDay returns the entries of unit for day, newest first.
func (r *PostgresRepository) ListByDay(ctx context.Context, unit string, day time.Time) ([]*domain.Entry, error) {
	return r.list(ctx, `SELECT `+entryColumns+` FROM network_runs WHERE unit = $1 AND day = $2 ORDER BY created_at DESC`,
		unit, day.Format(time.DateOnly))
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Unit, &e.Day, &e.Band, &e.Status, &e.Path, &e.Edges,
			&e.Transitions, &e.TotalDevices, &e.DurationMS, &e.Warnings, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
