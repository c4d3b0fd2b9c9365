package repository

import (
	"context"
	"time"

	"github.com/shadayguerrero/sedatu/internal/runlog/domain"
)

// Repository defines persistence for run ledger entries.
type Repository interface {
	Create(ctx context.Context, e *domain.Entry) error
	ListByRun(ctx context.Context, runID string) ([]*domain.Entry, error)
	// ListByDay returns the entries of unit for day, newest first.
	ListByDay(ctx context.Context, unit string, day time.Time) ([]*domain.Entry, error)
}
