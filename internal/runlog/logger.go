// Package runlog records the outcome of every unit of a run in a persistent ledger.
package runlog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shadayguerrero/sedatu/internal/od/service"
	"github.com/shadayguerrero/sedatu/internal/runlog/domain"
	runrepo "github.com/shadayguerrero/sedatu/internal/runlog/repository"
)

// recordTimeout bounds one ledger insert. Inserts outlive the run context so units finishing
// during shutdown are still recorded.
const recordTimeout = 5 * time.Second

// Logger persists unit results. It implements batch.Sink; Record is best-effort and failures
// are logged, never returned.
type Logger struct {
	repo runrepo.Repository
	log  *slog.Logger
	now  func() time.Time
}

// NewLogger returns a Logger writing to repo. log may be nil.
func NewLogger(repo runrepo.Repository, log *slog.Logger) *Logger {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Logger{repo: repo, log: log, now: time.Now}
}

// Record writes one ledger entry for r.
func (l *Logger) Record(ctx context.Context, r service.UnitResult) {
	if l == nil || l.repo == nil {
		return
	}
	e := EntryFromResult(r)
	e.ID = uuid.New().String()
	e.CreatedAt = l.now().UTC()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := l.repo.Create(ctx, e); err != nil {
		l.log.Error("runlog: failed to record unit", "run_id", r.RunID, "band", r.Band, "date", r.Date.Format(time.DateOnly), "err", err)
	}
}

// EntryFromResult maps r onto a ledger entry without ID and CreatedAt.
func EntryFromResult(r service.UnitResult) *domain.Entry {
	return &domain.Entry{
		RunID:        r.RunID,
		Unit:         r.Unit,
		Day:          r.Date,
		Band:         r.Band,
		Status:       string(r.Status),
		Path:         r.Path,
		Edges:        r.Edges,
		Transitions:  r.Transitions,
		TotalDevices: r.TotalDevices,
		DurationMS:   r.Duration.Milliseconds(),
		Warnings:     strings.Join(r.Warnings, "; "),
		Error:        r.Error(),
	}
}
