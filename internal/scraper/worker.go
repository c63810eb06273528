package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"tenderwatch/sync-service/internal/board"
	"tenderwatch/sync-service/internal/metrics"
	"tenderwatch/sync-service/internal/model"
	"tenderwatch/sync-service/internal/tender"
)

// Discoverer finds the raw notice listing.
type Discoverer interface {
	Discover(ctx context.Context) (Result, error)
}

// Syncer mirrors eligible tenders onto the board.
type Syncer interface {
	Sync(ctx context.Context, tenders []model.Tender) (board.Report, error)
}

// Locker guards against overlapping runs. Acquire reports ok=false when
// another run holds the lock.
type Locker interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// Worker runs the full sync cycle: discover the listing, dedupe and filter
// it, and create the missing board cards.
type Worker struct {
	discoverer Discoverer
	builder    *tender.Builder
	syncer     Syncer
	lock       Locker
	log        *slog.Logger
}

// NewWorker constructs a Worker.
func NewWorker(d Discoverer, b *tender.Builder, s Syncer, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{discoverer: d, builder: b, syncer: s, log: logger}
}

// WithLock makes the worker skip a run while another one holds the lock.
func (w *Worker) WithLock(l Locker) *Worker {
	w.lock = l
	return w
}

// Run executes one sync cycle. Finding no listing, or no eligible tender, is
// a normal outcome and returns a nil error.
func (w *Worker) Run(ctx context.Context) (model.RunSummary, error) {
	summary := model.RunSummary{RunID: uuid.NewString()}
	log := w.log.With("run", summary.RunID)
	log.Info("sync run started")

	if w.lock != nil {
		release, ok, err := w.lock.Acquire(ctx)
		switch {
		case err != nil:
			log.Warn("run lock unavailable, continuing without it", "err", err)
		case !ok:
			log.Info("another run holds the lock, skipping")
			summary.Skipped = true
			metrics.ObserveRun(metrics.RunSkipped, 0)
			return summary, nil
		default:
			defer release()
		}
	}

	result, err := w.discoverer.Discover(ctx)
	if err != nil {
		metrics.ObserveRun(metrics.RunFailed, 0)
		return summary, fmt.Errorf("discover: %w", err)
	}
	summary.Strategy = string(result.Strategy)
	summary.Raw = len(result.Records)

	if !result.Found() {
		log.Info("no listing captured", "probes", result.Probes, "trail", result.Trail)
		metrics.ObserveRun(metrics.RunNoListing, 0)
		return summary, nil
	}

	tenders, stats := w.builder.Prepare(result.Records)
	summary.Unique = stats.Unique
	summary.Eligible = stats.Eligible
	log.Info("listing captured",
		"strategy", result.Strategy, "source", result.Source,
		"raw", stats.Raw, "unique", stats.Unique, "eligible", stats.Eligible)

	if len(tenders) == 0 {
		log.Info("listing captured but no eligible records")
		metrics.ObserveRun(metrics.RunNoEligible, 0)
		return summary, nil
	}

	report, err := w.syncer.Sync(ctx, tenders)
	summary.Existing = report.Existing
	summary.Fresh = report.Fresh
	summary.Created = report.Created
	summary.Failed = report.Failed
	if err != nil {
		metrics.ObserveRun(metrics.RunFailed, summary.Created)
		return summary, fmt.Errorf("sync board: %w", err)
	}

	log.Info("cards created", "created", summary.Created, "failed", summary.Failed, "fresh", summary.Fresh)
	metrics.ObserveRun(metrics.RunSynced, summary.Created)
	return summary, nil
}
