// Package scheduler wires up the cron job that periodically triggers a sync
// run in serve mode.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"tenderwatch/sync-service/internal/model"
)

// Runner executes one sync cycle.
type Runner interface {
	Run(ctx context.Context) (model.RunSummary, error)
}

// Scheduler wraps robfig/cron and manages the sync loop.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	spec   string // cron spec, e.g. "@every 6h"
	log    *slog.Logger
	wg     sync.WaitGroup
}

// New creates a Scheduler that fires every intervalHours hours. Ticks that
// arrive while a run is still in progress are skipped.
func New(runner Runner, intervalHours int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		runner: runner,
		spec:   fmt.Sprintf("@every %dh", intervalHours),
		log:    logger,
	}
}

// Spec returns the cron spec in use.
func (s *Scheduler) Spec() string { return s.spec }

// Start registers the job and starts the scheduler. It also runs one sync
// immediately so the board is updated without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runSync(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Info("cron started", "spec", s.spec)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSync(ctx)
	}()

	return nil
}

// Stop shuts down the scheduler and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.log.Info("cron stopped")
}

func (s *Scheduler) runSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	summary, err := s.runner.Run(ctx)
	if err != nil {
		s.log.Error("sync run failed", "run", summary.RunID, "err", err)
		return
	}
	s.log.Info("sync cycle complete",
		"run", summary.RunID, "strategy", summary.Strategy, "created", summary.Created)
}
