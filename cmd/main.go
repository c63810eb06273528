// tendersync mirrors open tender notices of the PGE procurement portal onto
// a Trello board, one card per notice, filed under the issuing branch.
//
//	tendersync          one sync run, then exit
//	tendersync serve    scheduled runs with /health and /metrics
//	tendersync version
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"tenderwatch/sync-service/internal/board"
	"tenderwatch/sync-service/internal/browser"
	"tenderwatch/sync-service/internal/config"
	"tenderwatch/sync-service/internal/db"
	"tenderwatch/sync-service/internal/scheduler"
	"tenderwatch/sync-service/internal/scraper"
	"tenderwatch/sync-service/internal/tender"
)

const (
	version = "1.0.0"
	appName = "tendersync"

	// lockTTL bounds how long a crashed run can hold the run lock.
	lockTTL = 30 * time.Minute
)

type flags struct {
	debug    bool
	headless bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Sync open PGE tender notices to a Trello board",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runOnce(ctx, cmd, f)
		},
	}

	cmd.PersistentFlags().BoolVar(&f.debug, "debug", false, "Verbose probe tracing (overrides DEBUG)")
	cmd.PersistentFlags().BoolVar(&f.headless, "headless", true, "Run Chromium headless (overrides HEADLESS)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run syncs on a schedule and expose /health and /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, f)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, version)
		},
	})

	return cmd
}

// setup loads the configuration, applies flag overrides and installs the
// default logger.
func setup(cmd *cobra.Command, f flags) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = f.debug
	}
	if cmd.Flags().Changed("headless") {
		cfg.Headless = f.headless
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newWorker wires discovery, normalization and board reconciliation. The
// returned cleanup closes the optional Redis client.
func newWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*scraper.Worker, func(), error) {
	listURL := scraper.ListURL(cfg.PortalBaseURL, cfg.PortalOrg)

	engine := scraper.NewEngine(
		browser.Launcher(browser.Options{Bin: cfg.ChromeBin, Headless: cfg.Headless}),
		scraper.Options{
			BaseURL:        cfg.PortalBaseURL,
			ListURL:        listURL,
			SettleTimeout:  cfg.SettleTimeout,
			CaptureTimeout: cfg.CaptureTimeout,
			ProbeTimeout:   cfg.ProbeTimeout,
			Candidates:     scraper.Candidates(cfg.PortalOrg),
		},
		logger,
	)

	client := board.NewClient(cfg.TrelloAPIURL, cfg.TrelloKey, cfg.TrelloToken, cfg.BoardID)
	reconciler := board.NewReconciler(client, cfg.Lists(), cfg.CardDelay, logger)
	worker := scraper.NewWorker(engine, tender.NewBuilder(cfg.PortalBaseURL, listURL), reconciler, logger)

	cleanup := func() {}
	if cfg.RedisURL != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		logger.Info("redis connected, run lock and events enabled")
		reconciler.WithNotifier(db.NewEventPublisher(rdb))
		worker.WithLock(db.NewRunLock(rdb, db.LockKey(cfg.BoardID), lockTTL))
		cleanup = func() { closeRedis(rdb, logger) }
	}
	return worker, cleanup, nil
}

func closeRedis(rdb *redis.Client, logger *slog.Logger) {
	if err := rdb.Close(); err != nil {
		logger.Warn("redis close failed", "err", err)
	}
}

func runOnce(ctx context.Context, cmd *cobra.Command, f flags) error {
	cfg, logger, err := setup(cmd, f)
	if err != nil {
		return err
	}

	worker, cleanup, err := newWorker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := worker.Run(ctx)
	if err != nil {
		logger.Error("sync run failed", "run", summary.RunID, "err", err)
		return err
	}
	return nil
}

func serve(cmd *cobra.Command, f flags) error {
	cfg, logger, err := setup(cmd, f)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker, cleanup, err := newWorker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	sched := scheduler.New(worker, cfg.SyncIntervalHours, logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "version", version, "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		cancel()
		sched.Stop()
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down")
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "err", err)
	}
	logger.Info("stopped")
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": appName,
		"version": version,
	})
}
