// Package app is the composition root: it reads configuration, connects to
// infrastructure, wires the enrollment core's components together, and
// starts the selected run mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/campusorch/enrollcore/internal/config"
	"github.com/campusorch/enrollcore/internal/httpserver"
	"github.com/campusorch/enrollcore/internal/platform"
	"github.com/campusorch/enrollcore/internal/telemetry"
	"github.com/campusorch/enrollcore/pkg/academic"
	"github.com/campusorch/enrollcore/pkg/audit"
	"github.com/campusorch/enrollcore/pkg/enrollment"
	"github.com/campusorch/enrollcore/pkg/eventstore"
	"github.com/campusorch/enrollcore/pkg/invariant"
	"github.com/campusorch/enrollcore/pkg/lockmgr"
	"github.com/campusorch/enrollcore/pkg/policy"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api or worker).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting enrollcore", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, pool, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, logger, pool)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func buildService(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) *enrollment.Service {
	academicStore := academic.NewPostgresStore(pool)
	events := eventstore.New(pool)
	policies := policy.DefaultEngine()
	locks := lockmgr.NewManager(rdb, 0)
	auditLog := audit.NewChain(audit.NewPostgresStore(pool))

	return enrollment.NewService(academicStore, events, policies, locks, auditLog, logger, enrollment.Config{
		MaxCreditsPerSemester: cfg.MaxCreditsPerSemester,
		DefaultWaitlistSize:   cfg.DefaultWaitlistSize,
		SnapshotEveryNEvents:  cfg.SnapshotEveryNEvents,
		LockDefaultTTL:        time.Duration(cfg.LockDefaultTTLSeconds) * time.Second,
		ConcurrencyRetryLimit: uint(cfg.ConcurrencyRetryLimit),
	})
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	svc := buildService(cfg, pool, rdb, logger)

	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger, pool, rdb, metricsReg)

	srv.Router.Get("/status", srv.HandleStatus)

	enrollmentHandler := enrollment.NewHandler(logger, svc)
	srv.APIRouter.Mount("/enrollments", enrollmentHandler.Routes())

	auditHandler := audit.NewHandler(logger, audit.NewPostgresStore(pool))
	srv.APIRouter.Mount("/audit", auditHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker runs the background integrity sweep: on every tick it verifies
// the audit chain's hash links and checks the global enrollment invariants
// across every section's roster, logging each violation at error severity.
// Violations indicate a design bug, not user error, so the worker reports
// rather than repairs.
func runWorker(ctx context.Context, logger *slog.Logger, pool *pgxpool.Pool) error {
	logger.Info("worker started")

	store := academic.NewPostgresStore(pool)
	monitor := invariant.NewMonitor()
	auditLog := audit.NewChain(audit.NewPostgresStore(pool))
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	runSweep := func() {
		if err := auditLog.Verify(ctx); err != nil {
			logger.Error("audit chain integrity check failed", "error", err)
		}

		rosters, err := store.ListSectionRosters(ctx)
		if err != nil {
			logger.Error("loading section rosters for invariant sweep", "error", err)
			return
		}
		sections := make([]invariant.Section, 0, len(rosters))
		for _, r := range rosters {
			sections = append(sections, invariant.Section{
				SectionID: r.Section.SectionID.String(),
				Schedule:  r.Section.Schedule,
				Capacity:  r.Section.MaxEnrollment,
				Roster:    r.Roster,
			})
		}
		for _, v := range monitor.VerifyAllEnrollments(sections) {
			logger.Error("enrollment invariant violated",
				"type", string(v.Type),
				"reason", v.Reason,
				"students", v.Students,
				"sections", v.Sections,
			)
		}
	}

	runSweep()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runSweep()
		}
	}
}
