package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"statpay/internal/domain/audit"
	"statpay/internal/domain/payroll"
	"statpay/internal/export"
	"statpay/internal/platform/cache"
	"statpay/internal/platform/config"
	cryptoutil "statpay/internal/platform/crypto"
	"statpay/internal/platform/db"
	"statpay/internal/platform/fiscal"
	"statpay/internal/platform/jobs"
	"statpay/internal/platform/logger"
	"statpay/internal/platform/metrics"
	audithandler "statpay/internal/transport/http/handlers/audit"
	jobshandler "statpay/internal/transport/http/handlers/jobs"
	payrollhandler "statpay/internal/transport/http/handlers/payroll"
	"statpay/internal/transport/http/middleware"
)

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Router  http.Handler
	Logger  *zap.Logger
	Fiscal  *fiscal.Source
	Jobs    *jobs.Service
	Payroll *payroll.Service

	cancel context.CancelFunc
}

// New wires every dependency. Background work (fiscal file watching and the
// refresh schedule) stops when Close is called.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Config{ServiceName: "statpay", Environment: cfg.Environment, Level: cfg.LogLevel})
	if err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir, log); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	rdb, err := cache.Connect(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if rdb == nil {
		log.Info("REDIS_ADDR not set, payslip snapshot cache disabled")
	}

	master, err := cryptoutil.New(cfg.DataEncryptionKey)
	if err != nil {
		pool.Close()
		return nil, err
	}
	snapshotSealer, err := master.ForPurpose(cryptoutil.PurposePayslipSnapshot)
	if err != nil {
		pool.Close()
		return nil, err
	}
	exportSealer, err := master.ForPurpose(cryptoutil.PurposeDeclarationExport)
	if err != nil {
		pool.Close()
		return nil, err
	}

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.New()
	}

	source, err := fiscal.NewSource(cfg.FiscalConfigPath, log, collector)
	if err != nil {
		pool.Close()
		return nil, err
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	source.Watch()
	jobService := jobs.New(pool, log)
	jobService.Start(bgCtx)
	refreshFiscal := func(ctx context.Context) (any, error) {
		params, err := source.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"version": params.Version}, nil
	}
	jobService.Schedule(bgCtx, jobs.JobFiscalRefresh, cfg.FiscalRefreshInterval, refreshFiscal)

	auditService := audit.New(pool)
	service := payroll.NewService(payroll.ServiceDeps{
		Store:     payroll.NewStore(pool, snapshotSealer),
		Auditor:   auditService,
		Cache:     payroll.NewSnapshotCache(rdb, cfg.SnapshotTTL, log.Named("snapshot_cache")),
		Params:    source,
		Renderer:  export.Renderer{},
		Sealer:    exportSealer,
		ExportDir: cfg.ExportDir,
		Logger:    log,
		Metrics:   collector,
	})

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log.Named("http"), collector))
	router.Use(middleware.Recoverer(log))
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				http.Error(w, "cache not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if collector != nil {
		router.Handle("/metrics", collector.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute, middleware.WithLogger(log.Named("ratelimit"))))

		payrollHandler := payrollhandler.NewHandler(service, log)
		payrollHandler.RegisterRoutes(r)

		auditHandler := audithandler.NewHandler(auditService, log)
		auditHandler.RegisterRoutes(r)

		jobsHandler := jobshandler.NewHandler(jobService, refreshFiscal, log)
		jobsHandler.RegisterRoutes(r)
	})

	return &App{
		Config:  cfg,
		DB:      pool,
		Redis:   rdb,
		Router:  router,
		Logger:  log,
		Fiscal:  source,
		Jobs:    jobService,
		Payroll: service,
		cancel:  cancel,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

// Run starts the HTTP server and blocks until SIGINT or SIGTERM.
func Run() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "statpay: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.Logger.Info("statpay server listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("server failed", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("graceful shutdown failed", zap.Error(err))
	}
	app.Logger.Info("statpay server stopped")
}
