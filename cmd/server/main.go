package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/curriculum-hub/curriculum-hub/internal/api/http"
	"github.com/curriculum-hub/curriculum-hub/internal/application/audit"
	"github.com/curriculum-hub/curriculum-hub/internal/application/bulk"
	"github.com/curriculum-hub/curriculum-hub/internal/application/registry"
	"github.com/curriculum-hub/curriculum-hub/internal/application/rolemap"
	"github.com/curriculum-hub/curriculum-hub/internal/application/transition"
	"github.com/curriculum-hub/curriculum-hub/internal/application/workflow"
	domainAudit "github.com/curriculum-hub/curriculum-hub/internal/domain/audit"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/content"
	domainWorkflow "github.com/curriculum-hub/curriculum-hub/internal/domain/workflow"
	"github.com/curriculum-hub/curriculum-hub/internal/config"
	"github.com/curriculum-hub/curriculum-hub/internal/infrastructure/auditfile"
	"github.com/curriculum-hub/curriculum-hub/internal/infrastructure/contentapi"
	"github.com/curriculum-hub/curriculum-hub/internal/infrastructure/memory"
	"github.com/curriculum-hub/curriculum-hub/internal/infrastructure/metrics"
	"github.com/curriculum-hub/curriculum-hub/internal/infrastructure/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(lvl)
	}

	ctx := context.Background()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db error: %v", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			log.Fatalf("migration error: %v", err)
		}
	}

	// content system
	var system content.System
	if cfg.ContentAPIURL != "" {
		client, err := contentapi.New(contentapi.Options{
			BaseURL: cfg.ContentAPIURL,
			Token:   cfg.ContentAPIToken,
			Timeout: cfg.ContentAPITimeout,
		}, logger)
		if err != nil {
			log.Fatalf("content api error: %v", err)
		}
		system = client
	} else {
		logger.Warn().Msg("CONTENT_API_URL not set, using in-memory content system")
		system = memory.NewContentSystem()
	}

	// repositories
	var auditRepo domainAudit.Repository
	switch cfg.AuditBackend {
	case config.AuditBackendPostgres:
		auditRepo = postgres.NewAuditRepository(pool)
	default:
		fileRepo, err := auditfile.New(auditfile.Options{
			Dir:        cfg.AuditDir,
			MaxSizeMB:  cfg.AuditMaxSizeMB,
			MaxBackups: cfg.AuditMaxBackups,
		}, logger)
		if err != nil {
			log.Fatalf("audit log error: %v", err)
		}
		defer fileRepo.Close()
		auditRepo = fileRepo
	}

	var templateRepo domainWorkflow.Repository
	if pool != nil {
		templateRepo = postgres.NewTemplateRepository(pool)
	}

	// metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		log.Fatalf("metrics error: %v", err)
	}

	// services
	auditSvc := audit.NewService(auditRepo, collector, logger)
	mapper := rolemap.NewMapper(logger)

	templates, err := registry.NewWithBuiltins(templateRepo, logger)
	if err != nil {
		log.Fatalf("template registry error: %v", err)
	}
	if templateRepo != nil {
		if _, err := templates.LoadRepository(ctx); err != nil {
			log.Fatalf("template load error: %v", err)
		}
	}
	if cfg.TemplateDir != "" {
		if _, err := templates.LoadDir(cfg.TemplateDir); err != nil {
			log.Fatalf("template dir error: %v", err)
		}
	}

	workflowSvc := workflow.NewService(system, mapper, auditSvc, logger)
	transitionSvc := transition.NewService(system, templates, mapper, auditSvc, logger)
	bulkSvc := bulk.NewService(workflowSvc, system, mapper, auditSvc, collector, bulk.Options{
		DefaultConcurrency: cfg.BulkDefaultConcurrency,
		MaxConcurrency:     cfg.BulkMaxConcurrency,
	}, logger)

	// API server
	apiServer := httpapi.NewServer(httpapi.Deps{
		Templates:      templates,
		Mapper:         mapper,
		Workflows:      workflowSvc,
		Transitions:    transitionSvc,
		Bulk:           bulkSvc,
		Audit:          auditSvc,
		Metrics:        collector,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		JWTSecret:      []byte(cfg.JWTSecret),
		AuthDisabled:   cfg.AuthDisabled,
		Logger:         logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// start server
	go func() {
		logger.Info().
			Str("addr", cfg.ServerAddr).
			Str("audit_backend", cfg.AuditBackend).
			Int("templates", len(templates.List())).
			Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
	logger.Info().Msg("http server stopped")
}
