package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatherly/intake/internal/ingest"
	"github.com/gatherly/intake/internal/media"
	"github.com/gatherly/intake/internal/platform/auditlog"
	"github.com/gatherly/intake/internal/platform/httpserver"
	platformstore "github.com/gatherly/intake/internal/platform/objectstore"
	"github.com/gatherly/intake/internal/platform/postgres"
	"github.com/gatherly/intake/internal/routing"
	"github.com/gatherly/intake/internal/rules"
	"github.com/gatherly/intake/internal/storage/objectstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "intake"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	engine, err := loadEngine(cfg.RulesPath)
	if err != nil {
		logger.Error("invalid rule specs", "path", cfg.RulesPath, "error", err)
		os.Exit(2)
	}

	storeCfg, err := platformstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	store, err := objectstore.NewMinioStore(storeCfg)
	if err != nil {
		logger.Error("object store init failed", "error", err)
		os.Exit(2)
	}
	if err := platformstore.EnsureBucket(ctx, store.Client(), storeCfg); err != nil {
		logger.Error("object store unavailable", "bucket", storeCfg.Bucket, "error", err)
		os.Exit(1)
	}

	classifier, err := media.NewClassifier(cfg.MaxAttachmentBytes)
	if err != nil {
		logger.Error("invalid classifier config", "error", err)
		os.Exit(2)
	}
	router, err := routing.NewRouter(storeCfg.Bucket)
	if err != nil {
		logger.Error("invalid storage namespace", "error", err)
		os.Exit(2)
	}
	pipeline, err := ingest.NewPipeline(engine, classifier, router)
	if err != nil {
		logger.Error("pipeline init failed", "error", err)
		os.Exit(2)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := newIntakeMetrics(registry)
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		os.Exit(2)
	}

	readiness := []httpserver.ReadinessCheck{
		{
			Name: "object_store",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return platformstore.CheckBucket(checkCtx, store.Client(), storeCfg)
			},
		},
	}

	api := newIntakeAPI(logger, pipeline, engine, store, metrics, cfg)

	if cfg.AuditEnabled {
		db, err := openAuditDB(ctx)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		api.audit = func(ctx context.Context, event auditlog.IntakeEvent) error {
			_, err := auditlog.InsertIntakeOutcome(ctx, db, serviceName, event)
			return err
		}
		readiness = append(readiness, httpserver.ReadinessCheck{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return db.PingContext(checkCtx)
			},
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks(serviceName, readiness...))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	api.register(mux)

	logger.Info("intake configured",
		"rule_specs", engine.Names(),
		"bucket", storeCfg.Bucket,
		"max_attachment_bytes", cfg.MaxAttachmentBytes,
		"audit", cfg.AuditEnabled,
	)

	serverCfg := httpserver.Config{
		Service:         serviceName,
		Addr:            cfg.Addr,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, serverCfg, httpserver.Wrap(logger, serviceName, mux)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// loadEngine registers the built-in rule specs, then any specs from path, which
// replace built-ins of the same name.
func loadEngine(path string) (*rules.Engine, error) {
	predicates := rules.DefaultPredicates()
	specs := rules.DefaultSpecs()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rules: %w", err)
		}
		extra, err := rules.ParseDocument(raw, predicates)
		if err != nil {
			return nil, err
		}
		specs = append(specs, extra...)
	}
	return rules.NewEngine(specs, predicates)
}

func openAuditDB(ctx context.Context) (*sql.DB, error) {
	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	if err := auditlog.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
