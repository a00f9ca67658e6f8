package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"train-orchestrator/api/rest/routes"
	"train-orchestrator/config"
	"train-orchestrator/core/manager"
	"train-orchestrator/core/monitoring"
	"train-orchestrator/core/repository"
	"train-orchestrator/core/trainer"
	"train-orchestrator/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	setupLogging(cfg)

	ctx := context.Background()

	runStore, metricsSink, closeStores, err := buildStores(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to open run and metrics stores")
	}
	defer closeStores()

	artifacts, err := buildArtifactStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to open artifact store")
	}

	yolo := trainer.NewYOLOTrainer(cfg.PythonBin, "")

	mgr, err := manager.NewManager(ctx, manager.Options{
		GlobalLimit: cfg.GlobalLimit,
		TenantLimit: cfg.TenantLimit,
		Workers:     cfg.Workers,
		Device:      cfg.Device,
	}, yolo, yolo, runStore, metricsSink, artifacts)
	if err != nil {
		log.WithError(err).Fatal("Failed to start run manager")
	}
	defer mgr.Close()

	monitoring.ExposeRunMetrics(mgr)

	// Setup routes over the manager
	r := mux.NewRouter()
	routes.SetupRoutes(r, mgr)

	// Health check and Prometheus endpoints
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Start server
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		log.Infof("Starting server on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	if err := server.Shutdown(context.Background()); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	log.Info("Server exited")
}

func setupLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

// buildStores selects Postgres-backed or local-file persistence depending
// on whether a database URL is configured.
func buildStores(cfg *config.Config) (repository.RunStateStore, repository.MetricsSink, func(), error) {
	if cfg.UseDatabase() {
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		runStore, err := repository.NewPostgresRunStore(db)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		metricsSink, err := repository.NewPostgresMetricsSink(db)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		log.Info("Using Postgres run and metrics stores")
		return runStore, metricsSink, func() { db.Close() }, nil
	}

	runStore, err := repository.NewFileRunStore(cfg.RunStateFile())
	if err != nil {
		return nil, nil, nil, err
	}
	metricsSink, err := repository.NewFileMetricsSink(cfg.MetricsFile())
	if err != nil {
		return nil, nil, nil, err
	}
	log.Infof("Using local run and metrics stores under %s", cfg.DataDir)
	return runStore, metricsSink, func() {}, nil
}

func buildArtifactStore(ctx context.Context, cfg *config.Config) (storage.ArtifactStore, error) {
	if cfg.ArtifactBackend == config.BackendS3 {
		log.Infof("Using S3 artifact store, bucket %s", cfg.S3Bucket)
		return storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region)
	}
	log.Infof("Using local artifact store at %s", cfg.ArtifactRoot)
	return storage.NewLocalFSStore(cfg.ArtifactRoot)
}
