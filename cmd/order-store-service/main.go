package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/medrex/supply/internal/store"
	"github.com/medrex/supply/pkg/config"
	"github.com/medrex/supply/pkg/database"
	"github.com/medrex/supply/pkg/logger"
	"github.com/medrex/supply/pkg/monitoring"
)

const (
	serviceName    = "order-store-service"
	serviceVersion = "1.0.0"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)
	ctx := context.Background()

	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.CreateSchema(ctx); err != nil {
		logger.Fatalf("Failed to create schema: %v", err)
	}

	metrics := monitoring.NewMetricsCollector(serviceName)

	var tracing *monitoring.TracingManager
	if cfg.Monitoring.Tracing {
		tracing, err = monitoring.NewTracingManager(&monitoring.TracingConfig{
			ServiceName:    serviceName,
			ServiceVersion: serviceVersion,
			Environment:    os.Getenv("ENVIRONMENT"),
			SamplingRate:   cfg.Monitoring.SamplingRate,
		})
		if err != nil {
			logger.Fatalf("Failed to initialize tracing: %v", err)
		}
	}
	mm := monitoring.NewMonitoringMiddleware(metrics, tracing, logger)

	gate, err := store.NewAdminGate(cfg.Admin.AllowedCIDRs, logger)
	if err != nil {
		logger.Fatalf("Failed to configure admin gate: %v", err)
	}
	if cfg.Admin.TokenSecret != "" {
		gate.WithTokens(store.NewAdminTokens(cfg.Admin.TokenSecret))
	}

	svc := store.NewService(store.NewRepository(db, logger, mm), logger)

	router := mux.NewRouter()
	router.Use(mm.HTTPMiddleware)
	svc.RegisterRoutes(router, gate)

	health := monitoring.NewHealthManager(serviceName, serviceVersion)
	health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))
	router.HandleFunc("/healthz", health.HTTPHandler()).Methods(http.MethodGet)
	if cfg.Monitoring.Enabled {
		router.Handle(cfg.Monitoring.MetricsPath, metrics.Handler()).Methods(http.MethodGet)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.StorePort),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start service in a goroutine
	go func() {
		logger.Infof("Starting Order Store Service on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start Order Store Service: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Order Store Service...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	if tracing != nil {
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Error flushing traces: %v", err)
		}
	}
	logger.Info("Order Store Service stopped")
}
