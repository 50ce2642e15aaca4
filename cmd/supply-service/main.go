package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/medrex/supply/internal/cache"
	"github.com/medrex/supply/internal/idgen"
	"github.com/medrex/supply/internal/orders"
	"github.com/medrex/supply/internal/reachability"
	"github.com/medrex/supply/internal/remote"
	"github.com/medrex/supply/pkg/config"
	"github.com/medrex/supply/pkg/logger"
	"github.com/medrex/supply/pkg/monitoring"
)

const (
	serviceName    = "supply-service"
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

	// Local durable cache
	medium, closer, err := cache.OpenMedium(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to open local cache: %v", err)
	}
	local := cache.New(medium, logger)

	// Remote store and the one startup probe
	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.RequestTimeout()).WithAdminToken(cfg.Remote.AdminToken)
	monitor := reachability.NewMonitor(client,
		reachability.WithProbeTimeout(cfg.Remote.ProbeTimeout()),
		reachability.WithLogger(logger),
		reachability.WithListener(func(t reachability.Transition) {
			metrics.RecordModeTransition(string(t.From), string(t.To), t.To == reachability.ModeOnline)
		}),
	)
	mode := monitor.Probe(ctx)
	logger.WithComponent("reachability").WithFields(map[string]interface{}{
		"remote": cfg.Remote.BaseURL,
		"mode":   mode,
	}).Info("Remote order store probed")

	svc := orders.NewService(client, local, monitor, idgen.New(),
		orders.WithLogger(logger),
		orders.WithMetrics(metrics),
		orders.WithListLimit(cfg.Cache.ListLimit),
	)

	router := mux.NewRouter()
	router.Use(monitoring.NewMonitoringMiddleware(metrics, tracing, logger).HTTPMiddleware)
	handler := orders.NewHandler(svc, logger)
	if cfg.Server.SubmitRatePerMinute > 0 {
		limiter := orders.NewRateLimiter(cfg.Server.SubmitRatePerMinute, cfg.Server.SubmitBurst)
		limiter.StartCleanup(ctx, 10*time.Minute)
		handler.WithRateLimit(limiter)
	}
	handler.RegisterRoutes(router)

	health := newHealthManager(cfg, monitor, local)
	router.HandleFunc(cfg.Monitoring.HealthPath, health.HTTPHandler()).Methods(http.MethodGet)
	if cfg.Monitoring.Enabled {
		router.Handle(cfg.Monitoring.MetricsPath, metrics.Handler()).Methods(http.MethodGet)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      orders.CORSMiddleware(cfg.Server.AllowedOrigins)(orders.SecurityHeadersMiddleware(router)),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start service in a goroutine
	go func() {
		logger.Infof("Starting Supply Service on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start Supply Service: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Supply Service...")
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
	if err := closer.Close(); err != nil {
		logger.Errorf("Error closing local cache: %v", err)
	}
	logger.Info("Supply Service stopped")
}

// newHealthManager reports the remote store as optional: while it is down
// the service keeps answering from the local cache.
func newHealthManager(cfg *config.Config, monitor *reachability.Monitor, local *cache.Cache) *monitoring.HealthManager {
	health := monitoring.NewHealthManager(serviceName, serviceVersion)
	health.RegisterOptional("remote_store", monitoring.CheckFunc(func(ctx context.Context) monitoring.HealthCheck {
		if monitor.Online() {
			return monitoring.HealthCheck{Status: monitoring.HealthStatusHealthy, Message: "Remote order store in use"}
		}
		return monitoring.HealthCheck{
			Status:  monitoring.HealthStatusDegraded,
			Message: "Serving from local cache",
			Details: map[string]interface{}{"reason": monitor.Reason()},
		}
	}))
	if cfg.Remote.BaseURL != "" {
		health.RegisterOptional("remote_store_http",
			monitoring.NewHTTPHealthChecker(strings.TrimRight(cfg.Remote.BaseURL, "/")+"/health", cfg.Remote.ProbeTimeout()))
	}
	health.RegisterChecker("local_cache", monitoring.CheckFunc(func(ctx context.Context) monitoring.HealthCheck {
		if n := local.Pending(); n > 0 {
			return monitoring.HealthCheck{
				Status:  monitoring.HealthStatusDegraded,
				Message: fmt.Sprintf("%d records held in memory only", n),
			}
		}
		return monitoring.HealthCheck{Status: monitoring.HealthStatusHealthy, Message: "Local cache writable"}
	}))
	return health
}
