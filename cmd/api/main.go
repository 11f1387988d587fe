package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/haoyusec/threatlens/internal/adapter/controller/http/handlers"
	"github.com/haoyusec/threatlens/internal/adapter/controller/http/middleware"
	"github.com/haoyusec/threatlens/internal/adapter/external/providers"
	"github.com/haoyusec/threatlens/internal/adapter/repository/clickhouse"
	"github.com/haoyusec/threatlens/internal/config"
	"github.com/haoyusec/threatlens/internal/domain/freshness"
	"github.com/haoyusec/threatlens/internal/usecase/intelquery"
	"github.com/haoyusec/threatlens/internal/usecase/refresh"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("Starting ThreatLens API",
		"env", cfg.App.Env,
		"port", cfg.App.Port,
	)

	// Storage
	conn, err := clickhouse.NewConnection(&cfg.ClickHouse, logger)
	if err != nil {
		logger.Error("Failed to connect to ClickHouse", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	intelRepo := clickhouse.NewIntelRepository(conn)
	auditRepo := clickhouse.NewBlockAuditRepository(conn)

	// Providers
	provs := []providers.Provider{
		providers.NewVirusTotalClient(providers.VirusTotalConfig{
			APIKey:         cfg.Intel.VirusTotalKey,
			Timeout:        cfg.Intel.ProviderTimeout,
			RateLimitDelay: cfg.Intel.RateLimitDelay,
		}),
		providers.NewOTXClient(providers.OTXConfig{
			APIKey:         cfg.Intel.AlienVaultKey,
			Timeout:        cfg.Intel.ProviderTimeout,
			RateLimitDelay: cfg.Intel.RateLimitDelay,
		}),
	}

	checker := freshness.NewChecker(cfg.Intel.CacheWindow)
	queryService := intelquery.NewService(intelRepo, provs, checker, logger, intelquery.Options{
		ProviderTimeout: cfg.Intel.ProviderTimeout,
		RequestTimeout:  cfg.Intel.RequestTimeout,
	})

	// Background stale-record refresh
	var scheduler *refresh.Scheduler
	if cfg.Refresh.Enabled {
		refreshService := refresh.NewService(intelRepo, queryService, checker, cfg.Refresh.BatchSize, logger)
		scheduler = refresh.NewScheduler(refreshService, cfg.Refresh.Interval, logger)
		scheduler.Start()
	}

	queryHandler := handlers.NewQueryHandler(queryService)
	blockLogHandler := handlers.NewBlockLogHandler(auditRepo)

	// Router
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(httprate.LimitByIP(100, time.Minute))

	r.Get("/health", handlers.HealthCheck(cfg, conn))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", queryHandler.Query)

		r.Route("/blocklog", func(r chi.Router) {
			r.Get("/", blockLogHandler.List)
			r.Post("/", blockLogHandler.Record)
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}
