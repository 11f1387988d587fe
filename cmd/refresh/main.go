// Command refresh runs one stale-record refresh sweep and exits. Intended
// for cron or a container scheduler; the long-running API binary carries
// its own interval scheduler.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

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

	conn, err := clickhouse.NewConnection(&cfg.ClickHouse, logger)
	if err != nil {
		logger.Error("Failed to connect to ClickHouse", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	intelRepo := clickhouse.NewIntelRepository(conn)

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

	service := refresh.NewService(intelRepo, queryService, checker, cfg.Refresh.BatchSize, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	count := service.RunOnce(ctx)
	logger.Info("Refresh sweep complete", "refreshed", count)
}
