// Package refresh re-queries cached threat records that have outlived the
// freshness window. It reuses the same orchestration path as interactive
// queries; the core never distinguishes scheduled from interactive callers.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/haoyusec/threatlens/internal/domain/freshness"
	"github.com/haoyusec/threatlens/internal/entity"
)

// StaleLister enumerates records due for a refresh
type StaleLister interface {
	ListStale(ctx context.Context, queryType entity.QueryType, before time.Time, limit int) ([]entity.ThreatRecord, error)
}

// QueryRunner is the orchestrator surface the refresher drives
type QueryRunner interface {
	Query(ctx context.Context, value string, queryType entity.QueryType) (*entity.QueryResponse, error)
}

// Service walks stale records and pushes them back through the query path
type Service struct {
	repo      StaleLister
	runner    QueryRunner
	checker   *freshness.Checker
	batchSize int
	logger    *slog.Logger
}

// NewService creates a new refresh service
func NewService(repo StaleLister, runner QueryRunner, checker *freshness.Checker, batchSize int, logger *slog.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 50
	}
	if checker == nil {
		checker = freshness.NewChecker(0)
	}

	return &Service{
		repo:      repo,
		runner:    runner,
		checker:   checker,
		batchSize: batchSize,
		logger:    logger,
	}
}

// RunOnce refreshes up to one batch per query type and returns the number
// of records re-queried. Individual failures are logged and skipped; the
// sweep continues.
func (s *Service) RunOnce(ctx context.Context) int {
	refreshed := 0
	cutoff := s.checker.StaleBefore(time.Now())

	for _, queryType := range []entity.QueryType{entity.QueryTypeIP, entity.QueryTypeURL, entity.QueryTypeFile} {
		stale, err := s.repo.ListStale(ctx, queryType, cutoff, s.batchSize)
		if err != nil {
			s.logger.Error("Failed to list stale records", "type", queryType, "error", err)
			continue
		}

		for _, record := range stale {
			if ctx.Err() != nil {
				return refreshed
			}

			if _, err := s.runner.Query(ctx, record.ID, record.Type); err != nil {
				s.logger.Warn("Stale refresh query failed",
					"type", record.Type, "id", record.ID, "error", err)
				continue
			}
			refreshed++
		}
	}

	if refreshed > 0 {
		s.logger.Info("Refreshed stale records", "count", refreshed)
	}
	return refreshed
}

// Scheduler runs RunOnce on a fixed interval until stopped
type Scheduler struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a new refresh scheduler
func NewScheduler(service *Service, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	return &Scheduler{
		service:  service,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background refresh loop
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("Refresh scheduler started", "interval", s.interval)

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.interval)
				s.service.RunOnce(ctx)
				cancel()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop halts the refresh loop and waits for an in-flight sweep to finish
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Refresh scheduler stopped")
}
