// Package intelquery drives a single threat-intelligence query across all
// configured providers: cache lookup, freshness check, provider fan-out,
// normalization and write-back.
package intelquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haoyusec/threatlens/internal/adapter/external/providers"
	"github.com/haoyusec/threatlens/internal/adapter/repository/clickhouse"
	"github.com/haoyusec/threatlens/internal/domain/freshness"
	"github.com/haoyusec/threatlens/internal/domain/querykey"
	"github.com/haoyusec/threatlens/internal/entity"
)

// Validation errors surfaced to the caller before any provider or storage
// access is attempted.
var (
	ErrEmptyQuery      = errors.New("query value must not be empty")
	ErrUnsupportedType = errors.New("unsupported query type")
)

// IntelRepository is the Cache Store contract the orchestrator depends on
type IntelRepository interface {
	Lookup(ctx context.Context, queryType entity.QueryType, id, source string) (*entity.ThreatRecord, error)
	Upsert(ctx context.Context, record *entity.ThreatRecord) error
}

// Options tune per-request orchestration deadlines
type Options struct {
	// ProviderTimeout bounds each upstream call. Default 10s.
	ProviderTimeout time.Duration
	// RequestTimeout bounds the whole fan-out; providers still pending at
	// the deadline report a timeout error in their slot. Default 30s.
	RequestTimeout time.Duration
	// WriteTimeout bounds the detached write-back after a provider
	// response. Default 10s.
	WriteTimeout time.Duration
}

// Service orchestrates queries across the configured providers
type Service struct {
	repo      IntelRepository
	providers []providers.Provider
	checker   *freshness.Checker
	logger    *slog.Logger
	opts      Options
}

// NewService creates a new query orchestrator. The provider list is fixed at
// construction; test doubles slot in through the providers.Provider
// interface.
func NewService(repo IntelRepository, provs []providers.Provider, checker *freshness.Checker, logger *slog.Logger, opts Options) *Service {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 10 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if checker == nil {
		checker = freshness.NewChecker(0)
	}

	return &Service{
		repo:      repo,
		providers: provs,
		checker:   checker,
		logger:    logger,
		opts:      opts,
	}
}

// Query runs one value against every configured provider. queryType may be
// empty, in which case it is auto-detected. Per-provider failures land in
// that provider's result slot and never abort the request; only validation
// failures return an error.
func (s *Service) Query(ctx context.Context, value string, queryType entity.QueryType) (*entity.QueryResponse, error) {
	if value == "" {
		return nil, ErrEmptyQuery
	}

	if queryType == "" {
		detected, err := querykey.Detect(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
		}
		queryType = detected
		s.logger.Debug("Auto-detected query type", "value", value, "type", queryType)
	}
	if !queryType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, queryType)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	results := make(map[string]entity.ProviderResult, len(s.providers))

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, provider := range s.providers {
		wg.Add(1)
		go func(p providers.Provider) {
			defer wg.Done()

			result := s.queryProvider(ctx, p, queryType, value)

			mu.Lock()
			results[p.Name()] = result
			mu.Unlock()
		}(provider)
	}

	wg.Wait()

	return &entity.QueryResponse{
		Type:    queryType,
		Value:   value,
		Results: results,
		Status:  "success",
	}, nil
}

// queryProvider runs the cache-or-refetch state machine for one provider
func (s *Service) queryProvider(ctx context.Context, p providers.Provider, queryType entity.QueryType, value string) entity.ProviderResult {
	source := p.Name()

	cached, err := s.repo.Lookup(ctx, queryType, value, source)
	if err == nil && s.checker.Fresh(cached.LastUpdate, time.Now()) {
		s.logger.Debug("Serving cached record", "provider", source, "type", queryType, "id", value)
		return entity.ProviderResult{Record: cached, FromCache: true}
	}
	if err != nil && !errors.Is(err, clickhouse.ErrNotFound) {
		// A failed cache read degrades to a provider refetch; staleness is
		// always safe to fall through.
		s.logger.Warn("Cache lookup failed, falling through to provider",
			"provider", source, "type", queryType, "id", value, "error", err)
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()

	raw, err := providers.Query(pctx, p, queryType, value)
	if err != nil {
		s.logger.Warn("Provider query failed",
			"provider", source, "type", queryType, "id", value, "error", err)
		return entity.ProviderResult{Error: err.Error()}
	}

	record := s.buildRecord(p, raw, queryType, value)

	// Write-back runs on a detached context: a client disconnect must not
	// discard a fetch that already completed.
	sctx, scancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
	defer scancel()

	if err := s.repo.Upsert(sctx, record); err != nil {
		s.logger.Error("Failed to save provider result",
			"provider", source, "type", queryType, "id", value, "error", err)
		return entity.ProviderResult{Error: "save failed"}
	}

	saved, err := s.repo.Lookup(sctx, queryType, value, source)
	if err != nil {
		// Write acked but read-back missed: a storage consistency bug,
		// surfaced loudly rather than papered over with the in-memory copy.
		s.logger.Error("Saved record not found on read-back",
			"provider", source, "type", queryType, "id", value, "error", err)
		return entity.ProviderResult{Error: "saved but not found"}
	}

	return entity.ProviderResult{Record: saved, FromCache: false}
}

// buildRecord assembles the storable record from a normalized provider
// response. For url queries the identity is the literal user-supplied query
// string, never the provider-echoed form.
func (s *Service) buildRecord(p providers.Provider, raw *providers.RawResponse, queryType entity.QueryType, value string) *entity.ThreatRecord {
	score := p.Normalize(raw)

	lastUpdate := p.LastUpdate(raw)
	if lastUpdate.IsZero() {
		lastUpdate = time.Now().UTC()
	}

	record := &entity.ThreatRecord{
		ID:              value,
		Type:            queryType,
		Source:          p.Name(),
		ReputationScore: int32(score),
		ThreatLevel:     entity.ThreatLevelFromScore(score),
		LastUpdate:      &lastUpdate,
		Details:         raw.JSON(),
	}
	if queryType == entity.QueryTypeURL {
		record.TargetURL = value
	}
	return record
}

// Providers returns the names of the configured providers
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	return names
}
