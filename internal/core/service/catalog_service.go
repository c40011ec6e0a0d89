package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"menu360/internal/core/domain"
	"menu360/internal/ports/inbound"
	"menu360/internal/ports/outbound"

	"github.com/sirupsen/logrus"
)

// FixtureSource synthesizes demo records for a key.
type FixtureSource interface {
	Generate(key domain.QueryKey) []domain.Record
}

// Recorder receives service counters. A nil Recorder is allowed.
type Recorder interface {
	FixtureFallback(kind, reason string)
}

// CatalogService reads tenant lists through the query cache and falls back to
// demo data when the backend has nothing to show.
type CatalogService struct {
	repo     outbound.Repository
	cache    outbound.QueryCache
	fixtures FixtureSource
	rec      Recorder
	log      *logrus.Entry

	mu      sync.RWMutex
	sources map[domain.QueryKey]domain.DataSource
}

// NewCatalogService wires the service. A nil fixtures source disables the fallback.
func NewCatalogService(repo outbound.Repository, cache outbound.QueryCache, fixtures FixtureSource, rec Recorder, log *logrus.Entry) *CatalogService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CatalogService{
		repo:     repo,
		cache:    cache,
		fixtures: fixtures,
		rec:      rec,
		log:      log,
		sources:  make(map[domain.QueryKey]domain.DataSource),
	}
}

// Query returns the list for key and where it came from. A failed refetch
// keeps serving the previous value. Without a previous value, empty or failing
// fetches are answered with fixtures when enabled.
func (s *CatalogService) Query(ctx context.Context, key domain.QueryKey) ([]domain.Record, domain.DataSource, error) {
	records, err := s.cache.Fetch(ctx, key, func(ctx context.Context) ([]domain.Record, error) {
		recs, err := s.repo.List(ctx, key)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 && s.fixtures != nil {
			s.log.WithField("key", key.String()).Warn("[catalog] empty result, serving demo data")
			s.recordFallback(key, "empty")
			s.setSource(key, domain.SourceFixture)
			return s.fixtures.Generate(key), nil
		}
		s.setSource(key, domain.SourceLive)
		return recs, nil
	})
	if err == nil {
		return records, s.Source(key), nil
	}
	if errors.Is(err, context.Canceled) {
		return nil, "", err
	}

	if cached, ok := s.cache.Get(ctx, key); ok {
		s.log.WithError(err).WithField("key", key.String()).Warn("[catalog] refetch failed, serving cached list")
		return cached, s.Source(key), nil
	}

	if s.fixtures == nil {
		return nil, "", fmt.Errorf("query %s: %w", key, err)
	}

	s.log.WithError(err).WithField("key", key.String()).Warn("[catalog] fetch failed, serving demo data")
	s.recordFallback(key, "error")
	fixtures := s.fixtures.Generate(key)
	s.setSource(key, domain.SourceFixture)
	s.cache.Set(ctx, key, fixtures)
	return fixtures, domain.SourceFixture, nil
}

// Source reports how the cached list for key was obtained.
func (s *CatalogService) Source(key domain.QueryKey) domain.DataSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if src, ok := s.sources[key]; ok {
		return src
	}
	return domain.SourceLive
}

func (s *CatalogService) setSource(key domain.QueryKey, src domain.DataSource) {
	s.mu.Lock()
	s.sources[key] = src
	s.mu.Unlock()
}

func (s *CatalogService) recordFallback(key domain.QueryKey, reason string) {
	if s.rec != nil {
		s.rec.FixtureFallback(string(key.Kind), reason)
	}
}

// warmKinds are loaded for every restaurant at start-up.
var warmKinds = []domain.Kind{
	domain.KindRestaurants,
	domain.KindCategories,
	domain.KindMenuItems,
	domain.KindOrders,
}

func (s *CatalogService) WarmCache(ctx context.Context, restaurantIDs []string) (int, error) {
	n := 0
	var errs []error
	for _, rid := range restaurantIDs {
		for _, kind := range warmKinds {
			recs, _, err := s.Query(ctx, domain.NewQueryKey(kind, rid))
			if err != nil {
				errs = append(errs, err)
				continue
			}
			n += len(recs)
		}
	}
	return n, errors.Join(errs...)
}

// Refresh refetches every stale key and returns how many were refreshed.
func (s *CatalogService) Refresh(ctx context.Context) (int, error) {
	n := 0
	var errs []error
	for _, key := range s.cache.StaleKeys(ctx) {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, _, err := s.Query(ctx, key); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (s *CatalogService) Invalidate(ctx context.Context, key domain.QueryKey) {
	s.cache.Invalidate(ctx, key)
}

func (s *CatalogService) InvalidateAll(ctx context.Context) {
	s.cache.Clear(ctx)
	s.mu.Lock()
	s.sources = make(map[domain.QueryKey]domain.DataSource)
	s.mu.Unlock()
}

func (s *CatalogService) FindMenuItem(ctx context.Context, restaurantID, itemID string) (domain.MenuItem, error) {
	recs, _, err := s.Query(ctx, domain.NewQueryKey(domain.KindMenuItems, restaurantID))
	if err != nil {
		return domain.MenuItem{}, err
	}
	if i := domain.IndexOf(recs, itemID); i >= 0 {
		if m, ok := recs[i].(domain.MenuItem); ok {
			return m, nil
		}
	}
	return domain.MenuItem{}, fmt.Errorf("menu item %s: %w", itemID, domain.ErrNotFound)
}

func (s *CatalogService) Version(ctx context.Context, key domain.QueryKey) uint64 {
	return s.cache.Version(ctx, key)
}

var _ inbound.CatalogUseCase = (*CatalogService)(nil)
