package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/meteo-lookup-service/internal/cache"
	"github.com/kjstillabower/meteo-lookup-service/internal/models"
	"github.com/kjstillabower/meteo-lookup-service/internal/observability"
)

// Lookup outcomes used for the lookupsTotal metric.
const (
	outcomeCached      = "cached"
	outcomeFetched     = "fetched"
	outcomeUnresolved  = "unresolved"
	outcomeUnavailable = "unavailable"
)

// StationResolver maps location text to a station. Implemented by resolver.Resolver.
type StationResolver interface {
	Resolve(ctx context.Context, text string) (models.Station, bool)
}

// WeatherFetcher returns current weather for a station. Implemented by client.Adapter.
type WeatherFetcher interface {
	Fetch(ctx context.Context, stationID, units string) (models.WeatherResult, bool)
}

// Options tunes a LookupService.
type Options struct {
	// Units is passed to the weather provider: "c" or "f".
	Units string
	// EntryTTL bounds how long a backend keeps an entry; 0 keeps it until
	// the eviction policy removes it.
	EntryTTL time.Duration
	// CoalesceTimeout enables request coalescing when positive.
	CoalesceTimeout time.Duration
}

// LookupService answers "what is the weather at this location" using a
// cache in front of the station resolver and the weather provider.
type LookupService struct {
	resolver  StationResolver
	fetcher   WeatherFetcher
	cache     cache.Cache
	policy    cache.EvictionPolicy
	units     string
	ttl       time.Duration
	coalescer *requestCoalescer // nil if disabled
	logger    *zap.Logger
	now       func() time.Time
}

// NewLookupService creates a LookupService with the provided dependencies.
func NewLookupService(resolver StationResolver, fetcher WeatherFetcher, c cache.Cache, policy cache.EvictionPolicy, opts Options, logger *zap.Logger) *LookupService {
	var coalescer *requestCoalescer
	if opts.CoalesceTimeout > 0 {
		coalescer = newRequestCoalescer(opts.CoalesceTimeout)
	}
	if opts.Units == "" {
		opts.Units = "c"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LookupService{
		resolver:  resolver,
		fetcher:   fetcher,
		cache:     c,
		policy:    policy,
		units:     opts.Units,
		ttl:       opts.EntryTTL,
		coalescer: coalescer,
		logger:    logger,
		now:       time.Now,
	}
}

// Lookup returns the weather for text. ok is false when the location cannot
// be resolved to a station in the target country or the provider has no
// answer; callers render that as "information unavailable".
func (s *LookupService) Lookup(ctx context.Context, text string) (models.WeatherResult, bool) {
	key := cacheKey(text)
	if key == "" {
		return models.WeatherResult{}, false
	}
	logger := observability.LoggerFromContext(ctx, s.logger)
	backend := s.cache.Name()

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("cache get failed", zap.String("location", key), zap.Error(err))
	} else if ok {
		switch action := s.policy.Evaluate(cached, s.now()); action {
		case cache.Keep:
			observability.CacheHitsTotal.WithLabelValues(backend).Inc()
			observability.LookupsTotal.WithLabelValues(outcomeCached).Inc()
			logger.Debug("cache hit", zap.String("location", key))
			return cached, true
		default:
			s.invalidate(ctx, key, action, cached)
		}
	}
	observability.CacheMissesTotal.WithLabelValues(backend).Inc()

	if s.coalescer == nil {
		return s.compute(ctx, key)
	}

	computeCtx := context.WithoutCancel(ctx)
	result, ok, shared, err := s.coalescer.GetOrDo(ctx, key, func() (models.WeatherResult, bool) {
		return s.compute(computeCtx, key)
	})
	if err != nil {
		logger.Warn("lookup wait abandoned", zap.String("location", key), zap.Error(err))
		return models.WeatherResult{}, false
	}
	if shared {
		observability.RequestCoalescingHitsTotal.Inc()
	}
	return result, ok
}

// compute resolves key to a station, fetches its weather and caches present
// results. Absent results are never cached.
func (s *LookupService) compute(ctx context.Context, key string) (models.WeatherResult, bool) {
	logger := observability.LoggerFromContext(ctx, s.logger)
	start := time.Now()

	station, ok := s.resolver.Resolve(ctx, key)
	if !ok {
		observability.LookupsTotal.WithLabelValues(outcomeUnresolved).Inc()
		logger.Debug("location unresolved", zap.String("location", key))
		return models.WeatherResult{}, false
	}

	result, ok := s.fetcher.Fetch(ctx, station.LocationID, s.units)
	if !ok {
		observability.LookupsTotal.WithLabelValues(outcomeUnavailable).Inc()
		return models.WeatherResult{}, false
	}

	// A fresh fetch can already be past the window; it is served but goes
	// through the same invalidation as a stale hit instead of being stored.
	if action := s.policy.Evaluate(result, s.now()); action != cache.Keep {
		s.invalidate(ctx, key, action, result)
	} else if err := s.cache.Set(ctx, key, result, s.ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		logger.Warn("cache set failed", zap.String("location", key), zap.Error(err))
	}
	observability.LookupsTotal.WithLabelValues(outcomeFetched).Inc()
	logger.Debug("weather served",
		zap.String("location", key),
		zap.String("station_id", station.LocationID),
		zap.Bool("cached", false),
		zap.Duration("duration", time.Since(start)))
	return result, true
}

// invalidate applies a FlushAll or EvictKey decision triggered by entry.
func (s *LookupService) invalidate(ctx context.Context, key string, action cache.Action, entry models.WeatherResult) {
	logger := observability.LoggerFromContext(ctx, s.logger)
	observability.CacheInvalidationsTotal.WithLabelValues(action.String()).Inc()
	switch action {
	case cache.FlushAll:
		logger.Info("stale entry, flushing cache",
			zap.String("location", key),
			zap.Time("observed_at", entry.Condition.ObservedAt))
		if err := s.cache.Flush(ctx); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("flush").Inc()
			logger.Warn("cache flush failed", zap.Error(err))
		}
	case cache.EvictKey:
		logger.Debug("stale entry, evicting", zap.String("location", key))
		if err := s.cache.Delete(ctx, key); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("delete").Inc()
			logger.Warn("cache delete failed", zap.String("location", key), zap.Error(err))
		}
	}
}

// cacheKey trims surrounding whitespace. Case is preserved so "Roma" and
// "roma" are distinct entries.
func cacheKey(text string) string {
	return strings.TrimSpace(text)
}
