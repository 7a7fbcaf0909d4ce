package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
	"github.com/kjstillabower/meteo-lookup-service/internal/observability"
)

// ErrUnavailable is returned by Warm for locations that produced no result.
var ErrUnavailable = errors.New("weather unavailable")

// Looker is implemented by the service layer. A successful Lookup populates the cache.
// Used by CacheWarmer to avoid a circular dependency on the service package.
type Looker interface {
	Lookup(ctx context.Context, text string) (models.WeatherResult, bool)
}

// CacheWarmer warms the cache by looking up a fixed list of locations.
type CacheWarmer struct {
	looker Looker
	logger *zap.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewCacheWarmer creates a CacheWarmer that uses the given looker and logger.
func NewCacheWarmer(looker Looker, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{looker: looker, logger: logger}
}

// Warm looks up each location concurrently. Returns an aggregated error
// naming every location that came back unavailable.
func (w *CacheWarmer) Warm(ctx context.Context, locations []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("locations", len(locations)))

	var wg sync.WaitGroup
	errCh := make(chan error, len(locations))
	for _, loc := range locations {
		loc := loc
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := w.looker.Lookup(ctx, loc); !ok {
				errCh <- fmt.Errorf("warm %s: %w", loc, ErrUnavailable)
			}
		}()
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("locations", len(locations)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// Schedule runs an initial Warm, then re-warms on the cron schedule spec
// (standard five-field syntax or descriptors such as "@every 30m") until Stop
// is called. Each run gets its own timeout derived from runTimeout.
func (w *CacheWarmer) Schedule(ctx context.Context, spec string, locations []string, runTimeout time.Duration) error {
	if len(locations) == 0 {
		w.logger.Info("cache warming disabled: no locations configured")
		return nil
	}
	run := func() {
		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()
		if err := w.Warm(runCtx, locations); err != nil {
			w.logger.Warn("cache warm failed", zap.Error(err))
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, run); err != nil {
		return fmt.Errorf("parse warm schedule %q: %w", spec, err)
	}

	w.mu.Lock()
	if w.cron != nil {
		w.mu.Unlock()
		return errors.New("cache warmer already scheduled")
	}
	w.cron = c
	w.mu.Unlock()

	go run()
	c.Start()
	return nil
}

// Stop halts the schedule and waits for a running warm to finish or ctx to expire.
func (w *CacheWarmer) Stop(ctx context.Context) {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
