package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/meteo-lookup-service/internal/cache"
	"github.com/kjstillabower/meteo-lookup-service/internal/circuitbreaker"
	"github.com/kjstillabower/meteo-lookup-service/internal/client"
	"github.com/kjstillabower/meteo-lookup-service/internal/config"
	"github.com/kjstillabower/meteo-lookup-service/internal/geocode"
	httphandler "github.com/kjstillabower/meteo-lookup-service/internal/http"
	"github.com/kjstillabower/meteo-lookup-service/internal/lifecycle"
	"github.com/kjstillabower/meteo-lookup-service/internal/observability"
	"github.com/kjstillabower/meteo-lookup-service/internal/resolver"
	"github.com/kjstillabower/meteo-lookup-service/internal/service"
	"github.com/kjstillabower/meteo-lookup-service/internal/stations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	store, err := stations.OpenSQLite(cfg.StationsDBPath)
	if err != nil {
		logger.Fatal("stations db", zap.Error(err), zap.String("path", cfg.StationsDBPath))
	}
	defer store.Close()
	seeded, err := stations.SeedIfEmpty(context.Background(), store, cfg.StationsSeedCSV)
	if err != nil {
		logger.Fatal("stations seed", zap.Error(err), zap.String("csv", cfg.StationsSeedCSV))
	}
	stationCount, err := store.Count(context.Background())
	if err != nil {
		logger.Fatal("stations count", zap.Error(err))
	}
	observability.StationsLoaded.Set(float64(stationCount))
	logger.Info("stations ready", zap.Int("count", stationCount), zap.Int("seeded", seeded))
	if stationCount == 0 {
		logger.Warn("station table is empty; every lookup will be unavailable")
	}

	breakers := map[string]func() string{}
	newBreaker := func(component string) *circuitbreaker.CircuitBreaker {
		if !cfg.CircuitBreakerEnabled {
			return nil
		}
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        component,
			OnStateChange: func(component, from, to string) {
				observability.RecordCircuitBreakerTransition(component, from, to)
				logger.Warn("circuit breaker state change", zap.String("component", component), zap.String("from", from), zap.String("to", to))
			},
		})
		observability.CircuitBreakerState.WithLabelValues(component).Set(0)
		breakers[component] = cb.State
		return cb
	}

	geocoderURLs := append([]string{cfg.GeocoderURL}, cfg.GeocoderFallbackURLs...)
	geocoders, err := geocode.NewNominatimChain(geocoderURLs, geocode.NominatimConfig{
		APIKey:    cfg.GeocoderAPIKey,
		UserAgent: cfg.GeocoderUserAgent,
		Email:     cfg.GeocoderEmail,
		Timeout:   cfg.GeocoderTimeout,
	}, func(i int) *circuitbreaker.CircuitBreaker {
		return newBreaker(geocoderComponent(i))
	})
	if err != nil {
		logger.Fatal("geocoder", zap.Error(err))
	}
	logger.Info("geocoder chain", zap.Strings("urls", geocoderURLs))
	stationResolver := resolver.New(geocode.NewMemoized(geocoders), store, resolver.Policy{
		TargetCountry:    cfg.TargetCountry,
		CountryQualifier: cfg.CountryQualifier,
	}, logger)

	weatherClient, err := client.NewYahooWeatherClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	weatherClient.SetCircuitBreaker(newBreaker("weather_api"))
	if loc, err := time.LoadLocation(cfg.WeatherTimezone); err == nil {
		weatherClient.SetTimezone(loc)
	}
	if cfg.CircuitBreakerEnabled {
		logger.Info("circuit breakers enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	lookupCache, cachePing, closeCache := newCache(cfg, logger)
	defer closeCache()

	policy, err := cache.NewPolicy(cfg.CachePolicy, cfg.StalenessWindow)
	if err != nil {
		logger.Fatal("cache policy", zap.Error(err))
	}
	logger.Info("cache policy", zap.String("policy", policy.Name()), zap.Duration("window", cfg.StalenessWindow))

	opts := service.Options{Units: cfg.WeatherUnits, EntryTTL: cfg.CacheEntryTTL}
	if cfg.CoalesceEnabled {
		opts.CoalesceTimeout = cfg.CoalesceTimeout
	}
	lookupService := service.NewLookupService(stationResolver, client.NewAdapter(weatherClient, logger), lookupCache, policy, opts, logger)

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           cfg.RateLimitRPS,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedUnavailablePct: cfg.DegradedUnavailablePct,
		Breakers:               breakers,
		CachePing:              cachePing,
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(lookupService, healthConfig, logger, cfg.LocationMinLength, cfg.LocationMaxLength)
	router := httphandler.NewRouter(handler, limiter, cfg.RequestTimeout)

	lifecycle.MarkStarted(time.Now())
	observability.RegisterTrafficGauges(cfg.OverloadWindow)

	warmer := cache.NewCacheWarmer(lookupService, logger)
	if err := warmer.Schedule(context.Background(), cfg.WarmSchedule, cfg.WarmLocations, cfg.RequestTimeout*time.Duration(len(cfg.WarmLocations)+1)); err != nil {
		logger.Error("cache warming not scheduled", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	warmer.Stop(shutdownCtx)

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// geocoderComponent names the breaker for the i-th geocoder endpoint.
func geocoderComponent(i int) string {
	if i == 0 {
		return "geocoder"
	}
	return fmt.Sprintf("geocoder_fallback_%d", i)
}

// newCache builds the configured lookup cache backend. The returned ping is nil
// for the in-memory backend; close releases backend connections.
func newCache(cfg *config.Config, logger *zap.Logger) (cache.Cache, func(context.Context) error, func()) {
	switch cfg.CacheBackend {
	case cache.BackendMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, mc.Ping, func() {
			if err := mc.Close(); err != nil {
				logger.Error("memcached close", zap.Error(err))
			}
		}
	case cache.BackendRedis:
		rc := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisTimeout)
		pingCtx, cancel := context.WithTimeout(context.Background(), cfg.RedisTimeout)
		defer cancel()
		if err := rc.Ping(pingCtx); err != nil {
			logger.Warn("redis not reachable at startup", zap.Error(err), zap.String("addr", cfg.RedisAddr))
		}
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr))
		return rc, rc.Ping, func() {
			if err := rc.Close(); err != nil {
				logger.Error("redis close", zap.Error(err))
			}
		}
	default:
		logger.Info("cache backend: in_memory")
		return cache.NewInMemoryCache(), nil, func() {}
	}
}
