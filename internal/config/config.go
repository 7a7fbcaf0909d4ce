package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort                    string        `validate:"required,numeric"`
	RequestTimeout                time.Duration `validate:"gt=0"`
	ShutdownTimeout               time.Duration `validate:"gt=0"`
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration `validate:"gt=0"`
	LogLevel                      string

	GeocoderURL          string        `validate:"required,url"`
	GeocoderFallbackURLs []string      `validate:"dive,url"`
	GeocoderAPIKey       string
	GeocoderTimeout      time.Duration `validate:"gt=0"`
	GeocoderUserAgent    string        `validate:"required"`
	GeocoderEmail        string        `validate:"omitempty,email"`

	WeatherAPIKey     string
	WeatherAPIURL     string        `validate:"required,url"`
	WeatherAPITimeout time.Duration `validate:"gt=0"`
	WeatherUnits      string        `validate:"oneof=c f"`
	WeatherTimezone   string

	TargetCountry     string        `validate:"required,len=2,uppercase"`
	CountryQualifier  string
	StalenessWindow   time.Duration `validate:"gt=0"`
	LocationMinLength int           `validate:"gte=0"`
	LocationMaxLength int           `validate:"gtefield=LocationMinLength"`

	StationsDBPath  string `validate:"required"`
	StationsSeedCSV string

	CacheBackend          string `validate:"oneof=in_memory memcached redis"`
	CachePolicy           string `validate:"oneof=flush_all per_key"`
	CacheEntryTTL         time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisAddr             string `validate:"required_if=CacheBackend redis"`
	RedisTimeout          time.Duration
	CoalesceEnabled       bool
	CoalesceTimeout       time.Duration
	WarmLocations         []string
	WarmSchedule          string

	RetryAttempts                  int `validate:"gte=1"`
	RetryBaseDelay                 time.Duration
	RetryMaxDelay                  time.Duration `validate:"gtefield=RetryBaseDelay"`
	RateLimitRPS                   int           `validate:"gte=0"`
	RateLimitBurst                 int           `validate:"gte=0"`
	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int `validate:"gte=1"`
	CircuitBreakerSuccessThreshold int `validate:"gte=1"`
	CircuitBreakerTimeout          time.Duration

	OverloadWindow         time.Duration
	OverloadThresholdPct   int `validate:"gte=0,lte=100"`
	DegradedWindow         time.Duration
	DegradedUnavailablePct int `validate:"gte=0,lte=100"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Geocoder struct {
		URL          string   `yaml:"url"`
		FallbackURLs []string `yaml:"fallback_urls"`
		Timeout      string   `yaml:"timeout"`
		UserAgent    string   `yaml:"user_agent"`
		Email        string   `yaml:"email"`
	} `yaml:"geocoder"`

	WeatherAPI struct {
		URL      string `yaml:"url"`
		Timeout  string `yaml:"timeout"`
		Units    string `yaml:"units"`
		Timezone string `yaml:"timezone"`
	} `yaml:"weather_api"`

	Lookup struct {
		TargetCountry    string  `yaml:"target_country"`
		CountryQualifier *string `yaml:"country_qualifier"`
		StalenessWindow  string  `yaml:"staleness_window"`
		MinLength        int     `yaml:"location_min_length"`
		MaxLength        int     `yaml:"location_max_length"`
	} `yaml:"lookup"`

	Stations struct {
		DBPath  string `yaml:"db_path"`
		SeedCSV string `yaml:"seed_csv"`
	} `yaml:"stations"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Policy    string `yaml:"policy"`
		EntryTTL  string `yaml:"entry_ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr    string `yaml:"addr"`
			Timeout string `yaml:"timeout"`
		} `yaml:"redis"`
		Coalesce struct {
			Enabled *bool  `yaml:"enabled"`
			Timeout string `yaml:"timeout"`
		} `yaml:"coalesce"`
		WarmLocations []string `yaml:"warm_locations"`
		WarmSchedule  string   `yaml:"warm_schedule"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Lifecycle struct {
		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdPct   int    `yaml:"overload_threshold_pct"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedUnavailablePct int    `yaml:"degraded_unavailable_pct"`
	} `yaml:"lifecycle"`
}

type secretsFile struct {
	WeatherAPIKey  string `yaml:"weather_api_key"`
	GeocoderAPIKey string `yaml:"geocoder_api_key"`
}

var validate = validator.New()

// Load reads configuration relative to the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadDir(cwd)
}

// LoadDir loads dir/.env (optional) into the environment, then reads
// dir/config/{ENV_NAME}.yaml (default dev) and dir/config/secrets.yaml.
// Environment variables override file values.
func LoadDir(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := readSecrets(filepath.Join(dir, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := fromFile(fc)
	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)
	cfg.GeocoderAPIKey = firstNonEmpty(os.Getenv("GEOCODER_API_KEY"), sec.GeocoderAPIKey)
	applyEnvOverrides(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func fromFile(fc fileConfig) *Config {
	cfg := &Config{
		ServerPort:                    firstNonEmpty(fc.Server.Port, "8080"),
		RequestTimeout:                parseDuration(fc.Request.Timeout, 5*time.Second),
		ShutdownTimeout:               parseDuration(fc.Shutdown.Timeout, 30*time.Second),
		ShutdownInFlightTimeout:       parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second),
		ShutdownInFlightCheckInterval: parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond),

		GeocoderURL:          firstNonEmpty(fc.Geocoder.URL, "https://nominatim.openstreetmap.org/search"),
		GeocoderFallbackURLs: fc.Geocoder.FallbackURLs,
		GeocoderTimeout:      parseDuration(fc.Geocoder.Timeout, 2*time.Second),
		GeocoderUserAgent:    firstNonEmpty(fc.Geocoder.UserAgent, "meteo-lookup-service/1.0"),
		GeocoderEmail:        strings.TrimSpace(fc.Geocoder.Email),

		WeatherAPIURL:     firstNonEmpty(fc.WeatherAPI.URL, "https://weather.yahooapis.com/forecastrss"),
		WeatherAPITimeout: parseDurationOrZero(fc.WeatherAPI.Timeout, 2*time.Second),
		WeatherUnits:      firstNonEmpty(strings.ToLower(fc.WeatherAPI.Units), "c"),
		WeatherTimezone:   firstNonEmpty(fc.WeatherAPI.Timezone, "Europe/Rome"),

		TargetCountry:     firstNonEmpty(strings.ToUpper(fc.Lookup.TargetCountry), "IT"),
		CountryQualifier:  "italy",
		StalenessWindow:   parseDuration(fc.Lookup.StalenessWindow, time.Hour),
		LocationMinLength: fc.Lookup.MinLength,
		LocationMaxLength: fc.Lookup.MaxLength,

		StationsDBPath:  firstNonEmpty(fc.Stations.DBPath, "meteo.db"),
		StationsSeedCSV: strings.TrimSpace(fc.Stations.SeedCSV),

		CacheBackend:          firstNonEmpty(strings.ToLower(fc.Cache.Backend), "in_memory"),
		CachePolicy:           firstNonEmpty(strings.ToLower(fc.Cache.Policy), "flush_all"),
		CacheEntryTTL:         parseDurationOrZero(fc.Cache.EntryTTL, 0),
		MemcachedAddrs:        firstNonEmpty(fc.Cache.Memcached.Addrs, "localhost:11211"),
		MemcachedTimeout:      parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond),
		MemcachedMaxIdleConns: fc.Cache.Memcached.MaxIdleConns,
		RedisAddr:             strings.TrimSpace(fc.Cache.Redis.Addr),
		RedisTimeout:          parseDuration(fc.Cache.Redis.Timeout, 500*time.Millisecond),
		CoalesceEnabled:       true,
		CoalesceTimeout:       parseDuration(fc.Cache.Coalesce.Timeout, 5*time.Second),
		WarmLocations:         fc.Cache.WarmLocations,
		WarmSchedule:          firstNonEmpty(fc.Cache.WarmSchedule, "@every 30m"),

		RetryAttempts:                  fc.Reliability.RetryMaxAttempts,
		RetryBaseDelay:                 parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond),
		RetryMaxDelay:                  parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second),
		RateLimitRPS:                   fc.Reliability.RateLimitRPS,
		RateLimitBurst:                 fc.Reliability.RateLimitBurst,
		CircuitBreakerEnabled:          true,
		CircuitBreakerFailureThreshold: fc.Reliability.CircuitBreaker.FailureThreshold,
		CircuitBreakerSuccessThreshold: fc.Reliability.CircuitBreaker.SuccessThreshold,
		CircuitBreakerTimeout:          parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second),

		OverloadWindow:         parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second),
		OverloadThresholdPct:   fc.Lifecycle.OverloadThresholdPct,
		DegradedWindow:         parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second),
		DegradedUnavailablePct: fc.Lifecycle.DegradedUnavailablePct,
	}
	if fc.Lookup.CountryQualifier != nil {
		cfg.CountryQualifier = strings.TrimSpace(*fc.Lookup.CountryQualifier)
	}
	if fc.Cache.Coalesce.Enabled != nil {
		cfg.CoalesceEnabled = *fc.Cache.Coalesce.Enabled
	}
	if fc.Reliability.CircuitBreaker.Enabled != nil {
		cfg.CircuitBreakerEnabled = *fc.Reliability.CircuitBreaker.Enabled
	}
	if cfg.LocationMinLength <= 0 {
		cfg.LocationMinLength = 1
	}
	if cfg.LocationMaxLength <= 0 {
		cfg.LocationMaxLength = 100
	}
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	if cfg.DegradedUnavailablePct <= 0 {
		cfg.DegradedUnavailablePct = 50
	}
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND"))); v != "" {
		cfg.CacheBackend = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")); v != "" {
		cfg.MemcachedAddrs = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("STATIONS_DB")); v != "" {
		cfg.StationsDBPath = v
	}
	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), "info")
}

// validateConfig checks struct rules, then cross-field constraints the tags
// cannot express. Auto-adjusts RequestTimeout if needed.
func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(cfg.WeatherTimezone); err != nil {
		return fmt.Errorf("invalid config: weather_api.timezone: %w", err)
	}
	geocodeBudget := cfg.GeocoderTimeout * time.Duration(1+len(cfg.GeocoderFallbackURLs))
	lookupBudget := geocodeBudget + cfg.WeatherAPITimeout
	if cfg.RequestTimeout <= lookupBudget {
		cfg.RequestTimeout = lookupBudget + time.Second
	}
	return nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
