package http

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/meteo-lookup-service/internal/lifecycle"
	"github.com/kjstillabower/meteo-lookup-service/internal/models"
	"github.com/kjstillabower/meteo-lookup-service/internal/observability"
	"github.com/kjstillabower/meteo-lookup-service/internal/traffic"
	"github.com/kjstillabower/meteo-lookup-service/internal/validation"
)

// Looker answers location lookups. Implemented by service.LookupService.
type Looker interface {
	Lookup(ctx context.Context, text string) (models.WeatherResult, bool)
}

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	RateLimitRPS           int
	DegradedWindow         time.Duration
	DegradedUnavailablePct int
	// Breakers maps a component name to a function reporting its circuit
	// breaker state ("closed", "half_open", "open").
	Breakers map[string]func() string
	// CachePing, when set, is called to check cache reachability.
	CachePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	lookup           Looker
	healthConfig     *HealthConfig
	logger           *zap.Logger
	minLength        int
	maxLength        int
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. minLength and maxLength bound the
// location text in runes; zero disables the bound.
func NewHandler(lookup Looker, healthConfig *HealthConfig, logger *zap.Logger, minLength, maxLength int) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		lookup:       lookup,
		healthConfig: healthConfig,
		logger:       logger,
		minLength:    minLength,
		maxLength:    maxLength,
	}
}

// Index handles GET / and GET /meteo.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if err := renderTemplate(w, http.StatusOK, "index.html", pageData{MaxLength: h.maxLength}); err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("render index", zap.Error(err))
	}
}

// Lookup handles GET|POST /meteo/lookup[.format]?location=.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)
	format := negotiateFormat(r)
	raw := r.FormValue("location")

	location, err := validation.ValidateLocation(raw, h.minLength, h.maxLength)
	if err != nil {
		logger.Debug("invalid location", zap.String("location", raw), zap.Error(err))
		h.writeInvalid(w, r, format, raw, err)
		return
	}

	result, ok := h.lookup.Lookup(r.Context(), location)
	if !ok {
		traffic.RecordUnavailable()
		h.writeUnavailable(w, r, format, location)
		return
	}
	traffic.RecordFound()

	sun := result.Sunny()
	switch format {
	case FormatJSON:
		writeJSON(w, http.StatusOK, lookupJSON{
			Location:  location,
			Station:   result.Station,
			Condition: result.Condition,
			Units:     result.Units,
			Link:      result.Link,
			Sun:       sun,
		})
	case FormatXML:
		err = writeXML(w, http.StatusOK, lookupXML{
			Location:  location,
			Station:   result.Station,
			Condition: result.Condition,
			Units:     result.Units,
			Link:      result.Link,
			Sun:       sun,
		})
	case FormatIPhone:
		err = renderTemplate(w, http.StatusOK, "iphone.html", pageData{Location: location, MaxLength: h.maxLength, Result: &result, Sun: sun})
	default:
		err = renderTemplate(w, http.StatusOK, "lookup.html", pageData{Location: location, MaxLength: h.maxLength, Result: &result, Sun: sun})
	}
	if err != nil {
		logger.Error("render lookup", zap.String("format", format), zap.Error(err))
	}
}

// writeUnavailable renders the "information unavailable" outcome in format.
func (h *Handler) writeUnavailable(w http.ResponseWriter, r *http.Request, format, location string) {
	var err error
	switch format {
	case FormatJSON:
		writeError(w, r, http.StatusNotFound, "UNAVAILABLE", UnavailableNotice)
	case FormatXML:
		err = writeXML(w, http.StatusOK, lookupErrorXML{Error: UnavailableNotice})
	case FormatIPhone:
		err = renderTemplate(w, http.StatusOK, "iphone.html", pageData{Location: location, MaxLength: h.maxLength, Notice: UnavailableNotice})
	default:
		err = renderTemplate(w, http.StatusOK, "index.html", pageData{Location: location, MaxLength: h.maxLength, Notice: UnavailableNotice})
	}
	if err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("render unavailable", zap.String("format", format), zap.Error(err))
	}
}

// writeInvalid renders a rejected location. Machine formats get 400; the
// HTML views re-render the form with the unavailable notice.
func (h *Handler) writeInvalid(w http.ResponseWriter, r *http.Request, format, raw string, cause error) {
	var err error
	switch format {
	case FormatJSON:
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", cause.Error())
	case FormatXML:
		err = writeXML(w, http.StatusBadRequest, lookupErrorXML{Error: cause.Error()})
	case FormatIPhone:
		err = renderTemplate(w, http.StatusOK, "iphone.html", pageData{Location: raw, MaxLength: h.maxLength, Notice: UnavailableNotice})
	default:
		err = renderTemplate(w, http.StatusOK, "index.html", pageData{Location: raw, MaxLength: h.maxLength, Notice: UnavailableNotice})
	}
	if err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("render invalid", zap.String("format", format), zap.Error(err))
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if h.healthConfig != nil {
		for name, state := range h.healthConfig.Breakers {
			if state() == "open" {
				checks[name] = "unhealthy"
			} else {
				checks[name] = "healthy"
			}
		}
		if h.healthConfig.CachePing != nil {
			if h.healthConfig.CachePing(r.Context()) == nil {
				checks["cache"] = "healthy"
			} else {
				checks["cache"] = "unhealthy"
			}
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "meteo-lookup-service",
		"version":   "dev",
		"checks":    checks,
		"uptime":    lifecycle.Uptime().Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	cfg := h.healthConfig

	// Overloaded: rate limit denials exceed the configured share of the window's capacity.
	if cfg.RateLimitRPS > 0 && cfg.OverloadWindow > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.OverloadWindow.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(traffic.DenialCount(cfg.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}

	names := make([]string, 0, len(cfg.Breakers))
	for name := range cfg.Breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if cfg.Breakers[name]() == "open" {
			return healthResult{"degraded", http.StatusServiceUnavailable, name + "_circuit_open"}
		}
	}

	if cfg.DegradedWindow > 0 && cfg.DegradedUnavailablePct > 0 {
		unavailable, total := traffic.UnavailableRate(cfg.DegradedWindow)
		if total > 0 && float64(unavailable)*100/float64(total) >= float64(cfg.DegradedUnavailablePct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "unavailable_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}
