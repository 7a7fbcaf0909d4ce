package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
	"github.com/kjstillabower/meteo-lookup-service/internal/observability"
	"github.com/kjstillabower/meteo-lookup-service/internal/traffic"
)

// blockingLooker blocks until its context is done, then reports unavailable.
type blockingLooker struct{}

func (blockingLooker) Lookup(ctx context.Context, text string) (models.WeatherResult, bool) {
	<-ctx.Done()
	return models.WeatherResult{}, false
}

func TestMiddleware_CorrelationIDGenerated(t *testing.T) {
	h, _ := newTestHandler(t)

	w := serve(h, httptest.NewRequest("GET", "/meteo/lookup.json?location=Rome", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header missing")
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.New(core)))
	router.HandleFunc("/probe", func(w http.ResponseWriter, r *http.Request) {
		if got := observability.CorrelationIDFromContext(r.Context()); got != "client-provided-id" {
			t.Errorf("context correlation id = %q", got)
		}
		observability.LoggerFromContext(r.Context(), nil).Info("probe")
	})

	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
	entries := logs.FilterMessage("probe").All()
	if len(entries) != 1 || entries[0].ContextMap()["correlation_id"] != "client-provided-id" {
		t.Errorf("request logger missing correlation_id: %+v", entries)
	}
}

func TestMiddleware_MetricsUsesRouteTemplate(t *testing.T) {
	h, _ := newTestHandler(t)
	counter := observability.HTTPRequestsTotal.WithLabelValues("GET", "/meteo/lookup.{format:html|iphone|xml|json}", "4xx")
	before := testutil.ToFloat64(counter)

	serve(h, httptest.NewRequest("GET", "/meteo/lookup.json?location=Paris", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("requests counter delta = %v, want 1", got)
	}
	if InFlightCount() != 0 {
		t.Errorf("InFlightCount() = %d after request, want 0", InFlightCount())
	}
}

// TestTimeoutMiddleware_CancelsContextAfterTimeout verifies a slow lookup is
// cut off by the request deadline and rendered as unavailable.
func TestTimeoutMiddleware_CancelsContextAfterTimeout(t *testing.T) {
	traffic.Reset()
	h := NewHandler(blockingLooker{}, nil, zap.NewNop(), 1, 100)
	router := NewRouter(h, nil, 50*time.Millisecond)

	req := httptest.NewRequest("GET", "/meteo/lookup.json?location=Rome", nil)
	w := httptest.NewRecorder()
	start := time.Now()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("request took %v, timeout not applied", elapsed)
	}
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	h, _ := newTestHandler(t)
	router := NewRouter(h, rate.NewLimiter(1, 2), time.Second)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/meteo/lookup.json?location=Rome", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if i < 2 {
			if w.Code != http.StatusOK {
				t.Errorf("request %d: status = %d, want 200", i, w.Code)
			}
			continue
		}
		if w.Code != http.StatusTooManyRequests {
			t.Errorf("request %d: status = %d, want 429", i, w.Code)
		}
		var errResp struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
			t.Fatalf("decode 429 response: %v", err)
		}
		if errResp.Error.Code != "RATE_LIMITED" {
			t.Errorf("error.code = %q, want RATE_LIMITED", errResp.Error.Code)
		}
	}
	if got := traffic.DenialCount(time.Minute); got != 1 {
		t.Errorf("DenialCount() = %d, want 1", got)
	}
}

func TestRateLimitMiddleware_ExemptRoutes(t *testing.T) {
	h, _ := newTestHandler(t)
	router := NewRouter(h, rate.NewLimiter(rate.Limit(0.001), 1), time.Second)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		if w.Code != http.StatusOK {
			t.Errorf("health request %d: status = %d, want 200", i, w.Code)
		}
	}
}

func TestMiddleware_MetricsRoute(t *testing.T) {
	h, _ := newTestHandler(t)

	w := serve(h, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestMiddleware_UnknownRoute(t *testing.T) {
	h, _ := newTestHandler(t)

	w := serve(h, httptest.NewRequest("GET", "/meteo/lookup.pdf?location=Rome", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
