package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/meteo-lookup-service/internal/observability"
)

// NewRouter wires the public routes. limiter may be nil; a zero
// requestTimeout leaves lookups bounded only by the outbound client timeouts.
func NewRouter(h *Handler, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(h.logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/", h.Index).Methods(http.MethodGet)
	router.HandleFunc("/meteo", h.Index).Methods(http.MethodGet)

	var lookup http.Handler = http.HandlerFunc(h.Lookup)
	if requestTimeout > 0 {
		lookup = TimeoutMiddleware(requestTimeout)(lookup)
	}
	lookup = RateLimitMiddleware(limiter)(lookup)
	router.Handle("/meteo/lookup", lookup).Methods(http.MethodGet, http.MethodPost)
	router.Handle("/meteo/lookup.{format:html|iphone|xml|json}", lookup).Methods(http.MethodGet, http.MethodPost)
	return router
}
