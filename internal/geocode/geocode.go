// Package geocode turns free-text locations into coordinates, city and country.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kjstillabower/meteo-lookup-service/internal/circuitbreaker"
	"github.com/kjstillabower/meteo-lookup-service/internal/models"
)

// Geocoder resolves a free-text query. A query the provider cannot place is
// not an error: it yields a Geocode with Success=false.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (models.Geocode, error)
}

var (
	ErrUpstreamFailure   = errors.New("geocoder upstream failure")
	ErrMalformedResponse = errors.New("geocoder malformed response")
)

// Multi tries each geocoder in order and returns the first successful geocode.
// If none succeeds it returns the last unsuccessful geocode, or the last error
// when every provider failed.
type Multi []Geocoder

func (m Multi) Geocode(ctx context.Context, query string) (models.Geocode, error) {
	var last models.Geocode
	var lastErr error
	answered := false
	for _, g := range m {
		geo, err := g.Geocode(ctx, query)
		if err != nil {
			lastErr = err
			continue
		}
		if geo.Success {
			return geo, nil
		}
		last, answered = geo, true
	}
	if answered {
		return last, nil
	}
	if lastErr == nil {
		return models.Geocode{}, nil
	}
	return models.Geocode{}, lastErr
}

// NominatimConfig holds the settings shared by every endpoint in a chain.
type NominatimConfig struct {
	APIKey    string
	UserAgent string
	Email     string
	Timeout   time.Duration
}

// NewNominatimChain builds a Multi over urls, tried in order. breakerFor, when
// non-nil, supplies the circuit breaker for each endpoint by index.
func NewNominatimChain(urls []string, cfg NominatimConfig, breakerFor func(i int) *circuitbreaker.CircuitBreaker) (Multi, error) {
	if len(urls) == 0 {
		return nil, errors.New("geocoder chain needs at least one URL")
	}
	chain := make(Multi, 0, len(urls))
	for i, u := range urls {
		c, err := NewNominatimClient(u, cfg.APIKey, cfg.UserAgent, cfg.Email, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("geocoder %d: %w", i, err)
		}
		if breakerFor != nil {
			c.SetCircuitBreaker(breakerFor(i))
		}
		chain = append(chain, c)
	}
	return chain, nil
}
