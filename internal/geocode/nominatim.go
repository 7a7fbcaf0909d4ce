package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/meteo-lookup-service/internal/circuitbreaker"
	"github.com/kjstillabower/meteo-lookup-service/internal/models"
	"github.com/kjstillabower/meteo-lookup-service/internal/observability"
)

const providerNominatim = "nominatim"

// NominatimClient queries a Nominatim-compatible /search endpoint.
type NominatimClient struct {
	apiURL    string
	apiKey    string
	userAgent string
	email     string
	client    *http.Client
	breaker   *circuitbreaker.CircuitBreaker
}

// NewNominatimClient validates apiURL and returns a client. apiKey and email are optional.
func NewNominatimClient(apiURL, apiKey, userAgent, email string, timeout time.Duration) (*NominatimClient, error) {
	if _, err := url.ParseRequestURI(apiURL); err != nil {
		return nil, fmt.Errorf("invalid geocoder URL: %w", err)
	}
	if userAgent == "" {
		userAgent = "meteo-lookup-service"
	}
	return &NominatimClient{
		apiURL:    apiURL,
		apiKey:    apiKey,
		userAgent: userAgent,
		email:     email,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// SetCircuitBreaker guards provider calls with cb. Pass nil to disable.
func (c *NominatimClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

type nominatimPlace struct {
	Lat     string `json:"lat"`
	Lon     string `json:"lon"`
	Address struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
		CountryCode  string `json:"country_code"`
	} `json:"address"`
}

func (c *NominatimClient) Geocode(ctx context.Context, query string) (models.Geocode, error) {
	var geo models.Geocode
	err := c.breaker.Call(ctx, func() error {
		var callErr error
		geo, callErr = c.search(ctx, query)
		return callErr
	})
	return geo, err
}

func (c *NominatimClient) search(ctx context.Context, query string) (models.Geocode, error) {
	start := time.Now()
	req, err := c.buildRequest(ctx, query)
	if err != nil {
		return models.Geocode{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.GeocoderCallsTotal.WithLabelValues("error").Inc()
		observability.GeocoderDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.Geocode{}, fmt.Errorf("geocoder request timeout: %w", err)
		}
		return models.Geocode{}, fmt.Errorf("geocoder request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.GeocoderCallsTotal.WithLabelValues("error").Inc()
		observability.GeocoderDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return models.Geocode{}, fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	observability.GeocoderCallsTotal.WithLabelValues("success").Inc()
	observability.GeocoderDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Geocode{}, fmt.Errorf("read response body: %w", err)
	}
	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return models.Geocode{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(places) == 0 {
		return models.Geocode{Success: false, Provider: providerNominatim}, nil
	}
	return mapPlace(places[0])
}

func (c *NominatimClient) buildRequest(ctx context.Context, query string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, err
	}
	params := baseURL.Query()
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	params.Set("limit", "1")
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	if c.email != "" {
		params.Set("email", c.email)
	}
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func mapPlace(p nominatimPlace) (models.Geocode, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return models.Geocode{}, fmt.Errorf("%w: lat %q", ErrMalformedResponse, p.Lat)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return models.Geocode{}, fmt.Errorf("%w: lon %q", ErrMalformedResponse, p.Lon)
	}
	city := firstNonEmpty(p.Address.City, p.Address.Town, p.Address.Village, p.Address.Municipality)
	return models.Geocode{
		Success:     true,
		City:        city,
		CountryCode: strings.ToUpper(p.Address.CountryCode),
		Latitude:    lat,
		Longitude:   lon,
		Provider:    providerNominatim,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
