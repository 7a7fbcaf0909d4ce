package client

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/meteo-lookup-service/internal/circuitbreaker"
	"github.com/kjstillabower/meteo-lookup-service/internal/models"
	"github.com/kjstillabower/meteo-lookup-service/internal/observability"
)

// WeatherClient fetches current conditions for one weather station.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, stationID, units string) (models.WeatherResult, error)
}

var (
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrStationNotFound   = errors.New("station not found")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedResponse = errors.New("malformed response")
)

// conditionDateLayout is the provider's RFC-822-like observation date, e.g. "Tue, 17 Feb 2009 3:50 pm CET".
const conditionDateLayout = "Mon, 02 Jan 2006 3:04 pm MST"

// YahooWeatherClient calls a Yahoo-Weather-style RSS endpoint (?p=STATION&u=c).
type YahooWeatherClient struct {
	apiKey         string
	apiURL         string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
	location       *time.Location
}

// NewYahooWeatherClient returns a client that makes a single attempt per lookup.
func NewYahooWeatherClient(apiKey, apiURL string, timeout time.Duration) (*YahooWeatherClient, error) {
	return NewYahooWeatherClientWithRetry(apiKey, apiURL, timeout, 1, 100*time.Millisecond, 2*time.Second)
}

// NewYahooWeatherClientWithRetry returns a client with retry/backoff. retryAttempts counts
// total attempts; values below 1 are treated as 1. apiKey is optional and sent as appid when set.
func NewYahooWeatherClientWithRetry(apiKey, apiURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*YahooWeatherClient, error) {
	if apiKey != "" && len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if _, err := url.ParseRequestURI(apiURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if retryAttempts < 1 {
		retryAttempts = 1
	}

	return &YahooWeatherClient{
		apiKey:         apiKey,
		apiURL:         apiURL,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		location:       time.UTC,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker guards every attempt with cb. Pass nil to disable.
func (c *YahooWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// SetTimezone sets the location used to resolve zone abbreviations in observation dates.
func (c *YahooWeatherClient) SetTimezone(loc *time.Location) {
	if loc != nil {
		c.location = loc
	}
}

type rssResponse struct {
	Channel struct {
		Title    string `xml:"title"`
		Link     string `xml:"link"`
		Location struct {
			City    string `xml:"city,attr"`
			Region  string `xml:"region,attr"`
			Country string `xml:"country,attr"`
		} `xml:"http://xml.weather.yahoo.com/ns/rss/1.0 location"`
		Units struct {
			Temperature string `xml:"temperature,attr"`
		} `xml:"http://xml.weather.yahoo.com/ns/rss/1.0 units"`
		Item struct {
			Title     string `xml:"title"`
			Condition *struct {
				Text string `xml:"text,attr"`
				Code string `xml:"code,attr"`
				Temp string `xml:"temp,attr"`
				Date string `xml:"date,attr"`
			} `xml:"http://xml.weather.yahoo.com/ns/rss/1.0 condition"`
		} `xml:"item"`
	} `xml:"channel"`
}

// GetCurrentWeather fetches the current condition for stationID in the given unit system ("c" or "f").
func (c *YahooWeatherClient) GetCurrentWeather(ctx context.Context, stationID, units string) (models.WeatherResult, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return models.WeatherResult{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		var result models.WeatherResult
		err := c.breaker.Call(ctx, func() error {
			var callErr error
			result, callErr = c.callAPI(ctx, stationID, units)
			return callErr
		})
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return models.WeatherResult{}, err
		}
	}

	if c.retryAttempts == 1 {
		return models.WeatherResult{}, lastErr
	}
	return models.WeatherResult{}, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *YahooWeatherClient) callAPI(ctx context.Context, stationID, units string) (models.WeatherResult, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, stationID, units)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.WeatherResult{}, fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.WeatherResult{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.WeatherResult{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return models.WeatherResult{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.WeatherResult{}, fmt.Errorf("read response body: %w", err)
	}

	var rss rssResponse
	if err := xml.Unmarshal(body, &rss); err != nil {
		return models.WeatherResult{}, fmt.Errorf("%w: parse response: %v", ErrMalformedResponse, err)
	}

	return c.mapResponse(rss, stationID, units)
}

func (c *YahooWeatherClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded")
}

func (c *YahooWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *YahooWeatherClient) buildRequest(ctx context.Context, stationID, units string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := baseURL.Query()
	params.Set("p", stationID)
	params.Set("u", units)
	if c.apiKey != "" {
		params.Set("appid", c.apiKey)
	}
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/rss+xml, application/xml")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, resp.StatusCode)
	case http.StatusNotFound:
		return ErrStationNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

// mapResponse converts the feed into a WeatherResult. A feed without a
// condition element is how the provider reports an unknown station.
func (c *YahooWeatherClient) mapResponse(rss rssResponse, stationID, units string) (models.WeatherResult, error) {
	cond := rss.Channel.Item.Condition
	if cond == nil || strings.TrimSpace(cond.Code) == "" {
		return models.WeatherResult{}, fmt.Errorf("%w: %s", ErrStationNotFound, stationID)
	}

	code, err := strconv.Atoi(strings.TrimSpace(cond.Code))
	if err != nil {
		return models.WeatherResult{}, fmt.Errorf("%w: condition code %q", ErrMalformedResponse, cond.Code)
	}
	observedAt, err := c.parseConditionDate(cond.Date)
	if err != nil {
		return models.WeatherResult{}, fmt.Errorf("%w: condition date %q", ErrMalformedResponse, cond.Date)
	}
	var temp float64
	if s := strings.TrimSpace(cond.Temp); s != "" {
		temp, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return models.WeatherResult{}, fmt.Errorf("%w: temperature %q", ErrMalformedResponse, cond.Temp)
		}
	}

	if u := strings.ToLower(rss.Channel.Units.Temperature); u != "" {
		units = u
	}

	return models.WeatherResult{
		Condition: models.Condition{
			Code:        code,
			Text:        cond.Text,
			Temperature: temp,
			ObservedAt:  observedAt,
		},
		Station: models.StationMeta{
			LocationID: stationID,
			City:       rss.Channel.Location.City,
			Region:     rss.Channel.Location.Region,
			Country:    rss.Channel.Location.Country,
		},
		Units:     units,
		Link:      rss.Channel.Link,
		FetchedAt: time.Now(),
	}, nil
}

func (c *YahooWeatherClient) parseConditionDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, time.RFC1123Z} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.ParseInLocation(conditionDateLayout, s, c.location)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
