package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
)

// inFlightRequest tracks a single computation that multiple callers may wait for.
type inFlightRequest struct {
	done   chan struct{}
	result models.WeatherResult
	ok     bool
}

// requestCoalescer prevents duplicate upstream work by coalescing concurrent
// lookups for the same key.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest
	timeout  time.Duration
}

// newRequestCoalescer creates a new requestCoalescer with the specified wait timeout.
func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightRequest),
		timeout:  timeout,
	}
}

// GetOrDo runs fn for key unless a call for key is already running, in which
// case it waits for that call's result. shared is true when the result came
// from another caller's call. err is non-nil only when ctx or the wait
// timeout expired first.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func() (models.WeatherResult, bool)) (result models.WeatherResult, ok bool, shared bool, err error) {
	rc.mu.Lock()
	req, exists := rc.inFlight[key]
	if !exists {
		req = &inFlightRequest{done: make(chan struct{})}
		rc.inFlight[key] = req
	}
	rc.mu.Unlock()

	if !exists {
		// fn runs detached so a leader that gives up does not strand its waiters.
		go func() {
			req.result, req.ok = fn()
			rc.cleanup(key)
			close(req.done)
		}()
	}

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-req.done:
		return req.result, req.ok, exists, nil
	case <-waitCtx.Done():
		return models.WeatherResult{}, false, exists, waitCtx.Err()
	}
}

// cleanup removes the in-flight request for key. Called before waiters are released.
func (rc *requestCoalescer) cleanup(key string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.inFlight, key)
}

// inFlightCount returns the number of keys currently being computed.
func (rc *requestCoalescer) inFlightCount() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.inFlight)
}
