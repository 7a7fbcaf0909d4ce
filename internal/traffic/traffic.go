// Package traffic keeps sliding windows of lookup outcomes for health reporting.
package traffic

import (
	"sync"
	"time"
)

// retention bounds how long outcomes are kept regardless of the queried window.
const retention = 10 * time.Minute

var defaultTracker Tracker

// RecordFound records a lookup that returned weather.
func RecordFound() {
	defaultTracker.RecordFound()
}

// RecordUnavailable records a lookup that ended with "Informazioni non disponibili".
func RecordUnavailable() {
	defaultTracker.RecordUnavailable()
}

// RecordDenied records a rate-limit denial (429).
func RecordDenied() {
	defaultTracker.RecordDenied()
}

// RequestCount returns found + unavailable + denied within the window.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// UnavailableRate returns (unavailable, found+unavailable) within the window.
func UnavailableRate(window time.Duration) (unavailable, total int) {
	return defaultTracker.UnavailableRate(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains sliding windows of outcome timestamps.
type Tracker struct {
	mu          sync.Mutex
	found       []time.Time
	unavailable []time.Time
	denied      []time.Time
}

func (t *Tracker) RecordFound() {
	t.record(&t.found, time.Now())
}

func (t *Tracker) RecordUnavailable() {
	t.record(&t.unavailable, time.Now())
}

func (t *Tracker) RecordDenied() {
	t.record(&t.denied, time.Now())
}

func (t *Tracker) record(slice *[]time.Time, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	return countSince(t.found, cutoff) + countSince(t.unavailable, cutoff) + countSince(t.denied, cutoff)
}

func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.denied, time.Now().Add(-window))
}

// UnavailableRate excludes denials: a 429 never reached the lookup.
func (t *Tracker) UnavailableRate(window time.Duration) (unavailable, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	u := countSince(t.unavailable, cutoff)
	return u, u + countSince(t.found, cutoff)
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.found = nil
	t.unavailable = nil
	t.denied = nil
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.found)
	prune(&t.unavailable)
	prune(&t.denied)
}
