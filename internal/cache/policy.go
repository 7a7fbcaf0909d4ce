package cache

import (
	"fmt"
	"time"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
)

// Policy names accepted by cache.policy.
const (
	PolicyFlushAll = "flush_all"
	PolicyPerKey   = "per_key"
)

// Action is what the caller must do with a cached entry it just read.
type Action int

const (
	// Keep serves the entry as is.
	Keep Action = iota
	// EvictKey drops this entry and recomputes it.
	EvictKey
	// FlushAll empties the whole cache and recomputes this entry.
	FlushAll
)

func (a Action) String() string {
	switch a {
	case Keep:
		return "keep"
	case EvictKey:
		return "evict_key"
	case FlushAll:
		return "flush_all"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// EvictionPolicy decides whether a cached result is still usable at now.
type EvictionPolicy interface {
	Evaluate(entry models.WeatherResult, now time.Time) Action
	Name() string
}

// FlushAllOnStale flushes the whole cache as soon as any entry read from it
// carries an observation older than Window.
type FlushAllOnStale struct {
	Window time.Duration
}

func (p FlushAllOnStale) Evaluate(entry models.WeatherResult, now time.Time) Action {
	if entry.ObservedBefore(now.Add(-p.Window)) {
		return FlushAll
	}
	return Keep
}

func (p FlushAllOnStale) Name() string { return PolicyFlushAll }

// PerKeyExpiry evicts only the stale entry.
type PerKeyExpiry struct {
	Window time.Duration
}

func (p PerKeyExpiry) Evaluate(entry models.WeatherResult, now time.Time) Action {
	if entry.ObservedBefore(now.Add(-p.Window)) {
		return EvictKey
	}
	return Keep
}

func (p PerKeyExpiry) Name() string { return PolicyPerKey }

// NewPolicy returns the policy registered under name. An empty name selects flush_all.
func NewPolicy(name string, window time.Duration) (EvictionPolicy, error) {
	if window <= 0 {
		return nil, fmt.Errorf("staleness window must be positive, got %s", window)
	}
	switch name {
	case "", PolicyFlushAll:
		return FlushAllOnStale{Window: window}, nil
	case PolicyPerKey:
		return PerKeyExpiry{Window: window}, nil
	default:
		return nil, fmt.Errorf("unknown cache policy %q", name)
	}
}
