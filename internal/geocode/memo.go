package geocode

import (
	"context"
	"sync"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
	"github.com/kjstillabower/meteo-lookup-service/internal/observability"
)

// Memoized caches geocodes per distinct query for the life of the process.
// Entries are never evicted. Unsuccessful geocodes are cached too; errors are not.
type Memoized struct {
	next Geocoder

	mu   sync.RWMutex
	memo map[string]models.Geocode
}

// NewMemoized wraps next with a process-lifetime memo.
func NewMemoized(next Geocoder) *Memoized {
	return &Memoized{
		next: next,
		memo: make(map[string]models.Geocode),
	}
}

func (m *Memoized) Geocode(ctx context.Context, query string) (models.Geocode, error) {
	m.mu.RLock()
	geo, ok := m.memo[query]
	m.mu.RUnlock()
	if ok {
		observability.GeocodeMemoHitsTotal.Inc()
		return geo, nil
	}

	geo, err := m.next.Geocode(ctx, query)
	if err != nil {
		return models.Geocode{}, err
	}

	m.mu.Lock()
	m.memo[query] = geo
	m.mu.Unlock()
	return geo, nil
}

// Len returns the number of memoized queries.
func (m *Memoized) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.memo)
}
