package stations

import (
	"context"
	"sync"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
)

// MemoryStore keeps the dataset in a slice and scans it linearly.
type MemoryStore struct {
	mu       sync.RWMutex
	stations []models.Station
}

// NewMemoryStore returns a store holding a copy of stations.
func NewMemoryStore(stations []models.Station) *MemoryStore {
	s := &MemoryStore{}
	s.Replace(stations)
	return s
}

// Replace swaps the whole dataset.
func (s *MemoryStore) Replace(stations []models.Station) {
	cp := make([]models.Station, len(stations))
	copy(cp, stations)
	s.mu.Lock()
	s.stations = cp
	s.mu.Unlock()
}

func (s *MemoryStore) Nearest(ctx context.Context, lat, lng float64) (models.Station, error) {
	if err := ctx.Err(); err != nil {
		return models.Station{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := closest(s.stations, lat, lng)
	if !ok {
		return models.Station{}, ErrNoStations
	}
	return st, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stations), nil
}
