package stations

import (
	"context"
	"fmt"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
)

// Upserter is a Store that accepts bulk writes.
type Upserter interface {
	Store
	Upsert(ctx context.Context, stations []models.Station) error
}

// Import loads the CSV at path into store and returns the number of rows written.
func Import(ctx context.Context, store Upserter, path string) (int, error) {
	rows, err := LoadCSVFile(path)
	if err != nil {
		return 0, err
	}
	if err := store.Upsert(ctx, rows); err != nil {
		return 0, fmt.Errorf("import stations: %w", err)
	}
	return len(rows), nil
}

// SeedIfEmpty imports the CSV at path only when store has no rows.
// An empty path is a no-op. Returns the number of rows written.
func SeedIfEmpty(ctx context.Context, store Upserter, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	n, err := store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count stations: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	return Import(ctx, store, path)
}
