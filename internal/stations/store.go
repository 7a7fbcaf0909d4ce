// Package stations holds the weather station reference dataset and answers
// nearest-station queries.
package stations

import (
	"context"
	"errors"
	"math"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
)

// ErrNoStations is returned by Nearest when the dataset is empty.
var ErrNoStations = errors.New("no weather stations loaded")

// Store is the station reference dataset.
type Store interface {
	// Nearest returns the station closest to (lat, lng) by great-circle distance.
	Nearest(ctx context.Context, lat, lng float64) (models.Station, error)
	Count(ctx context.Context) (int, error)
}

const earthRadiusKm = 6371.0

// DistanceKm returns the haversine distance between two points in kilometres.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// closest returns the station in candidates nearest to (lat, lng).
func closest(candidates []models.Station, lat, lng float64) (models.Station, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, s := range candidates {
		if d := DistanceKm(lat, lng, s.Latitude, s.Longitude); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return models.Station{}, false
	}
	return candidates[best], true
}
