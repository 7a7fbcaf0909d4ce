// Package resolver maps free-text locations to the nearest known weather station.
package resolver

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/meteo-lookup-service/internal/geocode"
	"github.com/kjstillabower/meteo-lookup-service/internal/models"
	"github.com/kjstillabower/meteo-lookup-service/internal/observability"
	"github.com/kjstillabower/meteo-lookup-service/internal/stations"
)

// Policy fixes which geocodes are acceptable.
type Policy struct {
	// TargetCountry is the ISO country code a geocode must match exactly, e.g. "IT".
	TargetCountry string
	// CountryQualifier is appended to every query as ", <qualifier>", e.g. "italy".
	CountryQualifier string
}

// Resolver turns location text into a station record.
type Resolver struct {
	geocoder geocode.Geocoder
	stations stations.Store
	policy   Policy
	logger   *zap.Logger
}

// New returns a Resolver. geocoder should already be memoized by the caller
// when process-lifetime memoization is wanted.
func New(geocoder geocode.Geocoder, store stations.Store, policy Policy, logger *zap.Logger) *Resolver {
	return &Resolver{
		geocoder: geocoder,
		stations: store,
		policy:   policy,
		logger:   logger,
	}
}

// Query returns the geocoder query for text.
func (r *Resolver) Query(text string) string {
	if r.policy.CountryQualifier == "" {
		return text
	}
	return text + ", " + r.policy.CountryQualifier
}

// ValidGeocode reports whether geo succeeded, names a city and lies in targetCountry.
func ValidGeocode(geo models.Geocode, targetCountry string) bool {
	return geo.Success && strings.TrimSpace(geo.City) != "" && geo.CountryCode == targetCountry
}

// Resolve returns the station nearest to the geocoded text. ok is false when the
// text does not geocode to a city in the target country, when the geocoder
// fails, or when no station is available. None of these are errors.
func (r *Resolver) Resolve(ctx context.Context, text string) (models.Station, bool) {
	logger := observability.LoggerFromContext(ctx, r.logger)

	geo, err := r.geocoder.Geocode(ctx, r.Query(text))
	if err != nil {
		logger.Warn("geocode failed", zap.String("location", text), zap.Error(err))
		return models.Station{}, false
	}
	if !ValidGeocode(geo, r.policy.TargetCountry) {
		logger.Debug("geocode rejected",
			zap.String("location", text),
			zap.Bool("success", geo.Success),
			zap.String("city", geo.City),
			zap.String("country_code", geo.CountryCode))
		return models.Station{}, false
	}

	station, err := r.stations.Nearest(ctx, geo.Latitude, geo.Longitude)
	if err != nil {
		if errors.Is(err, stations.ErrNoStations) {
			logger.Warn("no stations loaded", zap.String("location", text))
		} else {
			logger.Error("nearest station query failed", zap.String("location", text), zap.Error(err))
		}
		return models.Station{}, false
	}

	logger.Info("location resolved",
		zap.String("city", geo.City),
		zap.String("country_code", geo.CountryCode),
		zap.Float64("lat", geo.Latitude),
		zap.Float64("lng", geo.Longitude),
		zap.String("station_id", station.LocationID),
		zap.String("station_city", station.City))
	return station, true
}
