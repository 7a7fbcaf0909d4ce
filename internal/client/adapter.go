package client

import (
	"context"

	"go.uber.org/zap"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
	"github.com/kjstillabower/meteo-lookup-service/internal/observability"
)

// Adapter is the boundary between lookups and the weather provider. Every
// provider failure becomes an absent result; errors never cross it.
type Adapter struct {
	client WeatherClient
	logger *zap.Logger
}

// NewAdapter wraps client. logger may be nil.
func NewAdapter(client WeatherClient, logger *zap.Logger) *Adapter {
	return &Adapter{client: client, logger: logger}
}

// Fetch returns the current weather for stationID, or ok=false on any failure.
func (a *Adapter) Fetch(ctx context.Context, stationID, units string) (models.WeatherResult, bool) {
	result, err := a.client.GetCurrentWeather(ctx, stationID, units)
	if err != nil {
		category := CategorizeError(err)
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(category)).Inc()
		observability.LoggerFromContext(ctx, a.logger).Warn("weather unavailable",
			zap.String("station_id", stationID),
			zap.String("category", string(category)),
			zap.Error(err))
		return models.WeatherResult{}, false
	}
	return result, true
}
