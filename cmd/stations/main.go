package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kjstillabower/meteo-lookup-service/internal/observability"
	"github.com/kjstillabower/meteo-lookup-service/internal/stations"
)

func main() {
	var (
		dbPath    = flag.String("db", "meteo.db", "path to the stations sqlite database")
		csvPath   = flag.String("csv", "config/stations.csv", "station CSV to import")
		queryLat  = flag.Float64("lat", 0, "latitude for a nearest-station check after import")
		queryLng  = flag.Float64("lng", 0, "longitude for a nearest-station check after import")
		logLevel  = flag.String("log-level", "info", "log level (debug, info, warn, error)")
		checkOnly = flag.Bool("check", false, "skip the import and only report counts and the nearest station")
	)
	flag.Parse()

	logger, err := observability.NewLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	store, err := stations.OpenSQLite(*dbPath)
	if err != nil {
		logger.Fatal("unable to open stations db", zap.String("db", *dbPath), zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if !*checkOnly {
		n, err := stations.Import(ctx, store, *csvPath)
		if err != nil {
			logger.Error("unable to import stations", zap.String("csv", *csvPath), zap.Error(err))
			return
		}
		logger.Info("imported stations", zap.String("csv", *csvPath), zap.Int("rows", n))
	}

	total, err := store.Count(ctx)
	if err != nil {
		logger.Error("unable to count stations", zap.Error(err))
		return
	}
	logger.Info("station table", zap.String("db", *dbPath), zap.Int("count", total))

	if *queryLat != 0 || *queryLng != 0 {
		st, err := store.Nearest(ctx, *queryLat, *queryLng)
		if err != nil {
			logger.Warn("nearest station lookup failed", zap.Error(err))
			return
		}
		logger.Info("nearest station",
			zap.String("location_id", st.LocationID),
			zap.String("city", st.City),
			zap.Float64("distance_km", stations.DistanceKm(*queryLat, *queryLng, st.Latitude, st.Longitude)),
		)
	}
}
