package stations

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
)

// nearestCandidates is how many rows the planar pre-sort hands to the exact haversine pass.
// The pre-sort scales longitude by cos(lat) and does not wrap at ±180°, so the
// true nearest station is only guaranteed to be among the candidates for a
// regional dataset away from the antimeridian and the poles, such as Italy.
const nearestCandidates = 16

// SQLiteStore keeps stations in the meteo_locations table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the sqlite file at path and ensures the schema.
// The caller must Close the store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open stations db: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.setupDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setup stations db: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) setupDB() error {
	setupCmd := `CREATE TABLE IF NOT EXISTS meteo_locations(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		location_id TEXT NOT NULL,
		city TEXT,
		street_address TEXT,
		full_address TEXT,
		zip TEXT,
		precision TEXT,
		state TEXT,
		country_code TEXT,
		success BOOLEAN DEFAULT 1,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_meteo_locations_location_id ON meteo_locations(location_id);
		CREATE INDEX IF NOT EXISTS idx_meteo_locations_lat_lng ON meteo_locations(lat, lng);`

	_, err := s.db.Exec(setupCmd)
	return err
}

// Upsert inserts stations, replacing rows with the same location_id. Runs in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, stations []models.Station) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO meteo_locations(
		location_id, city, street_address, full_address, zip, precision, state, country_code, lat, lng
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location_id) DO UPDATE SET
		city=excluded.city, street_address=excluded.street_address, full_address=excluded.full_address,
		zip=excluded.zip, precision=excluded.precision, state=excluded.state,
		country_code=excluded.country_code, lat=excluded.lat, lng=excluded.lng,
		updated_at=CURRENT_TIMESTAMP;`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, st := range stations {
		if _, err := stmt.ExecContext(ctx,
			st.LocationID, st.City, st.StreetAddress, st.FullAddress, st.Zip,
			st.Precision, st.State, st.CountryCode, st.Latitude, st.Longitude,
		); err != nil {
			return fmt.Errorf("upsert station %s: %w", st.LocationID, err)
		}
	}
	return tx.Commit()
}

// Nearest pre-sorts rows by an equirectangular approximation in SQL, then
// picks the exact great-circle minimum among the closest candidates.
func (s *SQLiteStore) Nearest(ctx context.Context, lat, lng float64) (models.Station, error) {
	k := math.Cos(lat * math.Pi / 180)
	rows, err := s.db.QueryContext(ctx, `SELECT
		location_id, IFNULL(city, ''), IFNULL(street_address, ''), IFNULL(full_address, ''),
		IFNULL(zip, ''), IFNULL(precision, ''), IFNULL(state, ''), IFNULL(country_code, ''), lat, lng
		FROM meteo_locations
		ORDER BY (lat - ?) * (lat - ?) + ((lng - ?) * ?) * ((lng - ?) * ?)
		LIMIT ?;`, lat, lat, lng, k, lng, k, nearestCandidates)
	if err != nil {
		return models.Station{}, fmt.Errorf("query nearest station: %w", err)
	}
	defer rows.Close()

	var candidates []models.Station
	for rows.Next() {
		var st models.Station
		if err := rows.Scan(&st.LocationID, &st.City, &st.StreetAddress, &st.FullAddress,
			&st.Zip, &st.Precision, &st.State, &st.CountryCode, &st.Latitude, &st.Longitude); err != nil {
			return models.Station{}, fmt.Errorf("scan station: %w", err)
		}
		candidates = append(candidates, st)
	}
	if err := rows.Err(); err != nil {
		return models.Station{}, err
	}

	st, ok := closest(candidates, lat, lng)
	if !ok {
		return models.Station{}, ErrNoStations
	}
	return st, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meteo_locations;`).Scan(&n)
	return n, err
}
