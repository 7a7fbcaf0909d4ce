package stations

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
)

// ParseCSV reads station rows with a header matching the meteo_locations columns
// (location_id, city, lat, lng, street_address, full_address, zip, precision, state, country_code).
// Rows without a location_id are rejected.
func ParseCSV(r io.Reader) ([]models.Station, error) {
	var rows []models.Station
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse stations csv: %w", err)
	}
	for i := range rows {
		rows[i].LocationID = strings.TrimSpace(rows[i].LocationID)
		if rows[i].LocationID == "" {
			return nil, fmt.Errorf("parse stations csv: row %d: location_id is required", i+2)
		}
	}
	return rows, nil
}

// LoadCSVFile parses the CSV file at path.
func LoadCSVFile(path string) ([]models.Station, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stations csv: %w", err)
	}
	defer f.Close()
	return ParseCSV(f)
}
