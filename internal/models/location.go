package models

// Geocode is structured location data derived from free text.
// Empty City or CountryCode means the provider did not report one.
type Geocode struct {
	Success     bool    `json:"success"`
	City        string  `json:"city,omitempty"`
	CountryCode string  `json:"countryCode,omitempty"`
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lng"`
	Provider    string  `json:"provider,omitempty"`
}

// Station is a fixed weather-reporting point. Rows mirror the meteo_locations table.
type Station struct {
	LocationID    string  `json:"locationId" csv:"location_id"`
	City          string  `json:"city" csv:"city"`
	StreetAddress string  `json:"streetAddress,omitempty" csv:"street_address"`
	FullAddress   string  `json:"fullAddress,omitempty" csv:"full_address"`
	Zip           string  `json:"zip,omitempty" csv:"zip"`
	Precision     string  `json:"precision,omitempty" csv:"precision"`
	State         string  `json:"state,omitempty" csv:"state"`
	CountryCode   string  `json:"countryCode,omitempty" csv:"country_code"`
	Latitude      float64 `json:"lat" csv:"lat"`
	Longitude     float64 `json:"lng" csv:"lng"`
}
