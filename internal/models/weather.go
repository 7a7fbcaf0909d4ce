package models

import "time"

// Condition is the current observation reported by the weather provider.
type Condition struct {
	Code        int       `json:"code" xml:"code"`
	Text        string    `json:"text" xml:"text"`
	Temperature float64   `json:"temperature" xml:"temperature"`
	ObservedAt  time.Time `json:"observedAt" xml:"observed-at"`
}

// StationMeta describes the station as reported back by the weather provider.
type StationMeta struct {
	LocationID string `json:"locationId" xml:"location-id"`
	City       string `json:"city" xml:"city"`
	Region     string `json:"region,omitempty" xml:"region,omitempty"`
	Country    string `json:"country,omitempty" xml:"country,omitempty"`
}

type WeatherResult struct {
	Condition Condition   `json:"condition" xml:"condition"`
	Station   StationMeta `json:"station" xml:"station"`
	Units     string      `json:"units" xml:"units"`
	Link      string      `json:"link,omitempty" xml:"link,omitempty"`
	FetchedAt time.Time   `json:"fetchedAt" xml:"fetched-at"`
}

// sunnyCodes are provider condition codes rendered with the sun icon.
var sunnyCodes = map[int]struct{}{
	19: {}, 25: {}, 31: {}, 32: {}, 33: {}, 34: {}, 36: {},
}

// Sunny reports whether the condition code is one of the sunny codes.
func (w WeatherResult) Sunny() bool {
	_, ok := sunnyCodes[w.Condition.Code]
	return ok
}

// ObservedBefore reports whether the observation is older than cutoff.
func (w WeatherResult) ObservedBefore(cutoff time.Time) bool {
	return w.Condition.ObservedAt.Before(cutoff)
}
