package models

import (
	"testing"
	"time"
)

func TestWeatherResult_Sunny(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{19, true},
		{25, true},
		{31, true},
		{32, true},
		{33, true},
		{34, true},
		{36, true},
		{0, false},
		{11, false},
		{26, false},
		{35, false},
		{47, false},
	}
	for _, tt := range tests {
		w := WeatherResult{Condition: Condition{Code: tt.code}}
		if got := w.Sunny(); got != tt.want {
			t.Errorf("Sunny() for code %d = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestWeatherResult_ObservedBefore(t *testing.T) {
	now := time.Now()
	w := WeatherResult{Condition: Condition{ObservedAt: now.Add(-2 * time.Hour)}}
	if !w.ObservedBefore(now.Add(-time.Hour)) {
		t.Error("ObservedBefore() = false for 2h old observation, want true")
	}
	w.Condition.ObservedAt = now.Add(-10 * time.Minute)
	if w.ObservedBefore(now.Add(-time.Hour)) {
		t.Error("ObservedBefore() = true for 10m old observation, want false")
	}
}
