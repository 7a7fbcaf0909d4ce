package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
)

func TestRequestCoalescer_GetOrDo_ConcurrentRequests(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	callCount := 0
	var mu sync.Mutex

	fn := func() (models.WeatherResult, bool) {
		mu.Lock()
		callCount++
		mu.Unlock()
		time.Sleep(50 * time.Millisecond) // Simulate API call
		return models.WeatherResult{Station: models.StationMeta{LocationID: "ITXX0067"}}, true
	}

	var wg sync.WaitGroup
	results := make([]models.WeatherResult, 10)
	oks := make([]bool, 10)
	shared := make([]bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			var err error
			results[idx], oks[idx], shared[idx], err = coalescer.GetOrDo(context.Background(), "Roma", fn)
			if err != nil {
				t.Errorf("Request %d error = %v, want nil", idx, err)
			}
		}(i)
	}
	wg.Wait()

	sharedCount := 0
	for i, result := range results {
		if !oks[i] || result.Station.LocationID != "ITXX0067" {
			t.Errorf("Request %d = %+v, %v; want ITXX0067, true", i, result, oks[i])
		}
		if shared[i] {
			sharedCount++
		}
	}
	if callCount != 1 {
		t.Errorf("fn call count = %d, want 1 (coalescing failed)", callCount)
	}
	if sharedCount != 9 {
		t.Errorf("shared results = %d, want 9", sharedCount)
	}
	if coalescer.inFlightCount() != 0 {
		t.Errorf("inFlightCount() = %d after completion, want 0", coalescer.inFlightCount())
	}
}

func TestRequestCoalescer_GetOrDo_AbsentPropagation(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	fn := func() (models.WeatherResult, bool) {
		time.Sleep(20 * time.Millisecond)
		return models.WeatherResult{}, false
	}

	var wg sync.WaitGroup
	oks := make([]bool, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, oks[idx], _, _ = coalescer.GetOrDo(context.Background(), "Paris", fn)
		}(i)
	}
	wg.Wait()

	for i, ok := range oks {
		if ok {
			t.Errorf("Request %d ok = true, want false", i)
		}
	}
}

func TestRequestCoalescer_GetOrDo_Timeout(t *testing.T) {
	coalescer := newRequestCoalescer(100 * time.Millisecond)

	fn := func() (models.WeatherResult, bool) {
		time.Sleep(200 * time.Millisecond) // Longer than timeout
		return models.WeatherResult{}, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, ok, _, err := coalescer.GetOrDo(ctx, "Roma", fn)
	if err == nil {
		t.Fatal("GetOrDo() error = nil, want timeout error")
	}
	if ok {
		t.Error("GetOrDo() ok = true on timeout")
	}
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		t.Errorf("GetOrDo() error = %v, want context deadline exceeded or canceled", err)
	}
}

func TestRequestCoalescer_GetOrDo_DifferentKeys(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	callCount := 0
	var mu sync.Mutex

	fn := func() (models.WeatherResult, bool) {
		mu.Lock()
		callCount++
		mu.Unlock()
		return models.WeatherResult{}, true
	}

	// Different keys should not coalesce
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _, _, _ = coalescer.GetOrDo(context.Background(), key, fn)
		}("key" + string(rune('a'+i)))
	}
	wg.Wait()

	mu.Lock()
	actualCalls := callCount
	mu.Unlock()
	if actualCalls != 5 {
		t.Errorf("fn call count = %d, want 5 (no coalescing for different keys)", actualCalls)
	}
}
