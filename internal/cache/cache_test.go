package cache

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
)

func romeResult(observedAt time.Time) models.WeatherResult {
	return models.WeatherResult{
		Condition: models.Condition{Code: 32, Text: "Sunny", Temperature: 24, ObservedAt: observedAt},
		Station:   models.StationMeta{LocationID: "ITXX0067", City: "Rome", Country: "Italy"},
		Units:     "c",
	}
}

// TestInMemoryCache_GetSet verifies that Set stores values and Get retrieves
// them correctly with the expected data.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	val := romeResult(time.Now())
	if err := c.Set(ctx, "Rome", val, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "Rome")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Station.LocationID != val.Station.LocationID || got.Condition.Temperature != val.Condition.Temperature {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}

// TestInMemoryCache_Get_Miss verifies that Get returns ok=false when
// the requested key does not exist in cache.
func TestInMemoryCache_Get_Miss(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	_, ok, err := c.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies that entries stored with a TTL are
// dropped on access once the TTL has elapsed.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "Rome", romeResult(now), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	now = now.Add(2 * time.Minute)

	_, ok, err := c.Get(ctx, "Rome")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for expired entry")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after expired Get, want 0", c.Len())
	}
}

// TestInMemoryCache_ZeroTTL verifies that a zero TTL keeps the entry indefinitely.
func TestInMemoryCache_ZeroTTL(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "Rome", romeResult(now), 0)
	now = now.Add(365 * 24 * time.Hour)

	if _, ok, _ := c.Get(ctx, "Rome"); !ok {
		t.Error("Get() ok = false, want true for entry without TTL")
	}
}

func TestInMemoryCache_DeleteAndFlush(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	for _, k := range []string{"Rome", "Milan", "Naples"} {
		_ = c.Set(ctx, k, romeResult(time.Now()), 0)
	}

	if err := c.Delete(ctx, "Rome"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Fatalf("Delete() of missing key error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "Rome"); ok {
		t.Error("Get() after Delete ok = true, want false")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}

	if err := c.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() after Flush = %d, want 0", c.Len())
	}
}

// TestInMemoryCache_ConcurrentAccess exercises the cache from many goroutines;
// run with -race.
func TestInMemoryCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	val := romeResult(time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "k" + strconv.Itoa(i%4)
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, key, val, 0)
				_, _, _ = c.Get(ctx, key)
				if j%25 == 0 {
					_ = c.Flush(ctx)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestEncodeKey(t *testing.T) {
	if got := encodeKey("Roma"); got != "Roma" {
		t.Errorf("encodeKey(Roma) = %q, want unchanged", got)
	}
	spaced := encodeKey("Reggio Emilia")
	if spaced == "Reggio Emilia" || !safeKey(spaced) {
		t.Errorf("encodeKey(Reggio Emilia) = %q, want hashed safe key", spaced)
	}
	if encodeKey("Reggio Emilia") != spaced {
		t.Error("encodeKey() not deterministic")
	}
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	if got := encodeKey(string(long)); len(got)+len(keyPrefix) > maxMemcachedKey {
		t.Errorf("encodeKey(long) length = %d, exceeds memcached limit", len(got))
	}
}
