package geocode

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
)

type countingGeocoder struct {
	mu     sync.Mutex
	calls  map[string]int
	result models.Geocode
	err    error
}

func (c *countingGeocoder) Geocode(ctx context.Context, query string) (models.Geocode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[query]++
	return c.result, c.err
}

func TestMemoized_CachesPerQuery(t *testing.T) {
	inner := &countingGeocoder{result: models.Geocode{Success: true, City: "Roma", CountryCode: "IT"}}
	m := NewMemoized(inner)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		geo, err := m.Geocode(ctx, "Rome, italy")
		require.NoError(t, err)
		assert.Equal(t, "Roma", geo.City)
	}
	_, _ = m.Geocode(ctx, "Milan, italy")

	assert.Equal(t, 1, inner.calls["Rome, italy"])
	assert.Equal(t, 1, inner.calls["Milan, italy"])
	assert.Equal(t, 2, m.Len())
}

func TestMemoized_CachesUnsuccessfulGeocodes(t *testing.T) {
	inner := &countingGeocoder{result: models.Geocode{Success: false}}
	m := NewMemoized(inner)

	_, _ = m.Geocode(context.Background(), "Xyzzy, italy")
	_, _ = m.Geocode(context.Background(), "Xyzzy, italy")

	assert.Equal(t, 1, inner.calls["Xyzzy, italy"])
}

func TestMemoized_DoesNotCacheErrors(t *testing.T) {
	inner := &countingGeocoder{err: errors.New("geocoder down")}
	m := NewMemoized(inner)

	_, err := m.Geocode(context.Background(), "Rome, italy")
	require.Error(t, err)
	_, err = m.Geocode(context.Background(), "Rome, italy")
	require.Error(t, err)

	assert.Equal(t, 2, inner.calls["Rome, italy"])
	assert.Equal(t, 0, m.Len())
}

func TestMulti_FirstSuccessWins(t *testing.T) {
	failing := &countingGeocoder{err: errors.New("down")}
	miss := &countingGeocoder{result: models.Geocode{Success: false}}
	hit := &countingGeocoder{result: models.Geocode{Success: true, City: "Roma"}}
	unused := &countingGeocoder{result: models.Geocode{Success: true, City: "Milano"}}

	geo, err := Multi{failing, miss, hit, unused}.Geocode(context.Background(), "Rome, italy")
	require.NoError(t, err)
	assert.Equal(t, "Roma", geo.City)
	assert.Empty(t, unused.calls)
}

func TestMulti_AllFail(t *testing.T) {
	_, err := Multi{&countingGeocoder{err: errors.New("a")}, &countingGeocoder{err: errors.New("b")}}.
		Geocode(context.Background(), "Rome, italy")
	assert.EqualError(t, err, "b")

	geo, err := Multi{&countingGeocoder{err: errors.New("a")}, &countingGeocoder{}}.
		Geocode(context.Background(), "Rome, italy")
	assert.NoError(t, err)
	assert.False(t, geo.Success)
}
