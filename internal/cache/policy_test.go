package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlushAllOnStale_Evaluate(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	p := FlushAllOnStale{Window: time.Hour}

	assert.Equal(t, Keep, p.Evaluate(romeResult(now.Add(-10*time.Minute)), now))
	assert.Equal(t, Keep, p.Evaluate(romeResult(now.Add(-time.Hour)), now), "exactly at the window edge is fresh")
	assert.Equal(t, FlushAll, p.Evaluate(romeResult(now.Add(-61*time.Minute)), now))
}

func TestPerKeyExpiry_Evaluate(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	p := PerKeyExpiry{Window: time.Hour}

	assert.Equal(t, Keep, p.Evaluate(romeResult(now.Add(-30*time.Minute)), now))
	assert.Equal(t, EvictKey, p.Evaluate(romeResult(now.Add(-2*time.Hour)), now))
}

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy("", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, PolicyFlushAll, p.Name())

	p, err = NewPolicy(PolicyPerKey, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, PerKeyExpiry{Window: 30 * time.Minute}, p)

	_, err = NewPolicy("lru", time.Hour)
	assert.Error(t, err)

	_, err = NewPolicy(PolicyFlushAll, 0)
	assert.Error(t, err)
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "keep", Keep.String())
	assert.Equal(t, "evict_key", EvictKey.String())
	assert.Equal(t, "flush_all", FlushAll.String())
}
