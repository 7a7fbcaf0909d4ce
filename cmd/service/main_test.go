package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/kjstillabower/meteo-lookup-service/internal/cache"
	"github.com/kjstillabower/meteo-lookup-service/internal/config"
)

func TestNewCache_SelectsBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	tests := []struct {
		name     string
		cfg      config.Config
		wantName string
		wantPing bool
	}{
		{"in memory", config.Config{CacheBackend: cache.BackendInMemory}, cache.BackendInMemory, false},
		{"unknown falls back to in memory", config.Config{CacheBackend: ""}, cache.BackendInMemory, false},
		{"memcached", config.Config{CacheBackend: cache.BackendMemcached, MemcachedAddrs: "127.0.0.1:11211", MemcachedTimeout: 100 * time.Millisecond}, cache.BackendMemcached, true},
		{"redis", config.Config{CacheBackend: cache.BackendRedis, RedisAddr: mr.Addr(), RedisTimeout: time.Second}, cache.BackendRedis, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ping, closeCache := newCache(&tt.cfg, zap.NewNop())
			defer closeCache()

			if c.Name() != tt.wantName {
				t.Errorf("backend = %q, want %q", c.Name(), tt.wantName)
			}
			if (ping != nil) != tt.wantPing {
				t.Errorf("ping set = %v, want %v", ping != nil, tt.wantPing)
			}
		})
	}
}

func TestNewCache_RedisPingReachesServer(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{CacheBackend: cache.BackendRedis, RedisAddr: mr.Addr(), RedisTimeout: time.Second}

	_, ping, closeCache := newCache(cfg, zap.NewNop())
	defer closeCache()

	if err := ping(context.Background()); err != nil {
		t.Errorf("ping() error = %v", err)
	}
	mr.Close()
	if err := ping(context.Background()); err == nil {
		t.Error("ping() after server close = nil, want error")
	}
}

func TestGeocoderComponent(t *testing.T) {
	tests := []struct {
		index int
		want  string
	}{
		{0, "geocoder"},
		{1, "geocoder_fallback_1"},
		{3, "geocoder_fallback_3"},
	}
	for _, tt := range tests {
		if got := geocoderComponent(tt.index); got != tt.want {
			t.Errorf("geocoderComponent(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}
