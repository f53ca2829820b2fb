package ratelimit

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Enabled:       true,
		DefaultLimit:  5,
		DefaultWindow: time.Minute,
		Whitelist:     map[string]bool{"10.0.0.1": true},
		EndpointConfigs: []EndpointConfig{
			{Path: "/packages", Method: http.MethodPost, Limit: 2, Window: time.Hour, Burst: 2},
			{Path: "/packages/", Method: http.MethodGet, Limit: 3, Window: time.Minute},
		},
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(&Config{})
	defer l.Stop()
	for i := 0; i < 100; i++ {
		allowed, _ := l.Allow("c", "/packages", http.MethodPost)
		require.True(t, allowed)
	}
}

func TestLimiter_EndpointLimit(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	allowed, info := l.Allow("c", "/packages", http.MethodPost)
	assert.True(t, allowed)
	assert.Equal(t, 2, info.Limit)
	assert.Equal(t, 1, info.Remaining)

	allowed, _ = l.Allow("c", "/packages", http.MethodPost)
	assert.True(t, allowed)

	allowed, info = l.Allow("c", "/packages", http.MethodPost)
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.InDelta(t, 30*time.Minute, info.RetryAfter, float64(time.Second))
	assert.True(t, info.ResetTime.After(now))

	// one token refills every 30 minutes
	now = now.Add(30 * time.Minute)
	allowed, _ = l.Allow("c", "/packages", http.MethodPost)
	assert.True(t, allowed)
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()
	for i := 0; i < 2; i++ {
		allowed, _ := l.Allow("a", "/packages", http.MethodPost)
		require.True(t, allowed)
	}
	allowed, _ := l.Allow("a", "/packages", http.MethodPost)
	assert.False(t, allowed)
	allowed, _ = l.Allow("b", "/packages", http.MethodPost)
	assert.True(t, allowed)
}

func TestLimiter_Whitelist(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()
	for i := 0; i < 10; i++ {
		allowed, _ := l.Allow("10.0.0.1", "/packages", http.MethodPost)
		require.True(t, allowed)
	}
}

func TestLimiter_DefaultLimit(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()
	for i := 0; i < 5; i++ {
		allowed, info := l.Allow("c", "/prompts", http.MethodPost)
		require.True(t, allowed)
		assert.Equal(t, 5, info.Limit)
	}
	allowed, _ := l.Allow("c", "/prompts", http.MethodPost)
	assert.False(t, allowed)
}

func TestLimiter_HealthUnlimited(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()
	for i := 0; i < 50; i++ {
		allowed, _ := l.Allow("c", "/health", http.MethodGet)
		require.True(t, allowed)
	}
}

func TestLimiter_Prune(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()
	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow("c", "/packages", http.MethodPost)
	require.Len(t, l.buckets, 1)

	l.prune(now.Add(time.Second))
	assert.Empty(t, l.buckets)
}

func TestLimiter_Concurrent(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	var mu sync.Mutex
	allowedCount := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("c", "/packages", http.MethodPost); ok {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, allowedCount)
}

func TestMatchEndpoint(t *testing.T) {
	configs := testConfig().EndpointConfigs

	ec := MatchEndpoint("/packages", http.MethodPost, configs)
	require.NotNil(t, ec)
	assert.Equal(t, 2, ec.Limit)

	ec = MatchEndpoint("/packages/abc/archive", http.MethodGet, configs)
	require.NotNil(t, ec)
	assert.Equal(t, "/packages/", ec.Path)

	assert.Nil(t, MatchEndpoint("/packages", http.MethodGet, configs))
	assert.Nil(t, MatchEndpoint("/prompts", http.MethodPost, configs))

	ec = MatchEndpoint("/metrics", http.MethodGet, configs)
	require.NotNil(t, ec)
	assert.Zero(t, ec.Limit)
}

func TestMatchEndpoint_LongestPrefix(t *testing.T) {
	configs := []EndpointConfig{
		{Path: "/packages/", Method: http.MethodGet, Limit: 100, Window: time.Minute},
		{Path: "/packages/archive/", Method: http.MethodGet, Limit: 5, Window: time.Minute},
	}
	ec := MatchEndpoint("/packages/archive/x", http.MethodGet, configs)
	require.NotNil(t, ec)
	assert.Equal(t, 5, ec.Limit)

	ec = MatchEndpoint("/packages/x", http.MethodGet, configs)
	require.NotNil(t, ec)
	assert.Equal(t, 100, ec.Limit)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(0, []string{" 127.0.0.1 ", ""})
	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.Whitelist["127.0.0.1"])
	assert.Len(t, cfg.Whitelist, 1)
	ec := MatchEndpoint("/packages/stream", http.MethodPost, cfg.EndpointConfigs)
	require.NotNil(t, ec)
	assert.Equal(t, 10, ec.Limit)
	assert.Equal(t, time.Hour, ec.Window)
}
