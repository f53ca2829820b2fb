package ratelimit

import (
	"net/http"
	"strings"
	"time"
)

// EndpointConfig is the limit for one endpoint.
type EndpointConfig struct {
	Path   string        // exact path, or a prefix when it ends in "/"
	Method string        // HTTP method
	Limit  int           // requests per window; 0 means unlimited
	Window time.Duration // refill window
	Burst  int           // burst capacity, defaults to Limit
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// DefaultConfig limits package builds to packagesPerHour per client with a
// burst of two; everything else gets a generous per-minute default.
func DefaultConfig(packagesPerHour int, whitelist []string) *Config {
	if packagesPerHour <= 0 {
		packagesPerHour = 10
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    600,
		DefaultWindow:   time.Minute,
		CleanupInterval: 5 * time.Minute,
		Whitelist:       parseIPList(whitelist),
		EndpointConfigs: DefaultEndpointConfigs(packagesPerHour),
	}
}

// DefaultEndpointConfigs returns the per-endpoint limits.
func DefaultEndpointConfigs(packagesPerHour int) []EndpointConfig {
	return []EndpointConfig{
		// package builds drive a browser and the model for minutes at a time
		{Path: "/packages", Method: http.MethodPost, Limit: packagesPerHour, Window: time.Hour, Burst: 2},
		{Path: "/packages/stream", Method: http.MethodPost, Limit: packagesPerHour, Window: time.Hour, Burst: 2},
		{Path: "/prompts", Method: http.MethodPost, Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/packages/", Method: http.MethodGet, Limit: 120, Window: time.Minute, Burst: 20},
	}
}

func parseIPList(ips []string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range ips {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
