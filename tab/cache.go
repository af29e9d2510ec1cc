package tab

import (
	"time"

	"github.com/bencousins22/tab-mcp/resilience"
)

// Cache presets sized for how quickly each kind of data goes stale.
const (
	apiCacheCapacity = 256
	apiCacheTTL      = 5 * time.Minute

	tokenCacheCapacity = 10
	tokenCacheTTL      = 30 * time.Minute

	raceCacheCapacity = 512
	raceCacheTTL      = time.Minute
)

// NewAPICache returns a cache tuned for general API responses. This is the
// cache New installs on the default client.
func NewAPICache() *resilience.TTLCache {
	return resilience.NewTTLCache(apiCacheCapacity, apiCacheTTL)
}

// NewTokenCache returns a small long-lived cache suited to OAuth token
// introspection responses.
func NewTokenCache() *resilience.TTLCache {
	return resilience.NewTTLCache(tokenCacheCapacity, tokenCacheTTL)
}

// NewRaceCache returns a short-TTL cache for fast-moving race data such as
// pool approximates and next-to-go listings.
func NewRaceCache() *resilience.TTLCache {
	return resilience.NewTTLCache(raceCacheCapacity, raceCacheTTL)
}
