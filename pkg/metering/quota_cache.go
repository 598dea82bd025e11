package metering

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheConfig sizes and ages the quota status cache tier.
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// DefaultCacheConfig returns the reference cache sizing: 10,000 entries
// held for 500ms, short enough that a quota update elsewhere becomes
// visible quickly while still absorbing the bulk of repeated checks within
// the p99 < 10µs hot-path target.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{Size: 10_000, TTL: 500 * time.Millisecond}
}

// QuotaStatusCache is the second tier of the quota hot path: an
// expiring LRU cache of recently-checked quota statuses, consulted only
// when the Bloom filter tier can't rule a key out.
type QuotaStatusCache struct {
	cache *expirable.LRU[string, QuotaStatus]
}

// NewQuotaStatusCache builds a cache sized per config.
func NewQuotaStatusCache(config CacheConfig) *QuotaStatusCache {
	return &QuotaStatusCache{cache: expirable.NewLRU[string, QuotaStatus](config.Size, nil, config.TTL)}
}

func (c *QuotaStatusCache) Get(key QuotaKey) (QuotaStatus, bool) {
	return c.cache.Get(key.String())
}

func (c *QuotaStatusCache) Set(key QuotaKey, status QuotaStatus) {
	c.cache.Add(key.String(), status)
}

func (c *QuotaStatusCache) Invalidate(key QuotaKey) {
	c.cache.Remove(key.String())
}
