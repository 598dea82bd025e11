package metering

import (
	"context"
	"time"

	"github.com/creto-systems/enablement/pkg/common"
)

// EnforcerConfig bundles the three hot-path tiers' sizing.
type EnforcerConfig struct {
	Bloom BloomConfig
	Cache CacheConfig
}

// DefaultEnforcerConfig returns the reference sizing for all three tiers.
func DefaultEnforcerConfig() EnforcerConfig {
	return EnforcerConfig{Bloom: DefaultBloomConfig(), Cache: DefaultCacheConfig()}
}

// QuotaEnforcer answers "is this usage within quota" through three tiers of
// increasing cost and authority: a Bloom filter whose "not configured"
// answer is always trustworthy (it has no false negatives, while a
// "maybe configured" answer falls through to the next tier), an expiring
// LRU cache of recent statuses, and the authoritative repository.
type QuotaEnforcer struct {
	bloom *QuotaBloomFilter
	cache *QuotaStatusCache
	repo  QuotaRepository

	defaultLimit int64
	now          func() time.Time
}

// NewQuotaEnforcer builds an enforcer over repo with the given default
// limit applied to quotas seen for the first time.
func NewQuotaEnforcer(config EnforcerConfig, repo QuotaRepository, defaultLimit int64) *QuotaEnforcer {
	return &QuotaEnforcer{
		bloom:        NewQuotaBloomFilter(config.Bloom),
		cache:        NewQuotaStatusCache(config.Cache),
		repo:         repo,
		defaultLimit: defaultLimit,
		now:          time.Now,
	}
}

// Check reports whether amount can be charged against key without
// exceeding its quota. It does not mutate usage; call Commit to actually
// charge it (see the two-phase reservation protocol in reservation.go) or
// call CheckAndCharge for a single-shot, non-reserving increment.
func (e *QuotaEnforcer) Check(ctx context.Context, key QuotaKey, amount int64) (*QuotaCheckResult, error) {
	if !e.bloom.MightBeConfigured(key) {
		// Bloom filter guarantees no false negatives: a key not marked
		// configured has definitely never been charged, so Used is known
		// to be zero and the request can be checked against the default
		// limit without consulting the cache or repository tiers.
		fresh := Quota{Key: key, Limit: e.defaultLimit}
		return &QuotaCheckResult{Allowed: !fresh.Exceeded(amount), Status: statusOf(&fresh), Source: SourceBloom}, nil
	}

	if status, ok := e.cache.Get(key); ok {
		allowed := status.Used+amount <= status.Limit
		return &QuotaCheckResult{Allowed: allowed, Status: status, Source: SourceCache}, nil
	}

	quota, err := e.repo.GetQuota(ctx, key)
	if err != nil {
		return nil, err
	}
	if quota == nil {
		start, end := key.Period.Window(e.now())
		quota = &Quota{Key: key, Limit: e.defaultLimit, PeriodStart: start, PeriodEnd: end}
	}
	status := statusOf(quota)
	e.cache.Set(key, status)

	return &QuotaCheckResult{Allowed: !quota.Exceeded(amount), Status: status, Source: SourceRepository}, nil
}

// CheckAndCharge atomically checks and, if allowed, charges amount against
// key's authoritative usage. Fails closed: any repository error denies the
// request.
func (e *QuotaEnforcer) CheckAndCharge(ctx context.Context, key QuotaKey, amount int64) (*QuotaCheckResult, error) {
	result, err := e.Check(ctx, key, amount)
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		return result, common.QuotaExceeded(key.MetricCode, result.Status.Used, result.Status.Limit)
	}

	quota, err := e.repo.IncrementUsage(ctx, key, amount, e.defaultLimit, e.now())
	if err != nil {
		return nil, err
	}
	status := statusOf(quota)
	e.cache.Set(key, status)
	e.bloom.MarkConfigured(key)
	return &QuotaCheckResult{Allowed: true, Status: status, Source: SourceRepository}, nil
}

// InvalidateCache drops any cached status for key, forcing the next Check
// to consult the repository. Used after an out-of-band limit change.
func (e *QuotaEnforcer) InvalidateCache(key QuotaKey) {
	e.cache.Invalidate(key)
}
