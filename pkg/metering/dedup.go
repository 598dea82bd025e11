package metering

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// DedupConfig bounds the Deduplicator's in-memory fallback.
type DedupConfig struct {
	MaxEntries int // 0 uses DefaultDedupMaxEntries
}

// DefaultDedupMaxEntries bounds the size of the in-memory dedup fallback.
const DefaultDedupMaxEntries = 1_000_000

// DedupResult reports whether a transaction ID had already been seen.
type DedupResult struct {
	Duplicate bool
}

// Deduplicator rejects events carrying a transaction ID already processed.
// The interface is intentionally storage-agnostic: a production deployment
// backs it with a shared cache (e.g. Redis) so dedup holds across process
// restarts and multiple ingestion workers; the reference implementation
// here is a bounded in-memory LRU for tests and single-process use.
type Deduplicator interface {
	Check(ctx context.Context, transactionID string) (DedupResult, error)
	Mark(ctx context.Context, transactionID string) error
}

// InMemoryDeduplicator is the bounded-LRU reference Deduplicator.
type InMemoryDeduplicator struct {
	seen *lru.Cache[string, struct{}]
}

// NewInMemoryDeduplicator creates a deduplicator bounded by config.
func NewInMemoryDeduplicator(config DedupConfig) (*InMemoryDeduplicator, error) {
	max := config.MaxEntries
	if max <= 0 {
		max = DefaultDedupMaxEntries
	}
	cache, err := lru.New[string, struct{}](max)
	if err != nil {
		return nil, err
	}
	return &InMemoryDeduplicator{seen: cache}, nil
}

func (d *InMemoryDeduplicator) Check(ctx context.Context, transactionID string) (DedupResult, error) {
	if err := ctx.Err(); err != nil {
		return DedupResult{}, err
	}
	if transactionID == "" {
		return DedupResult{}, nil
	}
	_, ok := d.seen.Get(transactionID)
	return DedupResult{Duplicate: ok}, nil
}

func (d *InMemoryDeduplicator) Mark(ctx context.Context, transactionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if transactionID == "" {
		return nil
	}
	d.seen.Add(transactionID, struct{}{})
	return nil
}

// RedisDeduplicator is the cross-process Deduplicator: transaction IDs are
// marked with a TTL'd SETNX-style key so dedup holds across ingestion
// worker restarts and horizontal scale-out, unlike InMemoryDeduplicator.
type RedisDeduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduplicator wraps an already-configured redis.Client. ttl <= 0
// defaults to 24h, long enough to dedup retried deliveries within a
// billing period without growing the keyspace unbounded.
func NewRedisDeduplicator(client *redis.Client, ttl time.Duration) *RedisDeduplicator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduplicator{client: client, ttl: ttl}
}

func (d *RedisDeduplicator) Check(ctx context.Context, transactionID string) (DedupResult, error) {
	if transactionID == "" {
		return DedupResult{}, nil
	}
	n, err := d.client.Exists(ctx, dedupKey(transactionID)).Result()
	if err != nil {
		return DedupResult{}, err
	}
	return DedupResult{Duplicate: n > 0}, nil
}

func (d *RedisDeduplicator) Mark(ctx context.Context, transactionID string) error {
	if transactionID == "" {
		return nil
	}
	return d.client.Set(ctx, dedupKey(transactionID), 1, d.ttl).Err()
}

func dedupKey(transactionID string) string {
	return "metering:dedup:" + transactionID
}
