package metering

import (
	"context"
	"sync"
	"time"

	"github.com/creto-systems/enablement/pkg/common"
)

// InMemoryQuotaRepository is the reference QuotaRepository: a
// mutex-guarded map keyed by QuotaKey. IncrementUsage takes the current
// time as a parameter, so period rollover is deterministic under test.
// PostgresQuotaRepository (postgres.go) is the durable alternative.
type InMemoryQuotaRepository struct {
	mu     sync.Mutex
	quotas map[string]*Quota
	limits map[string]int64
}

// NewInMemoryQuotaRepository creates an empty repository.
func NewInMemoryQuotaRepository() *InMemoryQuotaRepository {
	return &InMemoryQuotaRepository{quotas: make(map[string]*Quota), limits: make(map[string]int64)}
}

func (r *InMemoryQuotaRepository) GetQuota(ctx context.Context, key QuotaKey) (*Quota, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotas[key.String()]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (r *InMemoryQuotaRepository) IncrementUsage(ctx context.Context, key QuotaKey, amount int64, defaultLimit int64, now time.Time) (*Quota, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.quotas[key.String()]
	if !ok {
		limit := defaultLimit
		if custom, hasCustom := r.limits[key.String()]; hasCustom {
			limit = custom
		}
		start, end := key.Period.Window(now)
		q = &Quota{Key: key, Limit: limit, PeriodStart: start, PeriodEnd: end}
		r.quotas[key.String()] = q
	}

	if !now.Before(q.PeriodEnd) {
		start, end := key.Period.Window(now)
		q.PeriodStart, q.PeriodEnd = start, end
		q.Used = 0
	}

	q.Used += amount
	result := *q
	return &result, nil
}

func (r *InMemoryQuotaRepository) SetLimit(ctx context.Context, key QuotaKey, limit int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits[key.String()] = limit
	if q, ok := r.quotas[key.String()]; ok {
		q.Limit = limit
	}
	return nil
}

// EventRepository persists ingested usage events. InMemoryEventRepository
// is the reference implementation; PostgresEventRepository (postgres.go) is
// the durable one.
type EventRepository interface {
	Store(ctx context.Context, event UsageEvent) error
	ListByOrganization(ctx context.Context, org common.OrganizationId, start, end common.Timestamp) ([]UsageEvent, error)
}

// InMemoryEventRepository is the reference EventRepository.
type InMemoryEventRepository struct {
	mu     sync.Mutex
	events []UsageEvent
}

// NewInMemoryEventRepository creates an empty event repository.
func NewInMemoryEventRepository() *InMemoryEventRepository {
	return &InMemoryEventRepository{}
}

func (r *InMemoryEventRepository) Store(ctx context.Context, event UsageEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *InMemoryEventRepository) ListByOrganization(ctx context.Context, org common.OrganizationId, start, end common.Timestamp) ([]UsageEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []UsageEvent
	for _, e := range r.events {
		if e.OrganizationID != org {
			continue
		}
		if e.Timestamp < start || e.Timestamp >= end {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
