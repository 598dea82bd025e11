package metering

import (
	"context"
	"time"

	"github.com/creto-systems/enablement/pkg/common"
)

// QuotaPeriod is the billing window a quota resets on.
type QuotaPeriod string

const (
	PeriodHourly  QuotaPeriod = "hourly"
	PeriodDaily   QuotaPeriod = "daily"
	PeriodMonthly QuotaPeriod = "monthly"
)

// Window returns the [start, end) period containing now for p.
func (p QuotaPeriod) Window(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	switch p {
	case PeriodHourly:
		start := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, time.UTC)
		return start, start.Add(time.Hour)
	case PeriodMonthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default: // PeriodDaily
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.Add(24 * time.Hour)
	}
}

// QuotaKey identifies one quota counter: an organization's (optionally
// agent-scoped) usage of a metric within a period.
type QuotaKey struct {
	OrganizationID common.OrganizationId
	AgentID        common.AgentId // zero value means org-wide
	MetricCode     string
	Period         QuotaPeriod
}

// String renders a stable cache/bloom key for k.
func (k QuotaKey) String() string {
	agent := "*"
	if !k.AgentID.IsZero() {
		agent = k.AgentID.String()
	}
	return k.OrganizationID.String() + "|" + agent + "|" + k.MetricCode + "|" + string(k.Period)
}

// Quota is the authoritative limit/usage record for a QuotaKey.
type Quota struct {
	Key         QuotaKey
	Limit       int64
	Used        int64
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Remaining returns the quota headroom; never negative.
func (q Quota) Remaining() int64 {
	r := q.Limit - q.Used
	if r < 0 {
		return 0
	}
	return r
}

// Exceeded reports whether adding amount to Used would breach Limit.
func (q Quota) Exceeded(amount int64) bool {
	return q.Used+amount > q.Limit
}

// QuotaStatus is the cached/returned view of a quota check.
type QuotaStatus struct {
	Key       QuotaKey
	Limit     int64
	Used      int64
	Remaining int64
}

func statusOf(q *Quota) QuotaStatus {
	return QuotaStatus{Key: q.Key, Limit: q.Limit, Used: q.Used, Remaining: q.Remaining()}
}

// CheckSource records which tier of the quota hot path answered a check —
// useful for latency-budget observability (Bloom < Cache < Repository).
type CheckSource string

const (
	SourceBloom      CheckSource = "bloom"
	SourceCache      CheckSource = "cache"
	SourceRepository CheckSource = "repository"
)

// QuotaCheckResult is the outcome of QuotaEnforcer.Check.
type QuotaCheckResult struct {
	Allowed bool
	Status  QuotaStatus
	Source  CheckSource
}

// QuotaRepository is the authoritative, durable source of quota state.
// InMemoryQuotaRepository is the in-process reference implementation used
// by tests; PostgresQuotaRepository (postgres.go) is the durable one.
type QuotaRepository interface {
	GetQuota(ctx context.Context, key QuotaKey) (*Quota, error)
	IncrementUsage(ctx context.Context, key QuotaKey, amount int64, defaultLimit int64, now time.Time) (*Quota, error)
	SetLimit(ctx context.Context, key QuotaKey, limit int64) error
}
