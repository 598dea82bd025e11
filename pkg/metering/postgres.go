package metering

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/creto-systems/enablement/pkg/common"
)

// PostgresEventRepository is a durable EventRepository backed by
// PostgreSQL, for deployments where the in-memory reference
// implementation's lack of persistence across restarts is unacceptable.
type PostgresEventRepository struct {
	db *sql.DB
}

// NewPostgresEventRepository wraps an already-open *sql.DB (dialed via
// lib/pq's "postgres" driver).
func NewPostgresEventRepository(db *sql.DB) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

const eventSchema = `
CREATE TABLE IF NOT EXISTS usage_events (
	id UUID PRIMARY KEY,
	organization_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	metric_code TEXT NOT NULL,
	quantity BIGINT NOT NULL,
	timestamp_ms BIGINT NOT NULL,
	delegation_depth SMALLINT NOT NULL,
	transaction_id TEXT,
	properties JSONB
);
CREATE INDEX IF NOT EXISTS idx_usage_events_org_time ON usage_events(organization_id, timestamp_ms);
`

// Init creates the usage_events table if it doesn't already exist.
func (r *PostgresEventRepository) Init(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, eventSchema)
	return err
}

func (r *PostgresEventRepository) Store(ctx context.Context, event UsageEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	var propsJSON []byte
	if event.Properties != nil {
		var err error
		propsJSON, err = json.Marshal(event.Properties)
		if err != nil {
			return common.Wrap(common.CodeSerialization, err, "marshal event properties")
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO usage_events
			(id, organization_id, agent_id, event_type, metric_code, quantity, timestamp_ms, delegation_depth, transaction_id, properties)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, event.OrganizationID.String(), event.AgentID.String(), event.EventType, event.MetricCode,
		event.Quantity, int64(event.Timestamp), event.DelegationDepth, event.TransactionID, propsJSON)
	if err != nil {
		return fmt.Errorf("metering: insert usage event: %w", err)
	}
	return nil
}

func (r *PostgresEventRepository) ListByOrganization(ctx context.Context, org common.OrganizationId, start, end common.Timestamp) ([]UsageEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, agent_id, event_type, metric_code, quantity, timestamp_ms, delegation_depth, transaction_id, properties
		FROM usage_events
		WHERE organization_id = $1 AND timestamp_ms >= $2 AND timestamp_ms < $3
		ORDER BY timestamp_ms
	`, org.String(), int64(start), int64(end))
	if err != nil {
		return nil, fmt.Errorf("metering: query usage events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []UsageEvent
	for rows.Next() {
		var (
			ev           UsageEvent
			orgID, agID  string
			tsMs         int64
			propsJSON    []byte
		)
		if err := rows.Scan(&ev.ID, &orgID, &agID, &ev.EventType, &ev.MetricCode, &ev.Quantity, &tsMs, &ev.DelegationDepth, &ev.TransactionID, &propsJSON); err != nil {
			return nil, fmt.Errorf("metering: scan usage event: %w", err)
		}
		ev.OrganizationID, err = common.ParseOrganizationId(orgID)
		if err != nil {
			return nil, err
		}
		ev.AgentID, err = common.ParseAgentId(agID)
		if err != nil {
			return nil, err
		}
		ev.Timestamp = common.FromMillis(tsMs)
		if len(propsJSON) > 0 {
			if err := json.Unmarshal(propsJSON, &ev.Properties); err != nil {
				return nil, common.Wrap(common.CodeSerialization, err, "unmarshal event properties")
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PostgresQuotaRepository is a durable QuotaRepository. Unlike
// InMemoryQuotaRepository it relies on the database for the
// read-increment-write atomicity of IncrementUsage, via an upsert guarded
// by the row's period boundaries.
type PostgresQuotaRepository struct {
	db *sql.DB
}

// NewPostgresQuotaRepository wraps an already-open *sql.DB.
func NewPostgresQuotaRepository(db *sql.DB) *PostgresQuotaRepository {
	return &PostgresQuotaRepository{db: db}
}

const quotaSchema = `
CREATE TABLE IF NOT EXISTS quotas (
	quota_key TEXT PRIMARY KEY,
	org_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	metric_code TEXT NOT NULL,
	period TEXT NOT NULL,
	limit_value BIGINT NOT NULL,
	used BIGINT NOT NULL DEFAULT 0,
	period_start TIMESTAMP NOT NULL,
	period_end TIMESTAMP NOT NULL
);
`

// Init creates the quotas table if it doesn't already exist.
func (r *PostgresQuotaRepository) Init(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, quotaSchema)
	return err
}

func (r *PostgresQuotaRepository) GetQuota(ctx context.Context, key QuotaKey) (*Quota, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT limit_value, used, period_start, period_end FROM quotas WHERE quota_key = $1
	`, key.String())

	var q Quota
	var start, end time.Time
	if err := row.Scan(&q.Limit, &q.Used, &start, &end); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("metering: query quota: %w", err)
	}
	q.Key = key
	q.PeriodStart, q.PeriodEnd = start, end
	return &q, nil
}

func (r *PostgresQuotaRepository) IncrementUsage(ctx context.Context, key QuotaKey, amount int64, defaultLimit int64, now time.Time) (*Quota, error) {
	start, end := key.Period.Window(now)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quotas (quota_key, org_id, agent_id, metric_code, period, limit_value, used, period_start, period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (quota_key) DO UPDATE SET
			used = CASE WHEN quotas.period_end <= $8 THEN $7 ELSE quotas.used + $7 END,
			period_start = CASE WHEN quotas.period_end <= $8 THEN $8 ELSE quotas.period_start END,
			period_end = CASE WHEN quotas.period_end <= $8 THEN $9 ELSE quotas.period_end END
	`, key.String(), key.OrganizationID.String(), key.AgentID.String(), key.MetricCode, string(key.Period),
		defaultLimit, amount, start, end)
	if err != nil {
		return nil, fmt.Errorf("metering: upsert quota: %w", err)
	}
	return r.GetQuota(ctx, key)
}

func (r *PostgresQuotaRepository) SetLimit(ctx context.Context, key QuotaKey, limit int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE quotas SET limit_value = $1 WHERE quota_key = $2
	`, limit, key.String())
	return err
}
