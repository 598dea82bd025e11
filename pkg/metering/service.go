package metering

import (
	"context"
	"log/slog"

	"github.com/creto-systems/enablement/pkg/common"
)

// IngestResult reports the outcome of ingesting one batch of events.
type IngestResult struct {
	Accepted  int
	Duplicate int
	Invalid   []ValidationError
	Denied    []DenialError // quota-exceeded rejections for otherwise-valid events
}

// DenialError names which event in a batch a quota check denied.
type DenialError struct {
	Index int
	Err   error
}

// Service is the Metering Core facade: it wires the ingestion pipeline
// (validate -> dedup -> quota check/charge -> persist) behind a single
// entry point, the way messaging.Service fronts the messaging pipeline.
type Service struct {
	logger    *slog.Logger
	validator *EventValidator
	dedup     Deduplicator
	enforcer  *QuotaEnforcer
	events    EventRepository
	metrics   map[string]BillableMetric // by metric code
	aggregate *AggregationEngine
}

// NewService wires a Service from its collaborators. logger defaults to
// slog.Default() when nil.
func NewService(logger *slog.Logger, validator *EventValidator, dedup Deduplicator, enforcer *QuotaEnforcer, events EventRepository, metrics []BillableMetric) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	byCode := make(map[string]BillableMetric, len(metrics))
	for _, m := range metrics {
		byCode[m.Code] = m
	}
	return &Service{
		logger: logger, validator: validator, dedup: dedup, enforcer: enforcer,
		events: events, metrics: byCode, aggregate: NewAggregationEngine(),
	}
}

// Ingest runs a batch of events through validation, dedup, quota
// enforcement, and persistence. Each event is handled independently: one
// bad event never blocks the rest of the batch.
func (s *Service) Ingest(ctx context.Context, events []UsageEvent) IngestResult {
	result := IngestResult{}

	for i, e := range events {
		if err := s.validator.Validate(e); err != nil {
			result.Invalid = append(result.Invalid, ValidationError{Index: i, Err: err})
			continue
		}
		if e.TransactionID != "" {
			dedupResult, err := s.dedup.Check(ctx, e.TransactionID)
			if err != nil {
				s.logger.Warn("metering: dedup check failed", "error", err, "transaction_id", e.TransactionID)
			} else if dedupResult.Duplicate {
				result.Duplicate++
				continue
			}
		}

		metric, ok := s.metrics[e.MetricCode]
		if !ok {
			result.Invalid = append(result.Invalid, ValidationError{Index: i, Err: common.New(common.CodeInvalidUsageEvent, "unknown metric code %q", e.MetricCode)})
			continue
		}

		key := QuotaKey{OrganizationID: e.OrganizationID, AgentID: e.AgentID, MetricCode: metric.Code, Period: PeriodDaily}
		if _, err := s.enforcer.CheckAndCharge(ctx, key, e.Quantity); err != nil {
			result.Denied = append(result.Denied, DenialError{Index: i, Err: err})
			continue
		}

		if err := s.events.Store(ctx, e); err != nil {
			s.logger.Error("metering: failed to persist usage event", "error", err, "event_id", e.ID)
			continue
		}
		if e.TransactionID != "" {
			if err := s.dedup.Mark(ctx, e.TransactionID); err != nil {
				s.logger.Warn("metering: dedup mark failed", "error", err, "transaction_id", e.TransactionID)
			}
		}
		result.Accepted++
	}

	s.logger.Info("metering: ingest complete", "accepted", result.Accepted, "duplicate", result.Duplicate, "invalid", len(result.Invalid), "denied", len(result.Denied))
	return result
}

// RecordEvent persists a pre-validated usage event directly, bypassing
// quota enforcement and dedup. It exists for bookkeeping events that other
// modules must always be able to record — e.g. oversight.Service logging
// that a request was opened — rather than metered resource consumption
// that can be denied.
func (s *Service) RecordEvent(ctx context.Context, event UsageEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if err := s.events.Store(ctx, event); err != nil {
		return err
	}
	s.logger.Info("metering: recorded event", "event_type", event.EventType, "organization_id", event.OrganizationID.String())
	return nil
}

// Usage computes Aggregations for org over [windowStart, windowEnd) across
// every registered metric, reading events from the repository.
func (s *Service) Usage(ctx context.Context, org common.OrganizationId, windowStart, windowEnd common.Timestamp) ([]Aggregation, error) {
	events, err := s.events.ListByOrganization(ctx, org, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	metrics := make([]BillableMetric, 0, len(s.metrics))
	for _, m := range s.metrics {
		metrics = append(metrics, m)
	}
	return s.aggregate.AggregateAll(org, metrics, events, windowStart, windowEnd), nil
}
