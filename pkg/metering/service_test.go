package metering

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creto-systems/enablement/pkg/common"
)

func newTestService(t *testing.T, limit int64) (*Service, *InMemoryEventRepository) {
	t.Helper()
	validator := NewEventValidator(DefaultValidationConfig())
	dedup, err := NewInMemoryDeduplicator(DedupConfig{})
	require.NoError(t, err)
	repo := NewInMemoryQuotaRepository()
	enforcer := NewQuotaEnforcer(DefaultEnforcerConfig(), repo, limit)
	events := NewInMemoryEventRepository()
	metrics := []BillableMetric{APICallsMetric(), InputTokensMetric(), OutputTokensMetric()}
	return NewService(nil, validator, dedup, enforcer, events, metrics), events
}

func TestIngestAcceptsValidEvents(t *testing.T) {
	ctx := context.Background()
	org := common.NewOrganizationId()
	svc, events := newTestService(t, 1000)

	result := svc.Ingest(ctx, []UsageEvent{
		{OrganizationID: org, EventType: EventInputTokens, MetricCode: "input_tokens", Quantity: 50},
		{OrganizationID: org, EventType: EventAPICall, MetricCode: "api_calls", Quantity: 1},
	})

	assert.Equal(t, 2, result.Accepted)
	assert.Empty(t, result.Invalid)
	assert.Empty(t, result.Denied)

	stored, err := events.ListByOrganization(ctx, org, 0, common.Timestamp(1<<62))
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestIngestRejectsInvalidEventsWithoutBlockingBatch(t *testing.T) {
	ctx := context.Background()
	org := common.NewOrganizationId()
	svc, _ := newTestService(t, 1000)

	result := svc.Ingest(ctx, []UsageEvent{
		{OrganizationID: common.OrganizationId{}, EventType: EventInputTokens, MetricCode: "input_tokens", Quantity: 10},
		{OrganizationID: org, EventType: EventAPICall, MetricCode: "api_calls", Quantity: 1},
	})

	assert.Equal(t, 1, result.Accepted)
	require.Len(t, result.Invalid, 1)
	assert.Equal(t, 0, result.Invalid[0].Index)
}

func TestIngestDeduplicatesRepeatedTransactionID(t *testing.T) {
	ctx := context.Background()
	org := common.NewOrganizationId()
	svc, _ := newTestService(t, 1000)

	first := svc.Ingest(ctx, []UsageEvent{
		{OrganizationID: org, EventType: EventAPICall, MetricCode: "api_calls", Quantity: 1, TransactionID: "tx-1"},
	})
	require.Equal(t, 1, first.Accepted)

	second := svc.Ingest(ctx, []UsageEvent{
		{OrganizationID: org, EventType: EventAPICall, MetricCode: "api_calls", Quantity: 1, TransactionID: "tx-1"},
	})
	assert.Equal(t, 0, second.Accepted)
	assert.Equal(t, 1, second.Duplicate)
}

func TestIngestDeniesEventsThatExceedQuota(t *testing.T) {
	ctx := context.Background()
	org := common.NewOrganizationId()
	svc, _ := newTestService(t, 10)

	result := svc.Ingest(ctx, []UsageEvent{
		{OrganizationID: org, EventType: EventInputTokens, MetricCode: "input_tokens", Quantity: 20},
	})

	assert.Equal(t, 0, result.Accepted)
	require.Len(t, result.Denied, 1)
}

func TestUsageAggregatesStoredEvents(t *testing.T) {
	ctx := context.Background()
	org := common.NewOrganizationId()
	svc, _ := newTestService(t, 1000)

	svc.Ingest(ctx, []UsageEvent{
		{OrganizationID: org, EventType: EventInputTokens, MetricCode: "input_tokens", Quantity: 30, Timestamp: 10},
		{OrganizationID: org, EventType: EventInputTokens, MetricCode: "input_tokens", Quantity: 20, Timestamp: 20},
	})

	aggs, err := svc.Usage(ctx, org, 0, 100)
	require.NoError(t, err)

	var inputAgg *Aggregation
	for i := range aggs {
		if aggs[i].Value.MetricCode == "input_tokens" {
			inputAgg = &aggs[i]
		}
	}
	require.NotNil(t, inputAgg)
	assert.Equal(t, float64(50), inputAgg.Value.Result)
}
