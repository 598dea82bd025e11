package metering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creto-systems/enablement/pkg/common"
)

func TestAggregateSum(t *testing.T) {
	org := common.NewOrganizationId()
	agent := common.NewAgentId()
	metric := InputTokensMetric()

	events := []UsageEvent{
		{OrganizationID: org, AgentID: agent, EventType: EventInputTokens, MetricCode: metric.Code, Quantity: 10, Timestamp: 100},
		{OrganizationID: org, AgentID: agent, EventType: EventInputTokens, MetricCode: metric.Code, Quantity: 25, Timestamp: 200},
		{OrganizationID: org, AgentID: agent, EventType: EventOutputTokens, MetricCode: "output_tokens", Quantity: 999, Timestamp: 150},
	}

	engine := NewAggregationEngine()
	value := engine.Aggregate(metric, events, 0, 1000)

	assert.Equal(t, int64(2), value.Count)
	assert.Equal(t, float64(35), value.Result)
}

func TestAggregateRespectsWindowBounds(t *testing.T) {
	org := common.NewOrganizationId()
	metric := InputTokensMetric()
	events := []UsageEvent{
		{OrganizationID: org, EventType: EventInputTokens, MetricCode: metric.Code, Quantity: 10, Timestamp: 50},
		{OrganizationID: org, EventType: EventInputTokens, MetricCode: metric.Code, Quantity: 20, Timestamp: 150},
	}

	engine := NewAggregationEngine()
	value := engine.Aggregate(metric, events, 100, 200)

	assert.Equal(t, int64(1), value.Count)
	assert.Equal(t, float64(20), value.Result)
}

func TestAggregateUniqueCount(t *testing.T) {
	org := common.NewOrganizationId()
	a1, a2 := common.NewAgentId(), common.NewAgentId()
	metric := UniqueAgentsMetric()

	events := []UsageEvent{
		{OrganizationID: org, AgentID: a1, EventType: EventAPICall, MetricCode: metric.Code, Quantity: 1, Timestamp: 10},
		{OrganizationID: org, AgentID: a1, EventType: EventAPICall, MetricCode: metric.Code, Quantity: 1, Timestamp: 20},
		{OrganizationID: org, AgentID: a2, EventType: EventAPICall, MetricCode: metric.Code, Quantity: 1, Timestamp: 30},
	}

	engine := NewAggregationEngine()
	value := engine.Aggregate(metric, events, 0, 1000)

	assert.Equal(t, float64(2), value.Result)
}

func TestAggregateMaxMinAverage(t *testing.T) {
	org := common.NewOrganizationId()
	base := BillableMetric{Code: "latency", EventType: EventExecution}
	events := []UsageEvent{
		{OrganizationID: org, EventType: EventExecution, MetricCode: "latency", Quantity: 5, Timestamp: 1},
		{OrganizationID: org, EventType: EventExecution, MetricCode: "latency", Quantity: 15, Timestamp: 2},
		{OrganizationID: org, EventType: EventExecution, MetricCode: "latency", Quantity: 10, Timestamp: 3},
	}
	engine := NewAggregationEngine()

	maxMetric := base
	maxMetric.AggregationType = AggregationMax
	require.Equal(t, float64(15), engine.Aggregate(maxMetric, events, 0, 100).Result)

	minMetric := base
	minMetric.AggregationType = AggregationMin
	require.Equal(t, float64(5), engine.Aggregate(minMetric, events, 0, 100).Result)

	avgMetric := base
	avgMetric.AggregationType = AggregationAverage
	require.Equal(t, float64(10), engine.Aggregate(avgMetric, events, 0, 100).Result)
}

func TestAggregateAllOrdersByMetricCode(t *testing.T) {
	org := common.NewOrganizationId()
	engine := NewAggregationEngine()
	metrics := []BillableMetric{OutputTokensMetric(), APICallsMetric(), InputTokensMetric()}

	aggs := engine.AggregateAll(org, metrics, nil, 0, 100)

	require.Len(t, aggs, 3)
	assert.Equal(t, "api_calls", aggs[0].Value.MetricCode)
	assert.Equal(t, "input_tokens", aggs[1].Value.MetricCode)
	assert.Equal(t, "output_tokens", aggs[2].Value.MetricCode)
}
