// Package metering implements the Metering Core: usage ingestion, the
// three-tier quota hot path, the reservation protocol, and usage
// aggregation.
package metering

import (
	"github.com/google/uuid"

	"github.com/creto-systems/enablement/pkg/common"
)

// UsageEventType classifies a metered event.
type UsageEventType string

const (
	EventAPICall      UsageEventType = "api_call"
	EventToolCall     UsageEventType = "tool_call"
	EventInputTokens  UsageEventType = "input_tokens"
	EventOutputTokens UsageEventType = "output_tokens"
	EventStorageBytes UsageEventType = "storage_bytes"
	EventExecution    UsageEventType = "execution"

	// EventOversightRequest marks an oversight request being opened. It is
	// recorded for audit purposes, not charged against any quota.
	EventOversightRequest UsageEventType = "oversight_request"
)

// UsageEvent is a single metered occurrence: an agent, acting for an
// organization, consumed some quantity of a resource.
type UsageEvent struct {
	ID               uuid.UUID
	OrganizationID   common.OrganizationId
	AgentID          common.AgentId
	EventType        UsageEventType
	MetricCode       string
	Quantity         int64
	Timestamp        common.Timestamp
	DelegationDepth  uint8
	TransactionID    string // used for idempotent dedup; empty means unchecked
	Properties       map[string]string
}

// Validate checks that the event carries the fields required to ingest it.
func (e UsageEvent) Validate() error {
	if e.OrganizationID.IsZero() {
		return common.New(common.CodeInvalidUsageEvent, "organization_id is required")
	}
	if e.EventType == "" {
		return common.New(common.CodeInvalidUsageEvent, "event_type is required")
	}
	if e.MetricCode == "" {
		return common.New(common.CodeInvalidUsageEvent, "metric_code is required")
	}
	if e.Quantity < 0 {
		return common.New(common.CodeInvalidUsageEvent, "quantity must not be negative")
	}
	return nil
}

// BillableMetric describes how a metric code aggregates raw events into
// billable usage.
type BillableMetric struct {
	Code               string
	Name               string
	EventType          UsageEventType
	AggregationType     AggregationType
	UniqueCountField   string // property key to count distinct values of; only used with AggregationUniqueCount
}

// APICallsMetric is the preset metric counting API calls.
func APICallsMetric() BillableMetric {
	return BillableMetric{Code: "api_calls", Name: "API Calls", EventType: EventAPICall, AggregationType: AggregationCount}
}

// InputTokensMetric is the preset metric summing input token counts.
func InputTokensMetric() BillableMetric {
	return BillableMetric{Code: "input_tokens", Name: "Input Tokens", EventType: EventInputTokens, AggregationType: AggregationSum}
}

// OutputTokensMetric is the preset metric summing output token counts.
func OutputTokensMetric() BillableMetric {
	return BillableMetric{Code: "output_tokens", Name: "Output Tokens", EventType: EventOutputTokens, AggregationType: AggregationSum}
}

// UniqueAgentsMetric is the preset metric counting distinct acting agents.
func UniqueAgentsMetric() BillableMetric {
	return BillableMetric{Code: "unique_agents", Name: "Unique Agents", EventType: EventAPICall, AggregationType: AggregationUniqueCount, UniqueCountField: "agent_id"}
}
