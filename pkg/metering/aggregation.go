package metering

import (
	"sort"

	"github.com/creto-systems/enablement/pkg/common"
)

// AggregationType selects how raw UsageEvents for a BillableMetric roll up
// into a single reportable value over a window.
type AggregationType string

const (
	AggregationCount       AggregationType = "count"
	AggregationSum         AggregationType = "sum"
	AggregationMax         AggregationType = "max"
	AggregationMin         AggregationType = "min"
	AggregationAverage     AggregationType = "average"
	AggregationUniqueCount AggregationType = "unique_count"
	AggregationLatest      AggregationType = "latest"
)

// AggregationValue is the result of aggregating one BillableMetric over one
// window of events.
type AggregationValue struct {
	MetricCode string
	Type       AggregationType
	Count      int64   // number of contributing events, regardless of Type
	Result     float64 // the aggregated value itself
}

// Aggregation is an AggregationValue scoped to an organization and a window.
type Aggregation struct {
	OrganizationID common.OrganizationId
	WindowStart    common.Timestamp
	WindowEnd      common.Timestamp
	Value          AggregationValue
}

// AggregationEngine rolls raw UsageEvents up into Aggregations per
// BillableMetric. It is pure computation over a slice of events — no I/O —
// so the caller decides where those events came from (EventRepository,
// a streaming batch, a test fixture).
type AggregationEngine struct{}

// NewAggregationEngine builds an engine. It carries no state; every method
// is a pure function of its arguments.
func NewAggregationEngine() *AggregationEngine {
	return &AggregationEngine{}
}

// Aggregate rolls events up per metric.AggregationType, filtering to events
// matching metric.EventType first. Events outside [windowStart, windowEnd)
// are ignored even if present in the slice, so callers may pass a
// superset.
func (e *AggregationEngine) Aggregate(metric BillableMetric, events []UsageEvent, windowStart, windowEnd common.Timestamp) AggregationValue {
	var matched []UsageEvent
	for _, ev := range events {
		if ev.EventType != metric.EventType {
			continue
		}
		if ev.Timestamp < windowStart || ev.Timestamp >= windowEnd {
			continue
		}
		matched = append(matched, ev)
	}

	value := AggregationValue{MetricCode: metric.Code, Type: metric.AggregationType, Count: int64(len(matched))}
	if len(matched) == 0 {
		return value
	}

	switch metric.AggregationType {
	case AggregationCount:
		value.Result = float64(len(matched))
	case AggregationSum:
		var sum float64
		for _, ev := range matched {
			sum += float64(ev.Quantity)
		}
		value.Result = sum
	case AggregationMax:
		max := matched[0].Quantity
		for _, ev := range matched[1:] {
			if ev.Quantity > max {
				max = ev.Quantity
			}
		}
		value.Result = float64(max)
	case AggregationMin:
		min := matched[0].Quantity
		for _, ev := range matched[1:] {
			if ev.Quantity < min {
				min = ev.Quantity
			}
		}
		value.Result = float64(min)
	case AggregationAverage:
		var sum float64
		for _, ev := range matched {
			sum += float64(ev.Quantity)
		}
		value.Result = sum / float64(len(matched))
	case AggregationUniqueCount:
		seen := make(map[string]struct{})
		for _, ev := range matched {
			v := uniqueFieldValue(ev, metric.UniqueCountField)
			seen[v] = struct{}{}
		}
		value.Result = float64(len(seen))
	case AggregationLatest:
		latest := matched[0]
		for _, ev := range matched[1:] {
			if ev.Timestamp > latest.Timestamp {
				latest = ev
			}
		}
		value.Result = float64(latest.Quantity)
	default:
		value.Result = 0
	}

	return value
}

// uniqueFieldValue extracts the value to count distinct occurrences of for
// AggregationUniqueCount. "agent_id" is handled specially since it's a
// struct field rather than a Properties entry; anything else is looked up
// in Properties.
func uniqueFieldValue(ev UsageEvent, field string) string {
	if field == "agent_id" || field == "" {
		return ev.AgentID.String()
	}
	return ev.Properties[field]
}

// AggregateAll computes one Aggregation per metric over [windowStart,
// windowEnd) for a single organization, in metric-code order for
// deterministic output.
func (e *AggregationEngine) AggregateAll(org common.OrganizationId, metrics []BillableMetric, events []UsageEvent, windowStart, windowEnd common.Timestamp) []Aggregation {
	sorted := make([]BillableMetric, len(metrics))
	copy(sorted, metrics)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	out := make([]Aggregation, 0, len(sorted))
	for _, m := range sorted {
		out = append(out, Aggregation{
			OrganizationID: org,
			WindowStart:    windowStart,
			WindowEnd:      windowEnd,
			Value:          e.Aggregate(m, events, windowStart, windowEnd),
		})
	}
	return out
}
