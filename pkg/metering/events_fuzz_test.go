package metering

import (
	"encoding/json"
	"testing"
)

// FuzzUsageEventJSON mirrors original_source's
// creto-metering/fuzz/fuzz_targets/usage_event_json.rs: arbitrary JSON must
// decode into a UsageEvent (or fail cleanly) and Validate must never panic
// on the result.
func FuzzUsageEventJSON(f *testing.F) {
	f.Add([]byte(`{"EventType":"api_call","MetricCode":"api_calls","Quantity":1}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"Quantity":-1}`))
	f.Add([]byte("not json"))

	validator := NewEventValidator(DefaultValidationConfig())

	f.Fuzz(func(t *testing.T, data []byte) {
		var event UsageEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return
		}
		_ = validator.Validate(event)
	})
}
