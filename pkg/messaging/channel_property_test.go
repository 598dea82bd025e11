//go:build property
// +build property

package messaging_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/creto-systems/enablement/pkg/messaging"
)

// TestBackoffMonotonicNondecreasing verifies RetryPolicy.BackoffMs never
// decreases as attempt grows, for any policy with Multiplier >= 1.
func TestBackoffMonotonicNondecreasing(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("backoff is non-decreasing in attempt", prop.ForAll(
		func(initial, max int64, multiplier float64, attempt int) bool {
			if initial <= 0 || max <= 0 || max < initial || multiplier < 1 || attempt < 0 {
				return true
			}
			policy := messaging.RetryPolicy{MaxAttempts: 100, InitialBackoffMs: initial, MaxBackoffMs: max, Multiplier: multiplier}

			return policy.BackoffMs(attempt) <= policy.BackoffMs(attempt+1)
		},
		gen.Int64Range(1, 10000),
		gen.Int64Range(1, 100000),
		gen.Float64Range(1.0, 5.0),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

// TestBackoffNeverExceedsMax verifies BackoffMs is always capped at MaxBackoffMs.
func TestBackoffNeverExceedsMax(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("backoff never exceeds the configured max", prop.ForAll(
		func(initial, max int64, multiplier float64, attempt int) bool {
			if initial <= 0 || max <= 0 || multiplier < 1 || attempt < 0 {
				return true
			}
			policy := messaging.RetryPolicy{MaxAttempts: 100, InitialBackoffMs: initial, MaxBackoffMs: max, Multiplier: multiplier}

			return policy.BackoffMs(attempt) <= max
		},
		gen.Int64Range(1, 10000),
		gen.Int64Range(1, 100000),
		gen.Float64Range(1.0, 5.0),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
