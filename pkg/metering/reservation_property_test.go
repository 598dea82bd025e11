//go:build property
// +build property

package metering_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/creto-systems/enablement/pkg/common"
	"github.com/creto-systems/enablement/pkg/metering"
)

// TestReservationNeverExceedsLimit verifies that no sequence of reserve
// calls against a single quota key can push recorded usage above the
// configured limit, regardless of how many reservations are attempted.
func TestReservationNeverExceedsLimit(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("quota usage never exceeds its limit after any sequence of reservations", prop.ForAll(
		func(limit int64, amounts []int64) bool {
			if limit <= 0 {
				return true
			}
			ctx := context.Background()
			repo := metering.NewInMemoryQuotaRepository()
			enforcer := metering.NewQuotaEnforcer(metering.DefaultEnforcerConfig(), repo, limit)
			store := metering.NewInMemoryReservationStore()
			mgr := metering.NewReservationManager(enforcer, store)
			key := metering.QuotaKey{OrganizationID: common.NewOrganizationId(), MetricCode: "tokens", Period: metering.PeriodDaily}

			for _, amount := range amounts {
				if amount <= 0 {
					continue
				}
				mgr.Reserve(ctx, metering.ReserveRequest{Key: key, Amount: amount})
			}

			quota, err := repo.GetQuota(ctx, key)
			if err != nil || quota == nil {
				return true
			}
			return quota.Used <= quota.Limit
		},
		gen.Int64Range(1, 100000),
		gen.SliceOf(gen.Int64Range(1, 1000)),
	))

	properties.TestingRun(t)
}
