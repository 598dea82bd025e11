package metering

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creto-systems/enablement/pkg/common"
)

func newTestManager(t *testing.T, limit int64) *ReservationManager {
	t.Helper()
	repo := NewInMemoryQuotaRepository()
	enforcer := NewQuotaEnforcer(DefaultEnforcerConfig(), repo, limit)
	store := NewInMemoryReservationStore()
	return NewReservationManager(enforcer, store)
}

func testKey(org common.OrganizationId) QuotaKey {
	return QuotaKey{OrganizationID: org, MetricCode: "input_tokens", Period: PeriodDaily}
}

func TestReserveChargesQuotaImmediately(t *testing.T) {
	ctx := context.Background()
	org := common.NewOrganizationId()
	mgr := newTestManager(t, 100)

	r, err := mgr.Reserve(ctx, ReserveRequest{Key: testKey(org), Amount: 40})
	require.NoError(t, err)
	assert.Equal(t, ReservationHeld, r.Status)

	_, err = mgr.Reserve(ctx, ReserveRequest{Key: testKey(org), Amount: 70})
	assert.Error(t, err, "second reservation should be denied: 40+70 > 100")
}

func TestCommitWithLowerActualRefundsDifference(t *testing.T) {
	ctx := context.Background()
	org := common.NewOrganizationId()
	mgr := newTestManager(t, 100)

	r, err := mgr.Reserve(ctx, ReserveRequest{Key: testKey(org), Amount: 50})
	require.NoError(t, err)

	committed, err := mgr.Commit(ctx, r.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, ReservationCommitted, committed.Status)
	assert.Equal(t, int64(20), committed.Amount)

	// 30 units were refunded, so another 80-unit charge on top of the
	// committed 20 should fit within the 100 limit.
	second, err := mgr.Reserve(ctx, ReserveRequest{Key: testKey(org), Amount: 80})
	require.NoError(t, err)
	assert.Equal(t, ReservationHeld, second.Status)
}

func TestCommitWithHigherActualChargesDifference(t *testing.T) {
	ctx := context.Background()
	org := common.NewOrganizationId()
	mgr := newTestManager(t, 100)

	r, err := mgr.Reserve(ctx, ReserveRequest{Key: testKey(org), Amount: 50})
	require.NoError(t, err)

	_, err = mgr.Commit(ctx, r.ID, 120)
	assert.Error(t, err, "committing above the remaining headroom should fail closed")
}

func TestReleaseFullyRefunds(t *testing.T) {
	ctx := context.Background()
	org := common.NewOrganizationId()
	mgr := newTestManager(t, 100)

	r, err := mgr.Reserve(ctx, ReserveRequest{Key: testKey(org), Amount: 60})
	require.NoError(t, err)

	released, err := mgr.Release(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ReservationReleased, released.Status)

	second, err := mgr.Reserve(ctx, ReserveRequest{Key: testKey(org), Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, ReservationHeld, second.Status)
}

func TestExpireSweepReleasesStaleReservations(t *testing.T) {
	ctx := context.Background()
	org := common.NewOrganizationId()
	repo := NewInMemoryQuotaRepository()
	enforcer := NewQuotaEnforcer(DefaultEnforcerConfig(), repo, 100)
	store := NewInMemoryReservationStore()
	mgr := NewReservationManager(enforcer, store)

	past := time.Now().Add(-time.Hour)
	mgr.now = func() time.Time { return past }
	r, err := mgr.Reserve(ctx, ReserveRequest{Key: testKey(org), Amount: 60, TTL: time.Millisecond})
	require.NoError(t, err)

	mgr.now = time.Now
	swept, err := mgr.ExpireSweep(ctx)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, r.ID, swept[0].ID)
	assert.Equal(t, ReservationExpired, swept[0].Status)

	second, err := mgr.Reserve(ctx, ReserveRequest{Key: testKey(org), Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, ReservationHeld, second.Status)
}

func TestDoubleCommitFails(t *testing.T) {
	ctx := context.Background()
	org := common.NewOrganizationId()
	mgr := newTestManager(t, 100)

	r, err := mgr.Reserve(ctx, ReserveRequest{Key: testKey(org), Amount: 10})
	require.NoError(t, err)
	_, err = mgr.Commit(ctx, r.ID, 10)
	require.NoError(t, err)

	_, err = mgr.Commit(ctx, r.ID, 10)
	assert.Error(t, err, "committing an already-committed reservation must fail")
}
