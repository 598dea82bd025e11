package oversight

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/creto-systems/enablement/pkg/common"
)

func TestNOfMQuorumRequiresCount(t *testing.T) {
	calc := NewQuorumCalculator(NOfM(2))
	requestID := uuid.Must(uuid.NewV7())

	result := calc.Evaluate([]Approval{NewApproval(requestID, common.NewUserId(), Approve)})
	assert.Equal(t, QuorumPending, result.Kind)

	result = calc.Evaluate([]Approval{
		NewApproval(requestID, common.NewUserId(), Approve),
		NewApproval(requestID, common.NewUserId(), Approve),
	})
	assert.Equal(t, QuorumApproved, result.Kind)
}

func TestAnyRejectionRejectsShortCircuits(t *testing.T) {
	calc := NewQuorumCalculator(NOfM(2))
	requestID := uuid.Must(uuid.NewV7())

	result := calc.Evaluate([]Approval{
		NewApproval(requestID, common.NewUserId(), Approve),
		NewApproval(requestID, common.NewUserId(), Approve),
		NewApproval(requestID, common.NewUserId(), Reject),
	})
	assert.Equal(t, QuorumRejected, result.Kind)
}

func TestUnanimousRequiresAllApprove(t *testing.T) {
	calc := NewQuorumCalculator(Unanimous(2))
	requestID := uuid.Must(uuid.NewV7())

	approved := calc.Evaluate([]Approval{
		NewApproval(requestID, common.NewUserId(), Approve),
		NewApproval(requestID, common.NewUserId(), Approve),
	})
	assert.Equal(t, QuorumApproved, approved.Kind)

	rejected := calc.Evaluate([]Approval{
		NewApproval(requestID, common.NewUserId(), Approve),
		NewApproval(requestID, common.NewUserId(), Reject),
	})
	assert.Equal(t, QuorumRejected, rejected.Kind)
}

func TestWeightedQuorumSumsWeights(t *testing.T) {
	calc := NewQuorumCalculator(Weighted(5))
	requestID := uuid.Must(uuid.NewV7())

	pending := calc.Evaluate([]Approval{
		NewApproval(requestID, common.NewUserId(), Approve).WithWeight(3),
	})
	assert.Equal(t, QuorumPending, pending.Kind)

	approved := calc.Evaluate([]Approval{
		NewApproval(requestID, common.NewUserId(), Approve).WithWeight(3),
		NewApproval(requestID, common.NewUserId(), Approve).WithWeight(2),
	})
	assert.Equal(t, QuorumApproved, approved.Kind)
}

func TestQuorumIsOrderInsensitiveBeyondShortCircuit(t *testing.T) {
	requestID := uuid.Must(uuid.NewV7())
	r1, r2, r3 := common.NewUserId(), common.NewUserId(), common.NewUserId()
	calc := NewQuorumCalculator(NOfM(2))

	forward := calc.Evaluate([]Approval{
		NewApproval(requestID, r1, Approve),
		NewApproval(requestID, r2, Approve),
		NewApproval(requestID, r3, Approve),
	})
	backward := calc.Evaluate([]Approval{
		NewApproval(requestID, r3, Approve),
		NewApproval(requestID, r2, Approve),
		NewApproval(requestID, r1, Approve),
	})
	assert.Equal(t, forward.Kind, backward.Kind)
}

func TestEscalateOverridesEverything(t *testing.T) {
	calc := NewQuorumCalculator(NOfM(2))
	requestID := uuid.Must(uuid.NewV7())

	result := calc.Evaluate([]Approval{
		NewApproval(requestID, common.NewUserId(), Approve),
		NewApproval(requestID, common.NewUserId(), Approve),
		NewApproval(requestID, common.NewUserId(), Escalate),
	})
	assert.Equal(t, QuorumEscalated, result.Kind, "a single escalate vote must override an otherwise-reached approval")
}

func TestAbstainAndRequestInfoNeverDecide(t *testing.T) {
	calc := NewQuorumCalculator(NOfM(2))
	requestID := uuid.Must(uuid.NewV7())

	result := calc.Evaluate([]Approval{
		NewApproval(requestID, common.NewUserId(), Abstain),
		NewApproval(requestID, common.NewUserId(), RequestInfo),
		NewApproval(requestID, common.NewUserId(), Approve),
	})
	assert.Equal(t, QuorumPending, result.Kind)
	assert.Equal(t, 1, result.ApproveCount)
	assert.Equal(t, 1, result.AbstainCount)
	assert.Equal(t, 1, result.InfoRequestCount)
}

func TestQuorumMonotonicityOnceApproved(t *testing.T) {
	requestID := uuid.Must(uuid.NewV7())
	calc := NewQuorumCalculator(NOfM(1))

	result := calc.Evaluate([]Approval{
		NewApproval(requestID, common.NewUserId(), Approve),
		NewApproval(requestID, common.NewUserId(), Approve),
		NewApproval(requestID, common.NewUserId(), Approve),
	})
	assert.Equal(t, QuorumApproved, result.Kind, "adding more approvals after quorum is reached must not flip the verdict")
}
