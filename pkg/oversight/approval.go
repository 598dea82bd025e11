package oversight

import (
	"github.com/google/uuid"

	"github.com/creto-systems/enablement/pkg/common"
)

// ApprovalDecision is a reviewer's vote on a request.
type ApprovalDecision string

const (
	Approve ApprovalDecision = "approve"
	Reject  ApprovalDecision = "reject"
	// Abstain records that a reviewer declined to vote either way. It
	// never counts toward approval or rejection.
	Abstain ApprovalDecision = "abstain"
	// RequestInfo records that a reviewer needs more context before
	// deciding. Like Abstain, it does not move the quorum toward
	// approval or rejection on its own.
	RequestInfo ApprovalDecision = "request_info"
	// Escalate records that a reviewer is kicking the request to a
	// higher authority. A single Escalate vote forces the quorum to
	// QuorumEscalated regardless of any other votes cast.
	Escalate ApprovalDecision = "escalate"
)

// Approval is one reviewer's recorded decision on a request.
type Approval struct {
	ID        uuid.UUID
	RequestID uuid.UUID
	Reviewer  common.UserId
	Decision  ApprovalDecision
	Weight    uint32 // used by weighted quorum; ignored otherwise
	Reason    string
	Timestamp common.Timestamp
}

// NewApproval records reviewer's decision on requestID, weight defaulting
// to 1.
func NewApproval(requestID uuid.UUID, reviewer common.UserId, decision ApprovalDecision) Approval {
	return Approval{
		ID: uuid.Must(uuid.NewV7()), RequestID: requestID, Reviewer: reviewer,
		Decision: decision, Weight: 1, Timestamp: common.Now(),
	}
}

// WithReason attaches a reason to the approval.
func (a Approval) WithReason(reason string) Approval {
	a.Reason = reason
	return a
}

// WithWeight overrides the approval's weight (for weighted quorum).
func (a Approval) WithWeight(weight uint32) Approval {
	a.Weight = weight
	return a
}

// QuorumConfig parameterizes QuorumCalculator.
type QuorumConfig struct {
	RequiredApprovals  uint32
	RequiredWeight     *uint32 // nil means weight-based quorum is not used
	AnyRejectionRejects bool
	RequireUnanimous   bool
}

// NOfM builds the common n-of-m quorum: n approvals required, any
// rejection rejects.
func NOfM(n uint32) QuorumConfig {
	return QuorumConfig{RequiredApprovals: n, AnyRejectionRejects: true}
}

// Unanimous builds a quorum requiring every one of n participating
// approvals to be an Approve.
func Unanimous(n uint32) QuorumConfig {
	return QuorumConfig{RequiredApprovals: n, RequireUnanimous: true}
}

// Weighted builds a quorum that sums approval weights against a threshold.
func Weighted(threshold uint32) QuorumConfig {
	return QuorumConfig{RequiredWeight: &threshold, AnyRejectionRejects: true}
}

// QuorumResultKind tags the concrete verdict in a QuorumResult.
type QuorumResultKind string

const (
	QuorumApproved  QuorumResultKind = "approved"
	QuorumRejected  QuorumResultKind = "rejected"
	QuorumEscalated QuorumResultKind = "escalated"
	QuorumPending   QuorumResultKind = "pending"
)

// QuorumResult is the verdict QuorumCalculator reaches over an approval set.
type QuorumResult struct {
	Kind             QuorumResultKind
	ApproveCount     int
	RejectCount      int
	AbstainCount     int
	InfoRequestCount int
	EscalateCount    int
	ApprovedWeight   uint32
}

// QuorumCalculator turns an approval multiset into a verdict per its
// QuorumConfig. It is pure and, beyond rule 2's short-circuit on any
// rejection, order-insensitive: the same set of approvals always yields
// the same verdict regardless of submission order.
type QuorumCalculator struct {
	config QuorumConfig
}

// NewQuorumCalculator builds a calculator for config.
func NewQuorumCalculator(config QuorumConfig) *QuorumCalculator {
	return &QuorumCalculator{config: config}
}

// Evaluate inspects the full approval set and returns the quorum's verdict.
//
// Rule order (once Approved is reached, further Approve, Abstain or
// RequestInfo votes cannot flip the verdict; a later Escalate vote turns
// any verdict into Escalated, and a later Reject turns it into Rejected
// under AnyRejectionRejects or RequireUnanimous):
//  1. Any Escalate vote present -> Escalated, overriding every other rule.
//  2. AnyRejectionRejects and any Reject present -> Rejected.
//  3. RequireUnanimous: any Reject -> Rejected; otherwise Approve count >=
//     RequiredApprovals -> Approved, else Pending.
//  4. RequiredWeight set: sum of weight over Approve decisions >=
//     RequiredWeight -> Approved.
//  5. Otherwise: count of Approve >= RequiredApprovals -> Approved.
//  6. Else -> Pending.
//
// Abstain and RequestInfo never count toward approval or rejection in any
// rule; they are tallied in the result for visibility only.
func (c *QuorumCalculator) Evaluate(approvals []Approval) QuorumResult {
	var approveCount, rejectCount, abstainCount, infoRequestCount, escalateCount int
	var approvedWeight uint32
	for _, a := range approvals {
		switch a.Decision {
		case Approve:
			approveCount++
			approvedWeight += a.Weight
		case Reject:
			rejectCount++
		case Abstain:
			abstainCount++
		case RequestInfo:
			infoRequestCount++
		case Escalate:
			escalateCount++
		}
	}

	result := QuorumResult{
		ApproveCount: approveCount, RejectCount: rejectCount,
		AbstainCount: abstainCount, InfoRequestCount: infoRequestCount, EscalateCount: escalateCount,
		ApprovedWeight: approvedWeight,
	}

	if escalateCount > 0 {
		result.Kind = QuorumEscalated
		return result
	}

	if c.config.AnyRejectionRejects && rejectCount > 0 {
		result.Kind = QuorumRejected
		return result
	}

	if c.config.RequireUnanimous {
		if rejectCount > 0 {
			result.Kind = QuorumRejected
			return result
		}
		if uint32(approveCount) >= c.config.RequiredApprovals {
			result.Kind = QuorumApproved
			return result
		}
		result.Kind = QuorumPending
		return result
	}

	if c.config.RequiredWeight != nil {
		if approvedWeight >= *c.config.RequiredWeight {
			result.Kind = QuorumApproved
			return result
		}
		result.Kind = QuorumPending
		return result
	}

	if uint32(approveCount) >= c.config.RequiredApprovals {
		result.Kind = QuorumApproved
		return result
	}

	result.Kind = QuorumPending
	return result
}
