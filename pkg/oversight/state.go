package oversight

import (
	"github.com/google/uuid"

	"github.com/creto-systems/enablement/pkg/common"
)

// RequestStatus is a state in the oversight request lifecycle.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestInReview  RequestStatus = "in_review"
	RequestApproved  RequestStatus = "approved"
	RequestRejected  RequestStatus = "rejected"
	RequestEscalated RequestStatus = "escalated"
	RequestTimedOut  RequestStatus = "timed_out"
	RequestCancelled RequestStatus = "cancelled"
)

// IsTerminal reports whether s admits no further transitions.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestApproved, RequestRejected, RequestTimedOut, RequestCancelled:
		return true
	default:
		return false
	}
}

var validTransitions = map[RequestStatus]map[RequestStatus]bool{
	RequestPending: {
		RequestInReview: true, RequestApproved: true, RequestRejected: true,
		RequestEscalated: true, RequestTimedOut: true, RequestCancelled: true,
	},
	RequestInReview: {
		RequestApproved: true, RequestRejected: true, RequestEscalated: true,
		RequestTimedOut: true, RequestCancelled: true,
	},
	RequestEscalated: {
		RequestApproved: true, RequestRejected: true, RequestTimedOut: true,
		RequestCancelled: true,
	},
}

// ActorKind tags the concrete type behind an Actor.
type ActorKind string

const (
	ActorSystemKind ActorKind = "system"
	ActorUserKind   ActorKind = "user"
	ActorPolicyKind ActorKind = "policy"
)

// Actor identifies who triggered a state transition.
type Actor struct {
	Kind     ActorKind
	UserID   common.UserId // set when Kind == ActorUserKind
	PolicyID string        // set when Kind == ActorPolicyKind
}

// SystemActor is the actor for system-initiated transitions (timeouts).
func SystemActor() Actor { return Actor{Kind: ActorSystemKind} }

// UserActor is the actor for a human reviewer's decision.
func UserActor(id common.UserId) Actor { return Actor{Kind: ActorUserKind, UserID: id} }

// PolicyActor is the actor for an automatic policy-trigger decision.
func PolicyActor(policyID string) Actor { return Actor{Kind: ActorPolicyKind, PolicyID: policyID} }

// StateTransition is one recorded hop in a request's lifecycle. Transitions
// are hash-chained (PrevHash/Hash) so the log can be verified append-only
// (see ledger.go).
type StateTransition struct {
	ID        uuid.UUID
	RequestID uuid.UUID
	From      RequestStatus
	To        RequestStatus
	Actor     Actor
	Reason    string
	Timestamp common.Timestamp
	PrevHash  string
	Hash      string
}

// StateMachine manages one request's lifecycle and its transition history.
type StateMachine struct {
	requestID   uuid.UUID
	current     RequestStatus
	transitions []StateTransition
}

// NewStateMachine creates a machine in RequestPending for requestID.
func NewStateMachine(requestID uuid.UUID) *StateMachine {
	return &StateMachine{requestID: requestID, current: RequestPending}
}

// FromState creates a machine already in state, with no transition history
// (used when rehydrating from a repository).
func FromState(requestID uuid.UUID, state RequestStatus) *StateMachine {
	return &StateMachine{requestID: requestID, current: state}
}

// Current returns the machine's current state.
func (m *StateMachine) Current() RequestStatus { return m.current }

// History returns the recorded transitions, oldest first.
func (m *StateMachine) History() []StateTransition {
	out := make([]StateTransition, len(m.transitions))
	copy(out, m.transitions)
	return out
}

// CanTransitionTo reports whether to is a valid next state from current.
func (m *StateMachine) CanTransitionTo(to RequestStatus) bool {
	return validTransitions[m.current][to]
}

// ValidTransitions lists every state reachable in one hop from current.
func (m *StateMachine) ValidTransitions() []RequestStatus {
	all := []RequestStatus{RequestPending, RequestInReview, RequestApproved, RequestRejected, RequestEscalated, RequestTimedOut, RequestCancelled}
	var out []RequestStatus
	for _, s := range all {
		if m.CanTransitionTo(s) {
			out = append(out, s)
		}
	}
	return out
}

// IsTerminal reports whether the machine has reached a terminal state.
func (m *StateMachine) IsTerminal() bool { return m.current.IsTerminal() }

// Transition attempts to move to "to", recording a hash-chained
// StateTransition on success.
func (m *StateMachine) Transition(to RequestStatus, actor Actor, reason string) (*StateTransition, error) {
	if !m.CanTransitionTo(to) {
		return nil, common.InvalidStateTransition(string(m.current), string(to))
	}

	prevHash := ""
	if len(m.transitions) > 0 {
		prevHash = m.transitions[len(m.transitions)-1].Hash
	}

	t := StateTransition{
		ID: uuid.Must(uuid.NewV7()), RequestID: m.requestID,
		From: m.current, To: to, Actor: actor, Reason: reason,
		Timestamp: common.Now(), PrevHash: prevHash,
	}
	t.Hash = transitionHash(t)

	m.transitions = append(m.transitions, t)
	m.current = to
	return &t, nil
}
