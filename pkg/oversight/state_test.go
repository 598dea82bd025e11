package oversight

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidTransitionsFromPending(t *testing.T) {
	m := NewStateMachine(uuid.Must(uuid.NewV7()))

	assert.True(t, m.CanTransitionTo(RequestInReview))
	assert.True(t, m.CanTransitionTo(RequestApproved))
	assert.True(t, m.CanTransitionTo(RequestRejected))
	assert.True(t, m.CanTransitionTo(RequestEscalated))
	assert.True(t, m.CanTransitionTo(RequestTimedOut))
	assert.True(t, m.CanTransitionTo(RequestCancelled))
	assert.False(t, m.CanTransitionTo(RequestPending))
}

func TestTerminalStatesHaveNoValidTransitions(t *testing.T) {
	for _, s := range []RequestStatus{RequestApproved, RequestRejected, RequestTimedOut, RequestCancelled} {
		m := FromState(uuid.Must(uuid.NewV7()), s)
		assert.Empty(t, m.ValidTransitions(), "terminal state %s should have no valid transitions", s)
	}
}

func TestEscalatedCannotReturnToInReview(t *testing.T) {
	m := FromState(uuid.Must(uuid.NewV7()), RequestEscalated)
	assert.False(t, m.CanTransitionTo(RequestInReview))
	assert.True(t, m.CanTransitionTo(RequestApproved))
	assert.True(t, m.CanTransitionTo(RequestRejected))
}

func TestTransitionRecordsHashChainedHistory(t *testing.T) {
	m := NewStateMachine(uuid.Must(uuid.NewV7()))

	_, err := m.Transition(RequestInReview, SystemActor(), "starting review")
	require.NoError(t, err)
	_, err = m.Transition(RequestApproved, SystemActor(), "looks good")
	require.NoError(t, err)

	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, RequestApproved, m.Current())
	assert.Equal(t, "", history[0].PrevHash)
	assert.Equal(t, history[0].Hash, history[1].PrevHash)
	assert.True(t, VerifyChain(history))
}

func TestInvalidTransitionReturnsError(t *testing.T) {
	m := FromState(uuid.Must(uuid.NewV7()), RequestApproved)
	_, err := m.Transition(RequestPending, SystemActor(), "")
	assert.Error(t, err)
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	m := NewStateMachine(uuid.Must(uuid.NewV7()))
	_, _ = m.Transition(RequestInReview, SystemActor(), "")
	_, _ = m.Transition(RequestApproved, SystemActor(), "")

	history := m.History()
	history[1].Reason = "tampered"
	assert.False(t, VerifyChain(history))
}
