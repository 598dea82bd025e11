package messaging

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creto-systems/enablement/pkg/common"
)

func idsOf(envs []*Envelope) []uuid.UUID {
	ids := make([]uuid.UUID, len(envs))
	for i, e := range envs {
		ids[i] = e.ID
	}
	return ids
}

func TestRetryPolicyBackoffFormula(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, int64(0), p.BackoffMs(0))
	assert.Equal(t, int64(100), p.BackoffMs(1))
	assert.Equal(t, int64(200), p.BackoffMs(2))
	assert.Equal(t, int64(400), p.BackoffMs(3))
}

func TestRetryPolicyBackoffCapsAtMax(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, InitialBackoffMs: 100, MaxBackoffMs: 1000, Multiplier: 2.0}
	assert.Equal(t, int64(1000), p.BackoffMs(10))
}

func TestInMemoryChannelSendReceiveAcknowledge(t *testing.T) {
	ch := NewInMemoryChannel()
	sender := common.NewAgentId()
	recipient := common.NewAgentId()
	env := NewEnvelope(sender, recipient, MessageHeader{}, []byte("hi"))

	ctx := context.Background()
	require.NoError(t, ch.Send(ctx, env))

	received, err := ch.Receive(ctx, recipient)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, env.ID, received[0].ID)

	require.NoError(t, ch.Acknowledge(ctx, nil))
	require.NoError(t, ch.Acknowledge(ctx, idsOf(received)))

	afterAck, err := ch.Receive(ctx, recipient)
	require.NoError(t, err)
	assert.Empty(t, afterAck)
}

func TestChannelRouterUsesDefaultOnly(t *testing.T) {
	a := NewInMemoryChannel()
	b := NewInMemoryChannel()
	router := NewChannelRouter([]Channel{a, b})

	env := NewEnvelope(common.NewAgentId(), common.NewAgentId(), MessageHeader{}, []byte("x"))
	ch, err := router.Route(env)
	require.NoError(t, err)
	assert.Same(t, a, ch)

	router.DefaultChannel = 1
	ch, err = router.Route(env)
	require.NoError(t, err)
	assert.Same(t, b, ch)
}
