package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creto-systems/enablement/pkg/common"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	sender := common.NewAgentId()
	recipient := common.NewAgentId()
	env := NewEnvelope(sender, recipient, MessageHeader{N: 3}, []byte("ciphertext")).WithContentType(ContentToolRequest)

	data, err := env.ToBytes()
	require.NoError(t, err)

	decoded, err := EnvelopeFromBytes(data)
	require.NoError(t, err)

	assert.Equal(t, env.ID, decoded.ID)
	assert.Equal(t, env.Header.SenderID, decoded.Header.SenderID)
	assert.Equal(t, env.Header.ContentType, decoded.Header.ContentType)
	assert.Equal(t, env.Payload.Ciphertext, decoded.Payload.Ciphertext)
}

func TestEnvelopeFromBytesNeverPanicsOnMalformedInput(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte(""),
		[]byte("not json at all"),
		[]byte(`{"id": "not-a-uuid"}`),
		[]byte(`{"id": 12345}`),
		{0x00, 0xff, 0x01, 0x02},
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_, _ = EnvelopeFromBytes(in)
		})
	}
}

func TestDeliveryReceiptSignatureIsNeverPopulated(t *testing.T) {
	env := NewEnvelope(common.NewAgentId(), common.NewAgentId(), MessageHeader{}, []byte("x"))
	receipt := DeliveredReceipt(env.ID)
	assert.Empty(t, receipt.Signature)
	assert.Equal(t, ReceiptDelivered, receipt.ReceiptType)
}
