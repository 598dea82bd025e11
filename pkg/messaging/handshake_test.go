package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creto-systems/enablement/pkg/common"
)

func buildBundle(t *testing.T, agent common.AgentId, withOneTime bool) (*KeyBundle, *IdentityKey, *SignedPreKey, *PreKey) {
	t.Helper()
	identity, err := GenerateIdentityKey(agent)
	require.NoError(t, err)
	signed, err := GenerateSignedPreKey(1, identity)
	require.NoError(t, err)

	var oneTime *PreKey
	if withOneTime {
		oneTime, err = GeneratePreKey(1)
		require.NoError(t, err)
	}
	bundle := NewKeyBundle(agent, identity, signed, oneTime)
	return bundle, identity, signed, oneTime
}

func TestX3DHHandshakeAgreesOnSharedSecret(t *testing.T) {
	alice := common.NewAgentId()
	bob := common.NewAgentId()

	bobBundle, bobIdentity, bobSigned, bobOneTime := buildBundle(t, bob, true)
	aliceIdentity, err := GenerateIdentityKey(alice)
	require.NoError(t, err)

	aliceResult, err := InitiateX3DH(aliceIdentity, bobBundle.PublicBundle())
	require.NoError(t, err)

	bobResult, err := RespondX3DH(bobIdentity, bobSigned, bobOneTime, aliceIdentity.DHPublic, aliceResult.EphemeralPublic)
	require.NoError(t, err)

	assert.Equal(t, aliceResult.SharedSecret, bobResult.SharedSecret)
	assert.True(t, aliceResult.UsedOneTimePreKey)
	assert.True(t, bobResult.UsedOneTimePreKey)
}

func TestX3DHRejectsInvalidSignedPreKeySignature(t *testing.T) {
	alice := common.NewAgentId()
	bob := common.NewAgentId()
	bobBundle, _, _, _ := buildBundle(t, bob, false)

	forged, err := GenerateSignedPreKey(2, mustIdentity(t, bob))
	require.NoError(t, err)
	bobBundle.SignedPreKey = forged // signed by a different identity key

	aliceIdentity, err := GenerateIdentityKey(alice)
	require.NoError(t, err)

	_, err = InitiateX3DH(aliceIdentity, bobBundle)
	require.Error(t, err)
}

func mustIdentity(t *testing.T, agent common.AgentId) *IdentityKey {
	t.Helper()
	k, err := GenerateIdentityKey(agent)
	require.NoError(t, err)
	return k
}

func TestSessionRoundTripEncryptDecrypt(t *testing.T) {
	alice := common.NewAgentId()
	bob := common.NewAgentId()

	bobBundle, bobIdentity, bobSigned, bobOneTime := buildBundle(t, bob, true)
	aliceIdentity, err := GenerateIdentityKey(alice)
	require.NoError(t, err)

	aliceResult, err := InitiateX3DH(aliceIdentity, bobBundle.PublicBundle())
	require.NoError(t, err)
	bobResult, err := RespondX3DH(bobIdentity, bobSigned, bobOneTime, aliceIdentity.DHPublic, aliceResult.EphemeralPublic)
	require.NoError(t, err)

	aliceSession, err := NewInitiatorSession(alice, bob, aliceResult)
	require.NoError(t, err)
	bobSession := NewResponderSession(bob, alice, bobResult, bobSigned.Public, bobSessionPrivate(bobSigned))

	env, err := aliceSession.Encrypt([]byte("hello bob"))
	require.NoError(t, err)

	plaintext, err := bobSession.Decrypt(env)
	require.NoError(t, err)
	assert.Equal(t, "hello bob", string(plaintext))
}

func bobSessionPrivate(k *SignedPreKey) [32]byte {
	return *k.private
}

func TestRatchetSkippedMessagesAreBounded(t *testing.T) {
	alice := common.NewAgentId()
	bob := common.NewAgentId()

	bobBundle, bobIdentity, bobSigned, _ := buildBundle(t, bob, false)
	aliceIdentity, err := GenerateIdentityKey(alice)
	require.NoError(t, err)

	aliceResult, err := InitiateX3DH(aliceIdentity, bobBundle.PublicBundle())
	require.NoError(t, err)
	bobResult, err := RespondX3DH(bobIdentity, bobSigned, nil, aliceIdentity.DHPublic, aliceResult.EphemeralPublic)
	require.NoError(t, err)

	aliceSession, err := NewInitiatorSession(alice, bob, aliceResult)
	require.NoError(t, err)
	bobSession := NewResponderSession(bob, alice, bobResult, bobSigned.Public, *bobSigned.private)

	first, err := aliceSession.Encrypt([]byte("first"))
	require.NoError(t, err)

	for i := 0; i < MaxSkipPerChain+5; i++ {
		_, err := aliceSession.Encrypt([]byte("filler"))
		require.NoError(t, err)
	}
	tooFarAhead, err := aliceSession.Encrypt([]byte("too far ahead"))
	require.NoError(t, err)

	_, err = bobSession.Decrypt(tooFarAhead)
	require.Error(t, err, "decrypting a message this far ahead without the skipped keys must fail")
	_ = first
}
