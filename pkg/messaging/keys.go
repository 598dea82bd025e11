// Package messaging implements the Messaging Core: X3DH handshakes, the
// Double Ratchet, envelope encoding, and the channel/topic delivery layer
// agents use to exchange end-to-end encrypted messages.
package messaging

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"

	"github.com/google/uuid"

	"github.com/creto-systems/enablement/pkg/common"
)

// IdentityKey is an agent's long-term identity keypair. It carries two
// keypairs sharing one identity: an Ed25519 pair used only to sign signed
// prekeys, and an X25519 pair used only for X3DH Diffie-Hellman. Keeping
// them separate avoids relying on an Edwards/Montgomery point conversion.
// Private material is nil once the key has been stripped for a public
// bundle.
type IdentityKey struct {
	ID         uuid.UUID
	AgentID    common.AgentId
	Public     ed25519.PublicKey // signing public key
	DHPublic   [32]byte          // X25519 public key
	private    ed25519.PrivateKey
	dhPrivate  *[32]byte
}

// GenerateIdentityKey creates a new identity key for agent.
func GenerateIdentityKey(agent common.AgentId) (*IdentityKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, common.Wrap(common.CodeCrypto, err, "identity key generation failed")
	}
	dhPriv, dhPub, err := generateX25519KeyPair()
	if err != nil {
		return nil, err
	}
	return &IdentityKey{
		ID: uuid.Must(uuid.NewV7()), AgentID: agent,
		Public: pub, DHPublic: dhPub,
		private: priv, dhPrivate: &dhPriv,
	}, nil
}

// HasPrivateKey reports whether this key carries private material.
func (k *IdentityKey) HasPrivateKey() bool { return k.private != nil }

// PublicOnly strips the private key, returning a copy safe to publish.
func (k *IdentityKey) PublicOnly() *IdentityKey {
	return &IdentityKey{ID: k.ID, AgentID: k.AgentID, Public: k.Public, DHPublic: k.DHPublic}
}

// PreKey is a one-time-use X25519 prekey published to a key server.
type PreKey struct {
	ID      uint32
	Public  [32]byte
	private *[32]byte
}

// GeneratePreKey creates a single one-time prekey with the given ID.
func GeneratePreKey(id uint32) (*PreKey, error) {
	priv, pub, err := generateX25519KeyPair()
	if err != nil {
		return nil, err
	}
	return &PreKey{ID: id, Public: pub, private: &priv}, nil
}

// GeneratePreKeyBatch creates count sequential prekeys starting at startID.
func GeneratePreKeyBatch(startID uint32, count int) ([]*PreKey, error) {
	out := make([]*PreKey, 0, count)
	for i := 0; i < count; i++ {
		pk, err := GeneratePreKey(startID + uint32(i))
		if err != nil {
			return nil, err
		}
		out = append(out, pk)
	}
	return out, nil
}

func (k *PreKey) PublicOnly() *PreKey { return &PreKey{ID: k.ID, Public: k.Public} }

// SignedPreKey is a medium-term X25519 prekey signed by the owning identity
// key, rotated on a slower cadence than one-time prekeys.
type SignedPreKey struct {
	ID        uint32
	Public    [32]byte
	Signature []byte
	Timestamp common.Timestamp
	private   *[32]byte
}

// GenerateSignedPreKey creates a signed prekey and signs it with identity.
func GenerateSignedPreKey(id uint32, identity *IdentityKey) (*SignedPreKey, error) {
	if !identity.HasPrivateKey() {
		return nil, common.New(common.CodeCrypto, "identity key has no private material to sign with")
	}
	priv, pub, err := generateX25519KeyPair()
	if err != nil {
		return nil, err
	}
	sig := ed25519.Sign(identity.private, pub[:])
	return &SignedPreKey{ID: id, Public: pub, Signature: sig, Timestamp: common.Now(), private: &priv}, nil
}

// Verify checks the signed prekey's signature against the signer's identity
// public key. Unlike the reference it supersedes, this actually verifies.
func (k *SignedPreKey) Verify(identityPublic ed25519.PublicKey) bool {
	return ed25519.Verify(identityPublic, k.Public[:], k.Signature)
}

func (k *SignedPreKey) PublicOnly() *SignedPreKey {
	return &SignedPreKey{ID: k.ID, Public: k.Public, Signature: k.Signature, Timestamp: k.Timestamp}
}

// KeyBundle is everything a sender needs to initiate an X3DH handshake with
// an agent: its identity key, current signed prekey, and optionally a
// one-time prekey.
type KeyBundle struct {
	AgentID       common.AgentId
	IdentityKey   *IdentityKey
	SignedPreKey  *SignedPreKey
	OneTimePreKey *PreKey
}

// NewKeyBundle assembles a bundle from the agent's current key material.
func NewKeyBundle(agent common.AgentId, identity *IdentityKey, signed *SignedPreKey, oneTime *PreKey) *KeyBundle {
	return &KeyBundle{AgentID: agent, IdentityKey: identity, SignedPreKey: signed, OneTimePreKey: oneTime}
}

// PublicBundle strips all private material, safe to hand to a counterparty.
func (b *KeyBundle) PublicBundle() *KeyBundle {
	var oneTime *PreKey
	if b.OneTimePreKey != nil {
		oneTime = b.OneTimePreKey.PublicOnly()
	}
	return &KeyBundle{
		AgentID:      b.AgentID,
		IdentityKey:  b.IdentityKey.PublicOnly(),
		SignedPreKey: b.SignedPreKey.PublicOnly(),
		OneTimePreKey: oneTime,
	}
}

// KeyStore persists and serves key material for the handshake.
type KeyStore interface {
	StoreIdentityKey(ctx context.Context, agent common.AgentId, key *IdentityKey) error
	GetIdentityKey(ctx context.Context, agent common.AgentId) (*IdentityKey, error)
	StoreBundle(ctx context.Context, bundle *KeyBundle) error
	GetBundle(ctx context.Context, agent common.AgentId) (*KeyBundle, error)
	ConsumePreKey(ctx context.Context, agent common.AgentId) (*PreKey, error)
	UploadPreKeys(ctx context.Context, agent common.AgentId, keys []*PreKey) error
	PreKeyCount(ctx context.Context, agent common.AgentId) (int, error)
}
