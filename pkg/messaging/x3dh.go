package messaging

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/creto-systems/enablement/pkg/common"
)

func generateX25519KeyPair() (priv [32]byte, pub [32]byte, err error) {
	if _, err = io.ReadFull(rand.Reader, priv[:]); err != nil {
		return priv, pub, common.Wrap(common.CodeCrypto, err, "failed to read random bytes for x25519 key")
	}
	// Clamp per RFC 7748.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, common.Wrap(common.CodeCrypto, err, "failed to derive x25519 public key")
	}
	copy(pub[:], p)
	return priv, pub, nil
}

func dh(priv *[32]byte, pub [32]byte) ([]byte, error) {
	out, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return nil, common.Wrap(common.CodeCrypto, err, "x25519 dh computation failed")
	}
	return out, nil
}

// X3DHResult is the output of a completed X3DH handshake: the derived
// 32-byte shared secret plus the parameters that produced it, which the
// Double Ratchet needs to bootstrap its sending/receiving chains.
type X3DHResult struct {
	SharedSecret      [32]byte
	EphemeralPublic   [32]byte
	UsedOneTimePreKey bool
	RecipientBundle   *KeyBundle
}

// InitiateX3DH performs the initiator side of an X3DH handshake against the
// recipient's published public bundle. It verifies the recipient's signed
// prekey signature before deriving key material.
//
// Four DH combinations feed the KDF: (sender identity, recipient identity),
// (sender ephemeral, recipient identity), (sender ephemeral, recipient
// signed prekey), and — when the recipient published one — (sender
// ephemeral, recipient one-time prekey).
func InitiateX3DH(senderIdentity *IdentityKey, recipientBundle *KeyBundle) (*X3DHResult, error) {
	if !senderIdentity.HasPrivateKey() {
		return nil, common.New(common.CodeCrypto, "sender identity key has no private material")
	}
	if !recipientBundle.SignedPreKey.Verify(recipientBundle.IdentityKey.Public) {
		return nil, common.New(common.CodeInvalidKeyBundle, "recipient signed prekey signature invalid")
	}

	ephPriv, ephPub, err := generateX25519KeyPair()
	if err != nil {
		return nil, err
	}

	dh1, err := dh(senderIdentity.dhPrivate, recipientBundle.IdentityKey.DHPublic)
	if err != nil {
		return nil, err
	}
	dh2, err := dh(&ephPriv, recipientBundle.IdentityKey.DHPublic)
	if err != nil {
		return nil, err
	}
	dh3, err := dh(&ephPriv, recipientBundle.SignedPreKey.Public)
	if err != nil {
		return nil, err
	}

	material := concatAll(dh1, dh2, dh3)
	usedOneTime := false
	if recipientBundle.OneTimePreKey != nil {
		dh4, err := dh(&ephPriv, recipientBundle.OneTimePreKey.Public)
		if err != nil {
			return nil, err
		}
		material = append(material, dh4...)
		usedOneTime = true
	}

	secret, err := deriveRootKey(material)
	if err != nil {
		return nil, err
	}

	return &X3DHResult{
		SharedSecret:      secret,
		EphemeralPublic:   ephPub,
		UsedOneTimePreKey: usedOneTime,
		RecipientBundle:   recipientBundle,
	}, nil
}

// RespondX3DH performs the responder side of the handshake: the responder
// already knows its own identity/signed/one-time private keys, and the
// initiator's identity public key and ephemeral public key arrive in the
// first envelope it receives.
func RespondX3DH(
	responderIdentity *IdentityKey,
	responderSignedPreKey *SignedPreKey,
	responderOneTimePreKey *PreKey,
	initiatorIdentityDHPublic [32]byte,
	initiatorEphemeralPublic [32]byte,
) (*X3DHResult, error) {
	if !responderIdentity.HasPrivateKey() || responderSignedPreKey.private == nil {
		return nil, common.New(common.CodeCrypto, "responder key material missing private keys")
	}

	dh1, err := dh(responderIdentity.dhPrivate, initiatorIdentityDHPublic)
	if err != nil {
		return nil, err
	}
	dh2, err := dh(responderIdentity.dhPrivate, initiatorEphemeralPublic)
	if err != nil {
		return nil, err
	}
	dh3, err := dh(responderSignedPreKey.private, initiatorEphemeralPublic)
	if err != nil {
		return nil, err
	}

	material := concatAll(dh1, dh2, dh3)
	usedOneTime := false
	if responderOneTimePreKey != nil {
		dh4, err := dh(responderOneTimePreKey.private, initiatorEphemeralPublic)
		if err != nil {
			return nil, err
		}
		material = append(material, dh4...)
		usedOneTime = true
	}

	secret, err := deriveRootKey(material)
	if err != nil {
		return nil, err
	}

	return &X3DHResult{SharedSecret: secret, EphemeralPublic: initiatorEphemeralPublic, UsedOneTimePreKey: usedOneTime}, nil
}

func concatAll(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func deriveRootKey(material []byte) ([32]byte, error) {
	var out [32]byte
	r := hkdf.New(sha256.New, material, nil, []byte("creto-enablement x3dh root key"))
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return out, common.Wrap(common.CodeCrypto, err, "hkdf derivation failed")
	}
	return out, nil
}
