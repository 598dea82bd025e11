package messaging

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/creto-systems/enablement/pkg/common"
)

// MaxSkipPerChain bounds how many message keys a single receiving chain may
// skip ahead to tolerate out-of-order delivery before Decrypt refuses to
// derive further keys.
const MaxSkipPerChain = 1000

// MaxSkippedKeysStored bounds the total number of skipped message keys held
// in memory across all chains; the oldest skipped key is evicted once this
// is exceeded.
const MaxSkippedKeysStored = 2000

// MessageHeader travels alongside each ciphertext so the receiver can
// advance its ratchet to the matching state.
type MessageHeader struct {
	DH [32]byte
	PN uint32
	N  uint32
}

// EncryptedMessage is a ratchet-encrypted payload plus its header.
type EncryptedMessage struct {
	Header     MessageHeader
	Ciphertext []byte
}

type skippedKey struct {
	dh [32]byte
	n  uint32
}

// RatchetState is the serializable snapshot of a DoubleRatchet, suitable for
// persistence between messages.
type RatchetState struct {
	RootKey       [32]byte
	DHsPublic     [32]byte
	dhsPrivate    [32]byte
	hasDHr        bool
	DHrPublic     [32]byte
	hasSendChain  bool
	SendChainKey  [32]byte
	hasRecvChain  bool
	RecvChainKey  [32]byte
	Ns            uint32
	Nr            uint32
	PN            uint32
	skipped       map[skippedKey][32]byte
	skipOrder     []skippedKey
}

// DoubleRatchet implements the Signal-style Double Ratchet algorithm:
// a DH ratchet that rotates sending/receiving chain keys on every turn of
// the conversation, plus a symmetric-key ratchet within each chain that
// derives one fresh AEAD key per message.
type DoubleRatchet struct {
	state *RatchetState
}

// NewSender bootstraps a ratchet for the X3DH initiator: it generates a
// fresh DH keypair and immediately performs a DH ratchet step against the
// responder's initial ratchet public key (their signed prekey) to derive
// the first sending chain.
func NewSender(sharedSecret [32]byte, theirDH [32]byte) (*DoubleRatchet, error) {
	priv, pub, err := generateX25519KeyPair()
	if err != nil {
		return nil, err
	}
	st := &RatchetState{
		RootKey: sharedSecret, DHsPublic: pub, dhsPrivate: priv,
		hasDHr: true, DHrPublic: theirDH,
		skipped: make(map[skippedKey][32]byte),
	}
	out, err := dh(&st.dhsPrivate, st.DHrPublic)
	if err != nil {
		return nil, err
	}
	newRoot, chainKey, err := kdfRK(st.RootKey, out)
	if err != nil {
		return nil, err
	}
	st.RootKey = newRoot
	st.SendChainKey = chainKey
	st.hasSendChain = true
	return &DoubleRatchet{state: st}, nil
}

// NewReceiver bootstraps a ratchet for the X3DH responder: its initial
// ratchet keypair is the signed prekey it already published, so no DH
// ratchet step runs yet — the receiving chain is only derived once the
// first message arrives and reveals the sender's ratchet public key.
func NewReceiver(sharedSecret [32]byte, ourSignedPreKeyPublic [32]byte, ourSignedPreKeyPrivate [32]byte) *DoubleRatchet {
	return &DoubleRatchet{state: &RatchetState{
		RootKey:    sharedSecret,
		DHsPublic:  ourSignedPreKeyPublic,
		dhsPrivate: ourSignedPreKeyPrivate,
		skipped:    make(map[skippedKey][32]byte),
	}}
}

// State returns the ratchet's current serializable state.
func (r *DoubleRatchet) State() *RatchetState { return r.state }

// Encrypt derives the next sending-chain message key and seals plaintext,
// advancing the sending chain by one step.
func (r *DoubleRatchet) Encrypt(plaintext []byte) (*EncryptedMessage, error) {
	st := r.state
	if !st.hasSendChain {
		return nil, common.New(common.CodeCrypto, "ratchet has no sending chain established")
	}
	chainKey, msgKey, err := kdfCK(st.SendChainKey)
	if err != nil {
		return nil, err
	}
	st.SendChainKey = chainKey
	header := MessageHeader{DH: st.DHsPublic, PN: st.PN, N: st.Ns}
	st.Ns++

	ciphertext, err := seal(msgKey, headerBytes(header), plaintext)
	if err != nil {
		return nil, err
	}
	return &EncryptedMessage{Header: header, Ciphertext: ciphertext}, nil
}

// Decrypt advances the ratchet as needed — performing a DH ratchet step on
// a new sender DH key, and skipping ahead within a chain — and opens msg.
//
// All ratchet-state mutation happens on a scratch copy of the state; the
// real state is only replaced once AEAD authentication succeeds, so a
// forged or corrupted ciphertext never advances the root key, chain keys,
// or DH ratchet position — it simply fails to decrypt.
func (r *DoubleRatchet) Decrypt(msg *EncryptedMessage) ([]byte, error) {
	original := r.state
	candidate := original.clone()
	r.state = candidate

	if key, ok := r.trySkipped(msg.Header); ok {
		plaintext, err := open(key, headerBytes(msg.Header), msg.Ciphertext)
		if err != nil {
			r.state = original
			return nil, err
		}
		return plaintext, nil
	}

	plaintext, err := r.decryptAdvancing(msg)
	if err != nil {
		r.state = original
		return nil, err
	}
	return plaintext, nil
}

// decryptAdvancing performs the DH ratchet step and chain advance against
// r.state (expected to be a scratch candidate) and opens msg. The caller
// is responsible for only committing r.state on success.
func (r *DoubleRatchet) decryptAdvancing(msg *EncryptedMessage) ([]byte, error) {
	st := r.state

	if !st.hasDHr || st.DHrPublic != msg.Header.DH {
		if st.hasRecvChain {
			if err := r.skipMessageKeys(msg.Header.PN); err != nil {
				return nil, err
			}
		}
		if err := r.dhRatchetStep(msg.Header.DH); err != nil {
			return nil, err
		}
	}

	if err := r.skipMessageKeys(msg.Header.N); err != nil {
		return nil, err
	}

	chainKey, msgKey, err := kdfCK(st.RecvChainKey)
	if err != nil {
		return nil, err
	}

	plaintext, err := open(msgKey, headerBytes(msg.Header), msg.Ciphertext)
	if err != nil {
		return nil, err
	}

	st.RecvChainKey = chainKey
	st.Nr++
	return plaintext, nil
}

// clone returns a deep copy of st, including its skipped-key bookkeeping,
// suitable for speculative mutation that can be discarded.
func (st *RatchetState) clone() *RatchetState {
	cp := *st
	cp.skipped = make(map[skippedKey][32]byte, len(st.skipped))
	for k, v := range st.skipped {
		cp.skipped[k] = v
	}
	cp.skipOrder = append([]skippedKey(nil), st.skipOrder...)
	return &cp
}

func (r *DoubleRatchet) trySkipped(h MessageHeader) ([32]byte, bool) {
	st := r.state
	key := skippedKey{dh: h.DH, n: h.N}
	mk, ok := st.skipped[key]
	if ok {
		delete(st.skipped, key)
		for i, k := range st.skipOrder {
			if k == key {
				st.skipOrder = append(st.skipOrder[:i], st.skipOrder[i+1:]...)
				break
			}
		}
	}
	return mk, ok
}

func (r *DoubleRatchet) skipMessageKeys(until uint32) error {
	st := r.state
	if !st.hasRecvChain {
		return nil
	}
	if until < st.Nr {
		return nil
	}
	if until-st.Nr > MaxSkipPerChain {
		return common.New(common.CodeDecryptionFailed, "too many skipped messages in chain: %d", until-st.Nr)
	}
	for st.Nr < until {
		chainKey, msgKey, err := kdfCK(st.RecvChainKey)
		if err != nil {
			return err
		}
		st.RecvChainKey = chainKey
		key := skippedKey{dh: st.DHrPublic, n: st.Nr}
		st.skipped[key] = msgKey
		st.skipOrder = append(st.skipOrder, key)
		st.Nr++

		if len(st.skipOrder) > MaxSkippedKeysStored {
			oldest := st.skipOrder[0]
			st.skipOrder = st.skipOrder[1:]
			delete(st.skipped, oldest)
		}
	}
	return nil
}

func (r *DoubleRatchet) dhRatchetStep(theirNewDH [32]byte) error {
	st := r.state
	st.PN = st.Ns
	st.Ns = 0
	st.Nr = 0
	st.hasDHr = true
	st.DHrPublic = theirNewDH

	out, err := dh(&st.dhsPrivate, st.DHrPublic)
	if err != nil {
		return err
	}
	newRoot, recvChain, err := kdfRK(st.RootKey, out)
	if err != nil {
		return err
	}
	st.RootKey = newRoot
	st.RecvChainKey = recvChain
	st.hasRecvChain = true

	priv, pub, err := generateX25519KeyPair()
	if err != nil {
		return err
	}
	st.dhsPrivate = priv
	st.DHsPublic = pub

	out2, err := dh(&st.dhsPrivate, st.DHrPublic)
	if err != nil {
		return err
	}
	newRoot2, sendChain, err := kdfRK(st.RootKey, out2)
	if err != nil {
		return err
	}
	st.RootKey = newRoot2
	st.SendChainKey = sendChain
	st.hasSendChain = true
	return nil
}

// kdfRK derives a new root key and chain key from the current root key and
// a fresh DH output.
func kdfRK(rootKey [32]byte, dhOut []byte) (newRoot [32]byte, chainKey [32]byte, err error) {
	r := hkdf.New(sha256.New, dhOut, rootKey[:], []byte("creto-enablement ratchet root"))
	var out [64]byte
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return newRoot, chainKey, common.Wrap(common.CodeCrypto, err, "root kdf failed")
	}
	copy(newRoot[:], out[:32])
	copy(chainKey[:], out[32:])
	return newRoot, chainKey, nil
}

// kdfCK derives the next chain key and a message key from the current
// chain key, using HMAC-SHA256 with constant inputs (Signal's symmetric
// ratchet KDF).
func kdfCK(chainKey [32]byte) (newChainKey [32]byte, messageKey [32]byte, err error) {
	mac := hmac.New(sha256.New, chainKey[:])
	mac.Write([]byte{0x01})
	copy(messageKey[:], mac.Sum(nil))

	mac = hmac.New(sha256.New, chainKey[:])
	mac.Write([]byte{0x02})
	copy(newChainKey[:], mac.Sum(nil))
	return newChainKey, messageKey, nil
}

func headerBytes(h MessageHeader) []byte {
	out := make([]byte, 0, 32+4+4)
	out = append(out, h.DH[:]...)
	out = append(out, byte(h.PN>>24), byte(h.PN>>16), byte(h.PN>>8), byte(h.PN))
	out = append(out, byte(h.N>>24), byte(h.N>>16), byte(h.N>>8), byte(h.N))
	return out
}

func seal(key [32]byte, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, common.Wrap(common.CodeCrypto, err, "failed to init aead")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, common.Wrap(common.CodeCrypto, err, "failed to read nonce")
	}
	ciphertext := aead.Seal(nonce, nonce, plaintext, aad)
	return ciphertext, nil
}

func open(key [32]byte, aad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, common.Wrap(common.CodeCrypto, err, "failed to init aead")
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, common.New(common.CodeDecryptionFailed, "ciphertext shorter than nonce")
	}
	nonce, ct := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, common.Wrap(common.CodeDecryptionFailed, err, "aead decryption failed")
	}
	return pt, nil
}
