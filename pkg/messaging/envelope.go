package messaging

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/creto-systems/enablement/pkg/common"
)

// ContentType classifies an envelope's payload so a receiver can dispatch
// it without decrypting first.
type ContentType string

const (
	ContentText         ContentType = "text"
	ContentJSON         ContentType = "json"
	ContentBinary       ContentType = "binary"
	ContentToolRequest  ContentType = "tool_request"
	ContentToolResponse ContentType = "tool_response"
	ContentStatus       ContentType = "status"
	ContentControl      ContentType = "control"
)

// EncryptedPayload is the sealed message body: ciphertext plus the AEAD tag
// folded in by Seal (chacha20poly1305 appends its tag to the ciphertext, so
// MAC is carried for wire-format parity with implementations that keep it
// separate).
type EncryptedPayload struct {
	Ciphertext []byte `json:"ciphertext"`
	MAC        []byte `json:"mac,omitempty"`
}

// EnvelopeHeader carries routing and ratchet metadata alongside the
// ciphertext.
type EnvelopeHeader struct {
	SenderID      common.AgentId `json:"sender_id"`
	RecipientID   common.AgentId `json:"recipient_id"`
	RatchetHeader MessageHeader  `json:"ratchet_header"`
	ContentType   ContentType    `json:"content_type"`
	ReplyTo       *uuid.UUID     `json:"reply_to,omitempty"`
}

// Envelope is the self-describing unit of transport for an encrypted
// message: a stable byte format that decodes to exactly the fields encoded,
// or fails cleanly — it never panics on malformed input.
type Envelope struct {
	ID        uuid.UUID        `json:"id"`
	Version   uint8            `json:"version"`
	Header    EnvelopeHeader   `json:"header"`
	Payload   EncryptedPayload `json:"payload"`
	Timestamp common.Timestamp `json:"timestamp"`
}

const envelopeVersion uint8 = 1

// NewEnvelope builds an envelope wrapping an already-encrypted message.
func NewEnvelope(sender, recipient common.AgentId, ratchetHeader MessageHeader, ciphertext []byte) *Envelope {
	return &Envelope{
		ID:      uuid.Must(uuid.NewV7()),
		Version: envelopeVersion,
		Header: EnvelopeHeader{
			SenderID: sender, RecipientID: recipient,
			RatchetHeader: ratchetHeader, ContentType: ContentText,
		},
		Payload:   EncryptedPayload{Ciphertext: ciphertext},
		Timestamp: common.Now(),
	}
}

// WithContentType sets the envelope's content type and returns it for
// chaining.
func (e *Envelope) WithContentType(ct ContentType) *Envelope {
	e.Header.ContentType = ct
	return e
}

// WithReplyTo marks this envelope as replying to another message.
func (e *Envelope) WithReplyTo(id uuid.UUID) *Envelope {
	e.Header.ReplyTo = &id
	return e
}

// ToBytes serializes the envelope to its wire format.
func (e *Envelope) ToBytes() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, common.Wrap(common.CodeSerialization, err, "failed to encode envelope")
	}
	return b, nil
}

// EnvelopeFromBytes decodes an envelope from its wire format. Malformed
// input always returns an error; it never panics.
func EnvelopeFromBytes(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, common.Wrap(common.CodeSerialization, err, "failed to decode envelope")
	}
	return &e, nil
}

// ReceiptType classifies a DeliveryReceipt.
type ReceiptType string

const (
	ReceiptDelivered ReceiptType = "delivered"
	ReceiptRead      ReceiptType = "read"
	ReceiptFailed    ReceiptType = "failed"
)

// DeliveryReceipt acknowledges an envelope's delivery or read state.
// Signature is left empty pending a receipt-signing scheme (see Open
// Questions); it is never populated by this implementation.
type DeliveryReceipt struct {
	MessageID   uuid.UUID        `json:"message_id"`
	ReceiptType ReceiptType      `json:"receipt_type"`
	Timestamp   common.Timestamp `json:"timestamp"`
	Signature   []byte           `json:"signature,omitempty"`
}

// DeliveredReceipt builds a "delivered" receipt for messageID.
func DeliveredReceipt(messageID uuid.UUID) *DeliveryReceipt {
	return &DeliveryReceipt{MessageID: messageID, ReceiptType: ReceiptDelivered, Timestamp: common.Now()}
}

// ReadReceipt builds a "read" receipt for messageID.
func ReadReceipt(messageID uuid.UUID) *DeliveryReceipt {
	return &DeliveryReceipt{MessageID: messageID, ReceiptType: ReceiptRead, Timestamp: common.Now()}
}

// EnvelopeBatch groups multiple envelopes for a single batched send.
type EnvelopeBatch struct {
	ID        uuid.UUID        `json:"id"`
	Envelopes []*Envelope      `json:"envelopes"`
	Timestamp common.Timestamp `json:"timestamp"`
}

// NewEnvelopeBatch wraps envelopes into a single batch.
func NewEnvelopeBatch(envelopes []*Envelope) *EnvelopeBatch {
	return &EnvelopeBatch{ID: uuid.Must(uuid.NewV7()), Envelopes: envelopes, Timestamp: common.Now()}
}
