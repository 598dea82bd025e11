package messaging

import (
	"testing"

	"github.com/creto-systems/enablement/pkg/common"
)

// Fuzz targets mirrored from original_source's
// creto-messaging/fuzz/fuzz_targets/envelope_deserialize.rs.

func FuzzEnvelopeFromBytes(f *testing.F) {
	seed := NewEnvelope(common.NewAgentId(), common.NewAgentId(), MessageHeader{N: 1}, []byte("ciphertext"))
	seedBytes, err := seed.ToBytes()
	if err == nil {
		f.Add(seedBytes)
	}
	f.Add([]byte(""))
	f.Add([]byte("not json at all"))
	f.Add([]byte(`{"id": "not-a-uuid"}`))
	f.Add([]byte{0x00, 0xff, 0x01, 0x02})

	f.Fuzz(func(t *testing.T, data []byte) {
		// EnvelopeFromBytes must never panic on arbitrary input, and any
		// envelope it does decode must re-encode without error.
		env, err := EnvelopeFromBytes(data)
		if err != nil {
			return
		}
		if _, err := env.ToBytes(); err != nil {
			t.Fatalf("decoded envelope failed to re-encode: %v", err)
		}
	})
}

func FuzzEnvelopeFromWireBytes(f *testing.F) {
	seed := NewEnvelope(common.NewAgentId(), common.NewAgentId(), MessageHeader{PN: 2, N: 1}, []byte("ciphertext")).WithContentType(ContentToolRequest)
	seedBytes, err := seed.ToWireBytes()
	if err == nil {
		f.Add(seedBytes)
	}
	f.Add([]byte(""))
	f.Add([]byte{0x01, 0x02, 0x03})

	f.Fuzz(func(t *testing.T, data []byte) {
		// EnvelopeFromWireBytes must never panic on arbitrary input.
		env, err := EnvelopeFromWireBytes(data)
		if err != nil {
			return
		}
		if _, err := env.ToWireBytes(); err != nil {
			t.Fatalf("decoded wire envelope failed to re-encode: %v", err)
		}
	})
}
