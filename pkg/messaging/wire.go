package messaging

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/creto-systems/enablement/pkg/common"
)

// contentTypeCode/contentTypeFromCode map ContentType to the 1-byte enum
// tag used on the wire. The table is closed and ordinal, matching spec §6's
// "content_type: 1B enum".
var wireContentTypes = []ContentType{
	ContentText, ContentJSON, ContentBinary, ContentToolRequest,
	ContentToolResponse, ContentStatus, ContentControl,
}

func contentTypeCode(ct ContentType) (byte, bool) {
	for i, c := range wireContentTypes {
		if c == ct {
			return byte(i), true
		}
	}
	return 0, false
}

func contentTypeFromCode(code byte) (ContentType, bool) {
	if int(code) >= len(wireContentTypes) {
		return "", false
	}
	return wireContentTypes[code], true
}

// ToWireBytes encodes the envelope into the fixed-layout binary format from
// spec §6: a literal byte-offset codec with no reflection, used by the
// fuzz target and by callers that need the exact pinned wire layout.
// JSON (ToBytes/EnvelopeFromBytes) remains the default, readable codec.
func (e *Envelope) ToWireBytes() ([]byte, error) {
	code, ok := contentTypeCode(e.Header.ContentType)
	if !ok {
		return nil, common.New(common.CodeSerialization, "unknown content type %q", e.Header.ContentType)
	}

	buf := make([]byte, 0, 128+len(e.Payload.Ciphertext)+len(e.Payload.MAC))
	buf = append(buf, e.ID[:]...)
	buf = append(buf, e.Version)

	senderUUID := e.Header.SenderID.UUID()
	recipientUUID := e.Header.RecipientID.UUID()
	buf = append(buf, senderUUID[:]...)
	buf = append(buf, recipientUUID[:]...)

	buf = append(buf, e.Header.RatchetHeader.DH[:]...)
	buf = binary.BigEndian.AppendUint32(buf, e.Header.RatchetHeader.PN)
	buf = binary.BigEndian.AppendUint32(buf, e.Header.RatchetHeader.N)

	buf = append(buf, code)

	if e.Header.ReplyTo != nil {
		buf = append(buf, 1)
		buf = append(buf, e.Header.ReplyTo[:]...)
	} else {
		buf = append(buf, 0)
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.Payload.Ciphertext)))
	buf = append(buf, e.Payload.Ciphertext...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.Payload.MAC)))
	buf = append(buf, e.Payload.MAC...)

	buf = binary.BigEndian.AppendUint64(buf, uint64(e.Timestamp))

	return buf, nil
}

// EnvelopeFromWireBytes decodes the fixed-layout binary format produced by
// ToWireBytes. It never panics: every field is bounds-checked before use,
// and any malformed or truncated input yields an error.
func EnvelopeFromWireBytes(data []byte) (*Envelope, error) {
	r := &wireReader{data: data}

	var e Envelope
	idBytes, err := r.take(16)
	if err != nil {
		return nil, err
	}
	copy(e.ID[:], idBytes)

	version, err := r.byte()
	if err != nil {
		return nil, err
	}
	e.Version = version

	senderBytes, err := r.take(16)
	if err != nil {
		return nil, err
	}
	senderUUID, err := uuid.FromBytes(senderBytes)
	if err != nil {
		return nil, common.Wrap(common.CodeSerialization, err, "malformed sender id")
	}
	e.Header.SenderID = common.AgentIdFromUUID(senderUUID)

	recipientBytes, err := r.take(16)
	if err != nil {
		return nil, err
	}
	recipientUUID, err := uuid.FromBytes(recipientBytes)
	if err != nil {
		return nil, common.Wrap(common.CodeSerialization, err, "malformed recipient id")
	}
	e.Header.RecipientID = common.AgentIdFromUUID(recipientUUID)

	dhBytes, err := r.take(32)
	if err != nil {
		return nil, err
	}
	copy(e.Header.RatchetHeader.DH[:], dhBytes)

	pn, err := r.uint32()
	if err != nil {
		return nil, err
	}
	e.Header.RatchetHeader.PN = pn

	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	e.Header.RatchetHeader.N = n

	code, err := r.byte()
	if err != nil {
		return nil, err
	}
	ct, ok := contentTypeFromCode(code)
	if !ok {
		return nil, common.New(common.CodeSerialization, "unknown content type code %d", code)
	}
	e.Header.ContentType = ct

	hasReplyTo, err := r.byte()
	if err != nil {
		return nil, err
	}
	if hasReplyTo != 0 {
		replyBytes, err := r.take(16)
		if err != nil {
			return nil, err
		}
		replyUUID, err := uuid.FromBytes(replyBytes)
		if err != nil {
			return nil, common.Wrap(common.CodeSerialization, err, "malformed reply_to id")
		}
		e.Header.ReplyTo = &replyUUID
	}

	ciphertext, err := r.takeLengthPrefixed()
	if err != nil {
		return nil, err
	}
	e.Payload.Ciphertext = ciphertext

	mac, err := r.takeLengthPrefixed()
	if err != nil {
		return nil, err
	}
	e.Payload.MAC = mac

	ts, err := r.uint64()
	if err != nil {
		return nil, err
	}
	e.Timestamp = common.Timestamp(ts)

	if !r.atEnd() {
		return nil, common.New(common.CodeSerialization, "trailing bytes after envelope")
	}

	return &e, nil
}

// wireReader is a bounds-checked cursor over a byte slice; every read
// method returns an error instead of panicking on underflow.
type wireReader struct {
	data []byte
	pos  int
}

func (r *wireReader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, common.New(common.CodeSerialization, "envelope wire data truncated")
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *wireReader) byte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *wireReader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *wireReader) uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *wireReader) takeLengthPrefixed() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (r *wireReader) atEnd() bool { return r.pos == len(r.data) }
