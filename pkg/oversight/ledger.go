package oversight

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// transitionHash computes a content hash over t's causally-relevant fields
// chained against the previous transition's hash, rendered as "sha256:"
// followed by the hex SHA-256 of the payload's canonical JSON.
// The Hash field itself is excluded from the hashed payload.
func transitionHash(t StateTransition) string {
	payload := struct {
		ID        string `json:"id"`
		RequestID string `json:"request_id"`
		From      string `json:"from"`
		To        string `json:"to"`
		Actor     Actor  `json:"actor"`
		Reason    string `json:"reason"`
		Timestamp int64  `json:"timestamp"`
		PrevHash  string `json:"prev_hash"`
	}{
		ID: t.ID.String(), RequestID: t.RequestID.String(),
		From: string(t.From), To: string(t.To), Actor: t.Actor,
		Reason: t.Reason, Timestamp: int64(t.Timestamp), PrevHash: t.PrevHash,
	}

	// json.Marshal on a fixed struct field order is deterministic, giving
	// canonical encoding without a dedicated JCS dependency.
	b, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// VerifyChain reports whether every transition's PrevHash/Hash correctly
// chains to its predecessor, detecting tampering or reordering of an
// append-only transition log.
func VerifyChain(transitions []StateTransition) bool {
	prev := ""
	for _, t := range transitions {
		if t.PrevHash != prev {
			return false
		}
		if transitionHash(t) != t.Hash {
			return false
		}
		prev = t.Hash
	}
	return true
}
