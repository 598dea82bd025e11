package messaging

import (
	"context"

	"github.com/google/uuid"

	"github.com/creto-systems/enablement/pkg/common"
)

// SessionState is the lifecycle state of a messaging Session.
type SessionState string

const (
	SessionEstablishing SessionState = "establishing"
	SessionActive       SessionState = "active"
	SessionSuspended    SessionState = "suspended"
	SessionClosed       SessionState = "closed"
	SessionFailed       SessionState = "failed"
)

// Session binds a Double Ratchet to a pair of agents and tracks its
// lifecycle state.
type Session struct {
	ID           uuid.UUID
	LocalAgent   common.AgentId
	RemoteAgent  common.AgentId
	ratchet      *DoubleRatchet
	State        SessionState
	CreatedAt    common.Timestamp
	LastActiveAt common.Timestamp
}

// NewInitiatorSession creates a session as the X3DH initiator, bootstrapping
// its ratchet as a sender against the recipient's initial ratchet key (its
// signed prekey).
func NewInitiatorSession(local, remote common.AgentId, x3dh *X3DHResult) (*Session, error) {
	ratchet, err := NewSender(x3dh.SharedSecret, x3dh.RecipientBundle.SignedPreKey.Public)
	if err != nil {
		return nil, err
	}
	now := common.Now()
	return &Session{
		ID: uuid.Must(uuid.NewV7()), LocalAgent: local, RemoteAgent: remote,
		ratchet: ratchet, State: SessionActive, CreatedAt: now, LastActiveAt: now,
	}, nil
}

// NewResponderSession creates a session as the X3DH responder, bootstrapping
// its ratchet with the signed prekey keypair it already published.
func NewResponderSession(local, remote common.AgentId, x3dh *X3DHResult, ourSignedPreKeyPublic, ourSignedPreKeyPrivate [32]byte) *Session {
	ratchet := NewReceiver(x3dh.SharedSecret, ourSignedPreKeyPublic, ourSignedPreKeyPrivate)
	now := common.Now()
	return &Session{
		ID: uuid.Must(uuid.NewV7()), LocalAgent: local, RemoteAgent: remote,
		ratchet: ratchet, State: SessionActive, CreatedAt: now, LastActiveAt: now,
	}
}

// Encrypt seals plaintext for the remote agent, requiring the session be
// active.
func (s *Session) Encrypt(plaintext []byte) (*Envelope, error) {
	if s.State != SessionActive {
		return nil, common.New(common.CodeSession, "session is not active")
	}
	enc, err := s.ratchet.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	s.LastActiveAt = common.Now()
	return NewEnvelope(s.LocalAgent, s.RemoteAgent, enc.Header, enc.Ciphertext), nil
}

// Decrypt opens an envelope addressed to this session, requiring the
// session be active and the envelope's sender match the session's remote
// agent.
func (s *Session) Decrypt(env *Envelope) ([]byte, error) {
	if s.State != SessionActive {
		return nil, common.New(common.CodeSession, "session is not active")
	}
	if env.Header.SenderID != s.RemoteAgent {
		return nil, common.New(common.CodeSession, "envelope sender does not match session remote agent")
	}
	plaintext, err := s.ratchet.Decrypt(&EncryptedMessage{
		Header:     env.Header.RatchetHeader,
		Ciphertext: env.Payload.Ciphertext,
	})
	if err != nil {
		return nil, err
	}
	s.LastActiveAt = common.Now()
	return plaintext, nil
}

// RatchetState returns the session's ratchet state for persistence.
func (s *Session) RatchetState() *RatchetState { return s.ratchet.State() }

// IsActive reports whether the session can currently send/receive.
func (s *Session) IsActive() bool { return s.State == SessionActive }

// Close permanently closes the session.
func (s *Session) Close() { s.State = SessionClosed }

// IsIdle reports whether the session has been inactive longer than
// timeoutSeconds.
func (s *Session) IsIdle(timeoutSeconds int64) bool {
	idle := common.Now().DurationSince(s.LastActiveAt)
	return idle.Seconds() > float64(timeoutSeconds)
}

// SessionMetadata is the serializable projection of a Session, used for
// storage without exposing the live ratchet object.
type SessionMetadata struct {
	ID           uuid.UUID
	LocalAgent   common.AgentId
	RemoteAgent  common.AgentId
	State        SessionState
	CreatedAt    common.Timestamp
	LastActiveAt common.Timestamp
	RatchetState *RatchetState
}

// Metadata projects the session into its serializable form.
func (s *Session) Metadata() *SessionMetadata {
	return &SessionMetadata{
		ID: s.ID, LocalAgent: s.LocalAgent, RemoteAgent: s.RemoteAgent,
		State: s.State, CreatedAt: s.CreatedAt, LastActiveAt: s.LastActiveAt,
		RatchetState: s.ratchet.State(),
	}
}

// SessionStore persists session metadata.
type SessionStore interface {
	StoreSession(ctx context.Context, s *Session) error
	LoadSession(ctx context.Context, id uuid.UUID) (*SessionMetadata, error)
	FindSession(ctx context.Context, local, remote common.AgentId) (*SessionMetadata, error)
	ListSessions(ctx context.Context, agent common.AgentId) ([]*SessionMetadata, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
}
