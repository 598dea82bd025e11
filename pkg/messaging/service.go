package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/creto-systems/enablement/pkg/common"
)

// Service wires together key storage, session establishment, and channel
// delivery into the agent-facing messaging API.
type Service struct {
	logger   *slog.Logger
	keys     KeyStore
	sessions SessionStore
	channel  Channel

	mu    sync.Mutex
	active map[string]*Session // keyed by local|remote agent pair
}

// NewService builds a messaging service from its collaborators. logger may
// be nil, in which case slog.Default() is used.
func NewService(keys KeyStore, sessions SessionStore, channel Channel, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, keys: keys, sessions: sessions, channel: channel, active: make(map[string]*Session)}
}

func sessionKey(local, remote common.AgentId) string {
	return local.String() + "|" + remote.String()
}

// EstablishSession runs X3DH against the remote agent's published bundle and
// opens a session as the initiator.
func (s *Service) EstablishSession(ctx context.Context, local, remote common.AgentId) (*Session, error) {
	localIdentity, err := s.keys.GetIdentityKey(ctx, local)
	if err != nil {
		return nil, err
	}
	remoteBundle, err := s.keys.GetBundle(ctx, remote)
	if err != nil {
		return nil, err
	}

	result, err := InitiateX3DH(localIdentity, remoteBundle)
	if err != nil {
		return nil, err
	}

	session, err := NewInitiatorSession(local, remote, result)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.StoreSession(ctx, session); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.active[sessionKey(local, remote)] = session
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "messaging session established",
		slog.String("local_agent", local.String()),
		slog.String("remote_agent", remote.String()),
		slog.Bool("used_one_time_prekey", result.UsedOneTimePreKey))

	return session, nil
}

// Send encrypts plaintext on the session between local and remote and hands
// the resulting envelope to the channel, retrying per policy.
func (s *Service) Send(ctx context.Context, local, remote common.AgentId, plaintext []byte, contentType ContentType, policy RetryPolicy) (*Envelope, error) {
	s.mu.Lock()
	session, ok := s.active[sessionKey(local, remote)]
	s.mu.Unlock()
	if !ok {
		return nil, common.New(common.CodeSession, "no active session between %s and %s", local, remote)
	}

	env, err := session.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	env.WithContentType(contentType)

	if err := SendWithRetry(ctx, s.channel, env, policy); err != nil {
		return nil, err
	}

	if err := s.sessions.StoreSession(ctx, session); err != nil {
		s.logger.WarnContext(ctx, "failed to persist session after send", slog.String("error", err.Error()))
	}

	return env, nil
}

// Receive pulls pending envelopes for recipient and decrypts each against
// its active session, acknowledging successfully processed envelopes.
func (s *Service) Receive(ctx context.Context, recipient common.AgentId) ([][]byte, error) {
	envs, err := s.channel.Receive(ctx, recipient)
	if err != nil {
		return nil, err
	}

	var plaintexts [][]byte
	var acked []uuid.UUID
	for _, env := range envs {
		s.mu.Lock()
		session, ok := s.active[sessionKey(recipient, env.Header.SenderID)]
		s.mu.Unlock()
		if !ok {
			s.logger.WarnContext(ctx, "received envelope with no active session",
				slog.String("sender", env.Header.SenderID.String()))
			continue
		}
		plaintext, err := session.Decrypt(env)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to decrypt envelope", slog.String("error", err.Error()))
			continue
		}
		plaintexts = append(plaintexts, plaintext)
		acked = append(acked, env.ID)
		_ = s.sessions.StoreSession(ctx, session)
	}

	if len(acked) > 0 {
		if err := s.channel.Acknowledge(ctx, acked); err != nil {
			s.logger.WarnContext(ctx, "failed to acknowledge received envelopes", slog.String("error", err.Error()))
		}
	}

	return plaintexts, nil
}
