package messaging

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/creto-systems/enablement/pkg/common"
)

// InMemoryKeyStore is a reference KeyStore backed by a mutex-guarded map,
// suitable for tests and single-process composition.
type InMemoryKeyStore struct {
	mu       sync.Mutex
	identity map[common.AgentId]*IdentityKey
	bundles  map[common.AgentId]*KeyBundle
	preKeys  map[common.AgentId][]*PreKey
}

// NewInMemoryKeyStore creates an empty key store.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{
		identity: make(map[common.AgentId]*IdentityKey),
		bundles:  make(map[common.AgentId]*KeyBundle),
		preKeys:  make(map[common.AgentId][]*PreKey),
	}
}

func (s *InMemoryKeyStore) StoreIdentityKey(ctx context.Context, agent common.AgentId, key *IdentityKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity[agent] = key
	return nil
}

func (s *InMemoryKeyStore) GetIdentityKey(ctx context.Context, agent common.AgentId) (*IdentityKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.identity[agent]
	if !ok {
		return nil, common.New(common.CodeNotFound, "no identity key for agent %s", agent)
	}
	return k, nil
}

func (s *InMemoryKeyStore) StoreBundle(ctx context.Context, bundle *KeyBundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[bundle.AgentID] = bundle
	return nil
}

func (s *InMemoryKeyStore) GetBundle(ctx context.Context, agent common.AgentId) (*KeyBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[agent]
	if !ok {
		return nil, common.New(common.CodeInvalidKeyBundle, "no key bundle for agent %s", agent)
	}
	result := *b
	if len(s.preKeys[agent]) > 0 {
		result.OneTimePreKey = s.preKeys[agent][0]
	} else {
		result.OneTimePreKey = nil
	}
	return &result, nil
}

func (s *InMemoryKeyStore) ConsumePreKey(ctx context.Context, agent common.AgentId) (*PreKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.preKeys[agent]
	if len(keys) == 0 {
		return nil, nil
	}
	pk := keys[0]
	s.preKeys[agent] = keys[1:]
	return pk, nil
}

func (s *InMemoryKeyStore) UploadPreKeys(ctx context.Context, agent common.AgentId, keys []*PreKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preKeys[agent] = append(s.preKeys[agent], keys...)
	return nil
}

func (s *InMemoryKeyStore) PreKeyCount(ctx context.Context, agent common.AgentId) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.preKeys[agent]), nil
}

// InMemorySessionStore is a reference SessionStore backed by a
// mutex-guarded map.
type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*SessionMetadata
}

// NewInMemorySessionStore creates an empty session store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[uuid.UUID]*SessionMetadata)}
}

func (s *InMemorySessionStore) StoreSession(ctx context.Context, sess *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Metadata()
	return nil
}

func (s *InMemorySessionStore) LoadSession(ctx context.Context, id uuid.UUID) (*SessionMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return meta, nil
}

func (s *InMemorySessionStore) FindSession(ctx context.Context, local, remote common.AgentId) (*SessionMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, meta := range s.sessions {
		if meta.LocalAgent == local && meta.RemoteAgent == remote {
			return meta, nil
		}
	}
	return nil, nil
}

func (s *InMemorySessionStore) ListSessions(ctx context.Context, agent common.AgentId) ([]*SessionMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*SessionMetadata
	for _, meta := range s.sessions {
		if meta.LocalAgent == agent || meta.RemoteAgent == agent {
			out = append(out, meta)
		}
	}
	return out, nil
}

func (s *InMemorySessionStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
